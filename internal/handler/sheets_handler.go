package handler

import (
	"net/http"
	"net/url"

	"github.com/boddenberg/central-sheets-import/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Sheets browsing
// ============================================================

func listWorksheetsHandler(sheetsSvc *service.SheetsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/sheets/{spreadsheetId}/worksheets")
		defer span.End()

		spreadsheetID := pathParam(r, "spreadsheetId")
		span.SetAttributes(attribute.String("sheets.spreadsheet_id", spreadsheetID))

		list, err := sheetsSvc.ListWorksheets(ctx, SessionFromContext(ctx), spreadsheetID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, list)
	}
}

func worksheetDataHandler(sheetsSvc *service.SheetsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/sheets/{spreadsheetId}/worksheets/{worksheetName}/data")
		defer span.End()

		spreadsheetID := pathParam(r, "spreadsheetId")
		worksheet := pathParam(r, "worksheetName")

		data, err := sheetsSvc.FetchWorksheet(ctx, SessionFromContext(ctx), spreadsheetID, worksheet)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, data)
	}
}

// pathParam returns the unescaped chi URL parameter.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
