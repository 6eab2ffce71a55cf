package handler

import (
	"errors"
	"net/http"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Database stages: /v1/database/*
// ============================================================

func testConnectionHandler(conn *service.ConnectionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/database/test-connection")
		defer span.End()

		status, err := conn.TestConnection(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if !status.Success {
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Error:      "Database connection failed",
				Message:    status.Message,
				Suggestion: "Please check your database credentials and network access.",
			})
			return
		}

		writeJSON(w, http.StatusOK, status)
	}
}

func checkLeadSourcesHandler(importSvc *service.ImportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/database/check-lead-sources")
		defer span.End()

		req, err := decodeImportRequest(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("import.rows", len(req.SelectedRows)))

		resp, err := importSvc.CheckLeadSources(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func checkDuplicatesHandler(importSvc *service.ImportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/database/check-duplicates")
		defer span.End()

		req, err := decodeImportRequest(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("import.rows", len(req.SelectedRows)))

		resp, err := importSvc.CheckDuplicates(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func insertDataHandler(importSvc *service.ImportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/database/insert-data")
		defer span.End()

		req, err := decodeImportRequest(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("import.rows", len(req.SelectedRows)))

		report, err := importSvc.InsertData(ctx, req)
		writeReport(w, report, err, logger)
	}
}

// ============================================================
// Orchestrated import: POST /v1/import
// ============================================================

func importHandler(importSvc *service.ImportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/import")
		defer span.End()

		req, err := decodeImportRequest(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(
			attribute.String("sheets.spreadsheet_id", req.SpreadsheetID),
			attribute.Int("import.rows", len(req.SelectedRows)),
		)

		report, err := importSvc.RunImport(ctx, req)
		if report != nil {
			span.SetAttributes(attribute.String("import.state", string(report.State)))
		}
		writeReport(w, report, err, logger)
	}
}

// requireStore answers store-backed routes when the store is not available.
func requireStore(importSvc *service.ImportService, conn *service.ConnectionService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if importSvc != nil {
				next.ServeHTTP(w, r)
				return
			}
			err := conn.Check()
			if err == nil {
				err = &domain.ErrExternalService{Service: "mysql", Err: errors.New("database connection is not initialized")}
			}
			handleServiceError(w, err, logger)
		})
	}
}
