package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/central-sheets-import/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeImportRequest decodes and validates an import payload.
func decodeImportRequest(r *http.Request) (*domain.ImportRequest, error) {
	var req domain.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, &domain.ErrValidation{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	if err := domain.Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// describeError maps a domain error to its HTTP status and response body.
func describeError(err error) (int, errorResponse) {
	var (
		validation    *domain.ErrValidation
		configuration *domain.ErrConfiguration
		unauthorized  *domain.ErrUnauthorized
		forbidden     *domain.ErrForbidden
		notFound      *domain.ErrNotFound
		tooLarge      *domain.ErrTooLarge
		missingSource *domain.ErrMissingLeadSource
		duplicate     *domain.ErrDuplicate
		circuitOpen   *domain.ErrCircuitOpen
		external      *domain.ErrExternalService
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, errorResponse{Error: "Invalid request data", Message: err.Error()}
	case errors.As(err, &configuration):
		return http.StatusInternalServerError, errorResponse{
			Error:      "Database configuration incomplete",
			Message:    err.Error(),
			Suggestion: "Please check your .env file and ensure all database variables are set.",
		}
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized, errorResponse{
			Error:      "Authentication required",
			Message:    err.Error(),
			Suggestion: "Please sign in with Google first",
		}
	case errors.As(err, &forbidden):
		return http.StatusForbidden, errorResponse{
			Error:   "Access denied",
			Message: "You do not have permission to access this spreadsheet",
		}
	case errors.As(err, &notFound):
		return http.StatusNotFound, errorResponse{
			Error:   cases.Title(language.English).String(notFound.Resource) + " not found",
			Message: err.Error(),
		}
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, errorResponse{
			Error:      "Worksheet too large",
			Message:    err.Error(),
			Suggestion: "Reduce SHEETS_RANGE or split the worksheet.",
		}
	case errors.As(err, &missingSource):
		return http.StatusUnprocessableEntity, errorResponse{
			Error:      "Missing lead source",
			Message:    err.Error(),
			Suggestion: missingSource.Statement,
		}
	case errors.As(err, &duplicate):
		return http.StatusConflict, errorResponse{Error: "Duplicate entry", Message: err.Error()}
	case errors.As(err, &circuitOpen):
		return http.StatusServiceUnavailable, errorResponse{
			Error:      "Service temporarily unavailable",
			Message:    err.Error(),
			Suggestion: "Please try again in a few moments.",
		}
	case errors.As(err, &external):
		status := http.StatusBadGateway
		if external.Service == "mysql" {
			status = http.StatusServiceUnavailable
		}
		return status, errorResponse{
			Error:      "External service error",
			Message:    err.Error(),
			Suggestion: external.Suggestion(),
		}
	}
	return http.StatusInternalServerError, errorResponse{Error: "Internal server error", Message: err.Error()}
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status, body := describeError(err)
	switch {
	case status >= 500:
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusUnprocessableEntity:
		logger.Warn("request rejected", zap.Int("status", status), zap.String("error", err.Error()))
	default:
		logger.Debug("request rejected", zap.Int("status", status), zap.String("error", err.Error()))
	}
	writeJSON(w, status, body)
}

// writeReport writes an import report. Aborted runs answer 422 and failed runs
// take the status of their error; the report is the body either way.
func writeReport(w http.ResponseWriter, report *domain.ImportReport, err error, logger *zap.Logger) {
	if report == nil {
		handleServiceError(w, err, logger)
		return
	}
	switch report.State {
	case domain.StateAborted:
		writeJSON(w, http.StatusUnprocessableEntity, report)
	case domain.StateFailed:
		status := http.StatusInternalServerError
		if err != nil {
			status, _ = describeError(err)
			logger.Error("import failed", zap.String("import_id", report.ImportID), zap.Error(err))
		}
		writeJSON(w, status, report)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}
