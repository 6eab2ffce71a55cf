package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/infra/observability"
	"github.com/boddenberg/central-sheets-import/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service/import")

// ImportDefaults fill request fields the caller leaves empty.
type ImportDefaults struct {
	Branch       string
	SystemUserID string
	Environment  domain.Environment
}

// ImportService sequences lead-source validation, duplicate detection and the
// row import. It is the only caller of those stages.
type ImportService struct {
	extractor   *FieldExtractor
	leadSources *LeadSourceValidator
	duplicates  *DuplicateDetector
	rows        *RowImporter
	publisher   port.ReportPublisher
	defaults    ImportDefaults
	now         func() time.Time
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewImportService wires the import stages. publisher may be nil.
func NewImportService(
	extractor *FieldExtractor,
	leadSources *LeadSourceValidator,
	duplicates *DuplicateDetector,
	rows *RowImporter,
	publisher port.ReportPublisher,
	defaults ImportDefaults,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ImportService {
	return &ImportService{
		extractor:   extractor,
		leadSources: leadSources,
		duplicates:  duplicates,
		rows:        rows,
		publisher:   publisher,
		defaults:    defaults,
		now:         time.Now,
		metrics:     metrics,
		logger:      logger,
	}
}

type importScope struct {
	branch  string
	userID  string
	env     domain.Environment
	records []domain.ExtractedRecord
}

// prepare validates the request, applies defaults and extracts every row.
func (s *ImportService) prepare(req *domain.ImportRequest) (*importScope, error) {
	if req == nil || len(req.SelectedRows) == 0 {
		return nil, &domain.ErrValidation{Field: "selectedRows", Message: "no rows selected"}
	}
	mapping := req.Mapping()
	if err := validateMapping(mapping); err != nil {
		return nil, err
	}

	scope := &importScope{
		branch: firstNonEmpty(req.Branch, s.defaults.Branch),
		userID: firstNonEmpty(req.SystemUserID, s.defaults.SystemUserID),
		env:    req.Environment,
	}
	if scope.env == "" {
		scope.env = s.defaults.Environment
	}

	var missing []string
	if scope.branch == "" {
		missing = append(missing, "CENTRAL_BRANCH")
	}
	if scope.userID == "" {
		missing = append(missing, "CENTRAL_SYSTEM_USER_ID")
	}
	if len(missing) > 0 {
		return nil, &domain.ErrConfiguration{Missing: missing}
	}

	scope.records = s.extractor.ExtractAll(req.SelectedRows, mapping, scope.env)
	return scope, nil
}

// ============================================================
// Orchestrated run
// ============================================================

// RunImport runs the full pipeline. A report is returned for every run that
// got past request validation. The error is non-nil only for invalid requests
// (nil report) and for batch-level store failures (State == Failed).
func (s *ImportService) RunImport(ctx context.Context, req *domain.ImportRequest) (*domain.ImportReport, error) {
	ctx, span := tracer.Start(ctx, "ImportService.RunImport")
	defer span.End()

	scope, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	report := s.newReport(req)
	span.SetAttributes(
		attribute.String("import.id", report.ImportID),
		attribute.Int("import.rows", report.TotalRows),
	)
	logger := s.logger.With(zap.String("import_id", report.ImportID), zap.String("branch", scope.branch))
	logger.Info("import started", zap.Int("rows", report.TotalRows), zap.String("environment", string(scope.env)))

	// Validating
	validation, err := s.leadSources.Validate(ctx, scope.records, scope.branch, scope.userID)
	if err != nil {
		return s.finish(ctx, report, scope, s.failed(report, err)), err
	}
	report.LeadSourceData = validation
	if !validation.CanProceed {
		report.State = domain.StateAborted
		report.Message = fmt.Sprintf("Missing hear_us_from values: %s. Run the suggested SQL, then resubmit the import.",
			strings.Join(validation.Missing, ", "))
		report.Remediation = strings.Join(validation.SuggestedStatements, "\n")
		report.InsertionResults.Failed = missingLeadSourceRows(scope.records, validation.Missing)
		return s.finish(ctx, report, scope, nil), nil
	}

	// DetectingDuplicates
	report.State = domain.StateDetectingDuplicates
	dups, err := s.duplicates.Check(ctx, scope.records)
	if err != nil {
		return s.finish(ctx, report, scope, s.failed(report, err)), err
	}
	report.DuplicateDetails = dups.Duplicates
	report.InsertionResults.Skipped = duplicateRows(scope.records, dups.Duplicates)
	if len(dups.New) == 0 {
		report.State = domain.StateNoOpCompleted
		report.Success = true
		report.Message = fmt.Sprintf("All %d rows already exist; nothing to import", report.TotalRows)
		return s.finish(ctx, report, scope, nil), nil
	}

	// Importing
	report.State = domain.StateImporting
	if err := s.importRecords(ctx, report, dups.New, scope); err != nil {
		return s.finish(ctx, report, scope, err), err
	}
	return s.finish(ctx, report, scope, nil), nil
}

// importRecords runs the row importer and folds its results into report.
func (s *ImportService) importRecords(ctx context.Context, report *domain.ImportReport, records []domain.ExtractedRecord, scope *importScope) error {
	results, err := s.rows.ImportBatch(ctx, records, scope.branch, scope.userID)

	report.InsertionResults.Successful = results.Successful
	report.InsertionResults.Failed = append(report.InsertionResults.Failed, results.Failed...)
	report.InsertionResults.Skipped = append(report.InsertionResults.Skipped, results.Skipped...)

	var missing *domain.ErrMissingLeadSource
	switch {
	case errors.As(err, &missing):
		report.State = domain.StateAborted
		report.Message = fmt.Sprintf("Import aborted: hear_us_from value %q not found for branch %s (row %d). All rows were rolled back.",
			missing.Value, missing.Branch, missing.RowIndex)
		report.Remediation = missing.Statement
		return nil
	case err != nil:
		return s.failed(report, err)
	}

	report.State = domain.StateCompleted
	report.Tally()
	report.Success = report.SuccessfulRows > 0 || report.FailedRows == 0
	report.Message = fmt.Sprintf("Import completed: %d successful, %d failed, %d skipped",
		report.SuccessfulRows, report.FailedRows, report.SkippedRows)
	if report.SuccessfulRows > 0 {
		report.TablesInserted = domain.ImportedTables
	}
	return nil
}

// failed marks the report as a batch-level failure and returns err.
func (s *ImportService) failed(report *domain.ImportReport, err error) error {
	report.State = domain.StateFailed
	report.Success = false
	report.Message = "Import failed: " + err.Error()

	var ext *domain.ErrExternalService
	if errors.As(err, &ext) {
		report.Suggestion = ext.Suggestion()
		s.metrics.IncrExternalError(ext.Service)
	} else {
		report.Suggestion = "Please check your database connection and try again."
	}
	return err
}

// finish tallies, records and publishes the report.
func (s *ImportService) finish(ctx context.Context, report *domain.ImportReport, scope *importScope, err error) *domain.ImportReport {
	report.Tally()
	if report.State == domain.StateAborted || report.State == domain.StateFailed {
		report.Success = false
	}
	s.metrics.IncrImport(string(report.State))

	fields := []zap.Field{
		zap.String("import_id", report.ImportID),
		zap.String("state", string(report.State)),
		zap.Int("successful", report.SuccessfulRows),
		zap.Int("failed", report.FailedRows),
		zap.Int("skipped", report.SkippedRows),
	}
	if err != nil {
		s.logger.Error("import finished with error", append(fields, zap.Error(err))...)
	} else {
		s.logger.Info("import finished", fields...)
	}

	s.publish(ctx, report, scope)
	return report
}

func (s *ImportService) publish(ctx context.Context, report *domain.ImportReport, scope *importScope) {
	if s.publisher == nil {
		return
	}
	evt := &domain.ImportEvent{
		ImportID:       report.ImportID,
		State:          report.State,
		Success:        report.Success,
		Branch:         scope.branch,
		SpreadsheetID:  report.SpreadsheetID,
		WorksheetName:  report.WorksheetName,
		TotalRows:      report.TotalRows,
		SuccessfulRows: report.SuccessfulRows,
		FailedRows:     report.FailedRows,
		SkippedRows:    report.SkippedRows,
		Timestamp:      report.Timestamp,
	}
	if report.LeadSourceData != nil {
		evt.MissingSources = report.LeadSourceData.Missing
	}
	if err := s.publisher.PublishReport(ctx, evt); err != nil {
		s.logger.Warn("failed to publish import report",
			zap.String("import_id", report.ImportID),
			zap.Error(err),
		)
	}
}

func (s *ImportService) newReport(req *domain.ImportRequest) *domain.ImportReport {
	return &domain.ImportReport{
		ImportID:         uuid.NewString(),
		State:            domain.StateValidating,
		SpreadsheetID:    req.SpreadsheetID,
		WorksheetName:    req.WorksheetName,
		TotalRows:        len(req.SelectedRows),
		InsertionResults: domain.NewInsertionResults(),
		Timestamp:        s.now().UTC(),
	}
}

// ============================================================
// Standalone stages
// ============================================================

// CheckLeadSources runs only the lead-source validation.
func (s *ImportService) CheckLeadSources(ctx context.Context, req *domain.ImportRequest) (*domain.LeadSourceCheckResponse, error) {
	ctx, span := tracer.Start(ctx, "ImportService.CheckLeadSources")
	defer span.End()

	scope, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	if len(DistinctLeadSources(scope.records)) == 0 {
		return &domain.LeadSourceCheckResponse{
			Success: false,
			Message: "No hear_us_from values found in selected rows",
		}, nil
	}

	validation, err := s.leadSources.Validate(ctx, scope.records, scope.branch, scope.userID)
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("All %d hear_us_from values exist in database", validation.TotalValues)
	if !validation.CanProceed {
		msg = fmt.Sprintf("Found %d missing hear_us_from values. Please create them before importing.", len(validation.Missing))
	}
	return &domain.LeadSourceCheckResponse{Success: true, Message: msg, Data: validation}, nil
}

// CheckDuplicates runs only the duplicate detection.
func (s *ImportService) CheckDuplicates(ctx context.Context, req *domain.ImportRequest) (*domain.DuplicateCheckResponse, error) {
	ctx, span := tracer.Start(ctx, "ImportService.CheckDuplicates")
	defer span.End()

	scope, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	dups, err := s.duplicates.Check(ctx, scope.records)
	if err != nil {
		return nil, err
	}

	return &domain.DuplicateCheckResponse{
		Success:          true,
		TotalRows:        len(scope.records),
		DuplicateRows:    len(dups.Duplicates),
		NewRows:          len(dups.New),
		DuplicateDetails: dups.Duplicates,
		Message:          fmt.Sprintf("Found %d duplicate rows and %d new rows", len(dups.Duplicates), len(dups.New)),
	}, nil
}

// InsertData imports the selected rows after an intra-batch duplicate pass,
// without the store lookups. It expects the caller to have run the checks.
func (s *ImportService) InsertData(ctx context.Context, req *domain.ImportRequest) (*domain.ImportReport, error) {
	ctx, span := tracer.Start(ctx, "ImportService.InsertData")
	defer span.End()

	if req != nil && (req.SpreadsheetID == "" || req.WorksheetName == "") {
		return nil, &domain.ErrValidation{Field: "spreadsheetId", Message: "spreadsheetId and worksheetName are required"}
	}
	scope, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	report := s.newReport(req)
	dups := DetectDuplicates(scope.records, nil, nil)
	report.DuplicateDetails = dups.Duplicates
	report.InsertionResults.Skipped = duplicateRows(scope.records, dups.Duplicates)

	report.State = domain.StateImporting
	if err := s.importRecords(ctx, report, dups.New, scope); err != nil {
		return s.finish(ctx, report, scope, err), err
	}
	return s.finish(ctx, report, scope, nil), nil
}

// ============================================================
// Helpers
// ============================================================

func duplicateRows(records []domain.ExtractedRecord, verdicts []domain.DuplicateVerdict) []domain.RowResult {
	byRow := indexRecords(records)
	out := make([]domain.RowResult, 0, len(verdicts))
	for _, v := range verdicts {
		rec := byRow[v.RowIndex]
		out = append(out, domain.RowResult{
			RowIndex: v.RowIndex,
			Email:    rec.Email,
			Phone:    rec.Phone,
			Reason:   v.Reason,
		})
	}
	return out
}

func missingLeadSourceRows(records []domain.ExtractedRecord, missing []string) []domain.RowResult {
	set := make(map[string]struct{}, len(missing))
	for _, m := range missing {
		set[m] = struct{}{}
	}
	out := []domain.RowResult{}
	for _, rec := range records {
		if _, ok := set[rec.HearUsFrom]; !ok {
			continue
		}
		out = append(out, domain.RowResult{
			RowIndex: rec.RowIndex,
			Email:    rec.Email,
			Phone:    rec.Phone,
			Reason:   domain.RowMissingLeadSource,
			Error:    fmt.Sprintf("hear_us_from value %q not found", rec.HearUsFrom),
		})
	}
	return out
}

func indexRecords(records []domain.ExtractedRecord) map[int]domain.ExtractedRecord {
	m := make(map[int]domain.ExtractedRecord, len(records))
	for _, r := range records {
		m[r.RowIndex] = r
	}
	return m
}

// validateMapping applies the mapping's validate tags, the same rule the HTTP
// layer enforces on the request body.
func validateMapping(m domain.ColumnMapping) error {
	if err := domain.Validate(&m); err != nil {
		var ve *domain.ErrValidation
		if errors.As(err, &ve) {
			ve.Field = "columnMapping." + ve.Field
		}
		return err
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
