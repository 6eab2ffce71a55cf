package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/infra/observability"
	"github.com/boddenberg/central-sheets-import/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var sheetsTracer = otel.Tracer("service/sheets")

const worksheetsCache = "worksheets"

// SheetsService reads spreadsheet structure and rows with the caller's session.
// Worksheet listings are cached per session and spreadsheet.
type SheetsService struct {
	source     port.SheetSource
	worksheets port.Cache[[]domain.Worksheet]
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewSheetsService creates a sheets service.
func NewSheetsService(source port.SheetSource, worksheets port.Cache[[]domain.Worksheet], metrics *observability.Metrics, logger *zap.Logger) *SheetsService {
	return &SheetsService{source: source, worksheets: worksheets, metrics: metrics, logger: logger}
}

// ListWorksheets returns the tabs of a spreadsheet given its id or URL.
func (s *SheetsService) ListWorksheets(ctx context.Context, session *domain.Session, spreadsheetRef string) (*domain.WorksheetList, error) {
	ctx, span := sheetsTracer.Start(ctx, "SheetsService.ListWorksheets")
	defer span.End()

	id, err := ExtractSpreadsheetID(spreadsheetRef)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("sheets.spreadsheet_id", id))

	key := cacheKey(session.ID, id)
	if cached, ok := s.worksheets.Get(key); ok {
		s.metrics.IncrCacheHit(worksheetsCache)
		return &domain.WorksheetList{SpreadsheetID: id, Worksheets: cached}, nil
	}
	s.metrics.IncrCacheMiss(worksheetsCache)

	worksheets, err := s.source.ListWorksheets(ctx, session.AccessToken, id)
	if err != nil {
		s.logger.Error("failed to list worksheets",
			zap.String("spreadsheet_id", id),
			zap.Error(err),
		)
		return nil, err
	}
	s.worksheets.Set(key, worksheets)

	s.logger.Info("worksheets listed",
		zap.String("spreadsheet_id", id),
		zap.Int("count", len(worksheets)),
	)
	return &domain.WorksheetList{SpreadsheetID: id, Worksheets: worksheets}, nil
}

// FetchWorksheet returns the configured range of one worksheet. Row data is
// never cached so operators always select from the current sheet.
func (s *SheetsService) FetchWorksheet(ctx context.Context, session *domain.Session, spreadsheetRef, worksheet string) (*domain.WorksheetData, error) {
	ctx, span := sheetsTracer.Start(ctx, "SheetsService.FetchWorksheet")
	defer span.End()

	id, err := ExtractSpreadsheetID(spreadsheetRef)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(worksheet) == "" {
		return nil, &domain.ErrValidation{Field: "worksheetName", Message: "worksheet name is required"}
	}

	data, err := s.source.FetchRows(ctx, session.AccessToken, id, worksheet)
	if err != nil {
		s.logger.Error("failed to fetch worksheet",
			zap.String("spreadsheet_id", id),
			zap.String("worksheet", worksheet),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("worksheet fetched",
		zap.String("spreadsheet_id", id),
		zap.String("worksheet", worksheet),
		zap.Int("rows", data.Metadata.TotalRows),
	)
	return data, nil
}

// Forget drops every cached listing of a session.
func (s *SheetsService) Forget(sessionID string) {
	s.worksheets.DeletePrefix(sessionID + ":")
}

func cacheKey(sessionID, spreadsheetID string) string {
	return sessionID + ":" + spreadsheetID
}

var (
	spreadsheetURLPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)
	spreadsheetIDPattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ExtractSpreadsheetID accepts a Google Sheets URL or a bare spreadsheet id.
func ExtractSpreadsheetID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if m := spreadsheetURLPattern.FindStringSubmatch(ref); m != nil {
		return m[1], nil
	}
	if spreadsheetIDPattern.MatchString(ref) {
		return ref, nil
	}
	return "", &domain.ErrValidation{Field: "spreadsheetId", Message: "not a spreadsheet id or URL"}
}
