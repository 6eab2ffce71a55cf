// Package sheets reads spreadsheets through the Google Sheets v4 API using the
// caller's OAuth access token.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/infra/observability"
	"github.com/boddenberg/central-sheets-import/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

var tracer = otel.Tracer("infra/sheets")

const serviceName = "sheets"

const (
	worksheetFields googleapi.Field = "sheets.properties(title,gridProperties(rowCount,columnCount))"
	gridFields      googleapi.Field = "sheets(properties(title),data(rowData(values(formattedValue))))"
)

// Client implements port.SheetSource.
type Client struct {
	httpClient *http.Client
	endpoint   string // empty uses the public API
	readRange  string
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewClient creates a Sheets client. readRange is the A1 range read from every
// worksheet, e.g. "A1:Z1000".
func NewClient(
	httpClient *http.Client,
	endpoint, readRange string,
	cb *gobreaker.CircuitBreaker,
	bulkhead *resilience.Bulkhead,
	cfg resilience.Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Client {
	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		readRange:  readRange,
		cb:         cb,
		bulkhead:   bulkhead,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// NewBreaker returns a breaker that ignores answers caused by the caller
// (bad session, no access, unknown sheet).
func NewBreaker() *gobreaker.CircuitBreaker {
	return resilience.NewCircuitBreaker(serviceName, func(err error) bool { return !isClientError(err) })
}

// ListWorksheets returns the tabs of the spreadsheet.
func (c *Client) ListWorksheets(ctx context.Context, accessToken, spreadsheetID string) ([]domain.Worksheet, error) {
	ctx, span := tracer.Start(ctx, "SheetsClient.ListWorksheets")
	defer span.End()
	span.SetAttributes(attribute.String("sheets.spreadsheet_id", spreadsheetID))

	srv, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var resp *sheetsapi.Spreadsheet
	err = c.call(ctx, func() error {
		var callErr error
		resp, callErr = srv.Spreadsheets.Get(spreadsheetID).Fields(worksheetFields).Context(ctx).Do()
		return classify(callErr, spreadsheetID, "", "")
	})
	if err != nil {
		return nil, err
	}

	worksheets := make([]domain.Worksheet, 0, len(resp.Sheets))
	for _, sh := range resp.Sheets {
		if sh.Properties == nil {
			continue
		}
		ws := domain.Worksheet{Title: sh.Properties.Title}
		if gp := sh.Properties.GridProperties; gp != nil {
			ws.RowCount = gp.RowCount
			ws.ColumnCount = gp.ColumnCount
		}
		worksheets = append(worksheets, ws)
	}
	return worksheets, nil
}

// FetchRows reads the configured range of one worksheet as formatted values.
func (c *Client) FetchRows(ctx context.Context, accessToken, spreadsheetID, worksheet string) (*domain.WorksheetData, error) {
	ctx, span := tracer.Start(ctx, "SheetsClient.FetchRows")
	defer span.End()

	rng := A1Range(worksheet, c.readRange)
	span.SetAttributes(
		attribute.String("sheets.spreadsheet_id", spreadsheetID),
		attribute.String("sheets.range", rng),
	)

	srv, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var resp *sheetsapi.Spreadsheet
	err = c.call(ctx, func() error {
		var callErr error
		resp, callErr = srv.Spreadsheets.Get(spreadsheetID).
			Ranges(rng).
			IncludeGridData(true).
			Fields(gridFields).
			Context(ctx).
			Do()
		return classify(callErr, spreadsheetID, worksheet, rng)
	})
	if err != nil {
		return nil, err
	}

	data := &domain.WorksheetData{
		Data: []domain.RowData{},
		Metadata: domain.WorksheetMetadata{
			SpreadsheetID: spreadsheetID,
			WorksheetName: worksheet,
			Range:         rng,
		},
	}
	if len(resp.Sheets) == 0 {
		return data, nil
	}
	for _, grid := range resp.Sheets[0].Data {
		for _, rd := range grid.RowData {
			row := domain.RowData{Values: make([]domain.Cell, len(rd.Values))}
			for i, cell := range rd.Values {
				if cell != nil {
					row.Values[i] = domain.Cell{FormattedValue: cell.FormattedValue}
				}
			}
			if len(row.Values) > data.Metadata.TotalColumns {
				data.Metadata.TotalColumns = len(row.Values)
			}
			data.Data = append(data.Data, row)
		}
	}
	data.Metadata.TotalRows = len(data.Data)
	return data, nil
}

func (c *Client) service(ctx context.Context, accessToken string) (*sheetsapi.Service, error) {
	if accessToken == "" {
		return nil, &domain.ErrUnauthorized{Message: "Not authenticated with Google"}
	}
	hc := &http.Client{
		Timeout: c.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   c.httpClient.Transport,
		},
	}
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	srv, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return srv, nil
}

// call runs fn with retry, breaker and bulkhead, and maps what is left to
// domain errors.
func (c *Client) call(ctx context.Context, fn func() error) error {
	err := resilience.Do(ctx, c.bulkhead, c.cb, c.cfg, fn)
	switch {
	case err == nil:
		return nil
	case isClientError(err):
		return err
	case resilience.IsOpen(err):
		c.metrics.IncrExternalError(serviceName)
		return &domain.ErrCircuitOpen{Service: serviceName}
	}
	c.metrics.IncrExternalError(serviceName)
	c.logger.Error("sheets api call failed", zap.Error(err))
	return &domain.ErrExternalService{Service: serviceName, Err: err}
}

// classify turns API answers caused by the request into permanent domain
// errors. Everything else stays retryable.
func classify(err error, spreadsheetID, worksheet, rng string) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}

	msg := strings.ToLower(gerr.Message)
	switch {
	case gerr.Code == http.StatusUnauthorized:
		return resilience.Permanent(&domain.ErrUnauthorized{Message: "Google session expired or revoked"})
	case gerr.Code == http.StatusForbidden:
		return resilience.Permanent(&domain.ErrForbidden{Action: "read spreadsheet " + spreadsheetID})
	case gerr.Code == http.StatusNotFound:
		return resilience.Permanent(&domain.ErrNotFound{Resource: "spreadsheet", ID: spreadsheetID})
	case gerr.Code == http.StatusBadRequest && strings.Contains(msg, "exceeds grid limits"):
		return resilience.Permanent(&domain.ErrTooLarge{Range: rng})
	case gerr.Code == http.StatusBadRequest && strings.Contains(msg, "unable to parse range"):
		return resilience.Permanent(&domain.ErrNotFound{Resource: "worksheet", ID: worksheet})
	case gerr.Code == http.StatusBadRequest:
		return resilience.Permanent(&domain.ErrValidation{Field: "range", Message: gerr.Message})
	}
	return err
}

func isClientError(err error) bool {
	var (
		unauthorized *domain.ErrUnauthorized
		forbidden    *domain.ErrForbidden
		notFound     *domain.ErrNotFound
		tooLarge     *domain.ErrTooLarge
		validation   *domain.ErrValidation
	)
	return errors.As(err, &unauthorized) || errors.As(err, &forbidden) ||
		errors.As(err, &notFound) || errors.As(err, &tooLarge) || errors.As(err, &validation)
}

// A1Range quotes a worksheet title for A1 notation and appends the cell range.
func A1Range(worksheet, cells string) string {
	return "'" + strings.ReplaceAll(worksheet, "'", "''") + "'!" + cells
}
