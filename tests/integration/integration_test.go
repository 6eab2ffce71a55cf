package integration_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/config"
	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/handler"
	"github.com/boddenberg/central-sheets-import/internal/infra/cache"
	"github.com/boddenberg/central-sheets-import/internal/infra/mysql"
	"github.com/boddenberg/central-sheets-import/internal/infra/observability"
	"github.com/boddenberg/central-sheets-import/internal/infra/resilience"
	"github.com/boddenberg/central-sheets-import/internal/infra/sheets"
	"github.com/boddenberg/central-sheets-import/internal/service"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var dbCfg = config.DatabaseConfig{Host: "db", Port: "3306", Name: "central", User: "importer", Password: "secret"}

var (
	leadSourceSQL = regexp.QuoteMeta("FROM hear_us_from WHERE hear_us_from = ?")
	emailsSQL     = regexp.QuoteMeta("FROM profile_email WHERE address IN (?)")
	phonesSQL     = regexp.QuoteMeta("FROM profile_phone WHERE number IN (?)")
)

const importRequest = `{
	"spreadsheetId": "sheet-1",
	"worksheetName": "Leads",
	"columnMapping": {},
	"selectedRows": [
		{"rowIndex": 1, "data": {"values": [
			{"formattedValue": "5/31/25"}, {"formattedValue": ""},
			{"formattedValue": "Amy"}, {"formattedValue": "Chan"}, {"formattedValue": "F"},
			{}, {}, {}, {},
			{"formattedValue": "555-0101"}, {"formattedValue": "amy@x.com"}, {}, {"formattedValue": "Radio"}
		]}}
	]
}`

// newGoogle fakes the token, userinfo and Sheets endpoints on one server.
func newGoogle(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"ya29.int","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"ops@example.com"}`))
	})
	mux.HandleFunc("/v4/spreadsheets/sheet-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer ya29.int" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("includeGridData") == "true" {
			_, _ = w.Write([]byte(`{"sheets":[{"properties":{"title":"Leads"},"data":[{"rowData":[
				{"values":[{"formattedValue":"Timestamp"},{"formattedValue":"Notes"},{"formattedValue":"First"}]},
				{"values":[{"formattedValue":"5/31/25"},{},{"formattedValue":"Amy"}]}
			]}]}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"sheets":[{"properties":{"title":"Leads","gridProperties":{"rowCount":1000,"columnCount":26}}}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type env struct {
	router http.Handler
	mock   sqlmock.Sqlmock
}

// newEnv wires the production router over a sqlmock-backed store and a fake Google.
func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	mock.MatchExpectationsInOrder(false)
	store := mysql.NewStore(sqlx.NewDb(db, "mysql"), logger)

	importSvc := service.NewImportService(
		service.NewFieldExtractor(logger),
		service.NewLeadSourceValidator(store, metrics, logger),
		service.NewDuplicateDetector(store, metrics, logger),
		service.NewRowImporter(store, metrics, logger),
		nil,
		service.ImportDefaults{Branch: "9", SystemUserID: "sys-user", Environment: domain.EnvProd},
		metrics,
		logger,
	)

	google := newGoogle(t)
	httpClient := &http.Client{Timeout: 5 * time.Second}
	oauth := sheets.NewOAuth(config.GoogleConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/auth/callback",
	}, httpClient, logger).WithEndpoints(google.URL+"/auth", google.URL+"/token", google.URL+"/")
	sessions := service.NewSessionService(oauth, "integration-secret", time.Hour, logger)

	client := sheets.NewClient(httpClient, google.URL+"/", "A1:Z1000", sheets.NewBreaker(),
		resilience.NewBulkhead(4),
		resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 4},
		metrics, logger)
	worksheets := cache.New[[]domain.Worksheet](time.Minute)
	t.Cleanup(worksheets.Close)
	sheetsSvc := service.NewSheetsService(client, worksheets, metrics, logger)

	conn := service.NewConnectionService(dbCfg, store, logger)

	return &env{
		router: handler.NewRouter(importSvc, sheetsSvc, sessions, conn, metrics, logger),
		mock:   mock,
	}
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// TestIntegration_SheetsFlow signs in through the OAuth callback, then browses
// the spreadsheet with the session cookie.
func TestIntegration_SheetsFlow(t *testing.T) {
	e := newEnv(t)

	login := httptest.NewRequest(http.MethodGet, "/auth/google", nil)
	login.Header.Set("Accept", "application/json")
	rec := e.do(login)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rec.Code)
	}
	var started domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&started); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	state := cookie(rec, "central_oauth_state")
	if state == nil || state.Value != started.State {
		t.Fatalf("expected state cookie %q, got %+v", started.State, state)
	}

	callback := httptest.NewRequest(http.MethodGet,
		"/auth/callback?code=auth-code&state="+url.QueryEscape(started.State), nil)
	callback.AddCookie(state)
	rec = e.do(callback)
	if rec.Header().Get("Location") != "/?auth=success" {
		t.Fatalf("callback: unexpected redirect %q", rec.Header().Get("Location"))
	}
	session := cookie(rec, "central_session")
	if session == nil {
		t.Fatal("expected session cookie")
	}

	list := httptest.NewRequest(http.MethodGet,
		"/v1/sheets/"+url.PathEscape("https://docs.google.com/spreadsheets/d/sheet-1/edit")+"/worksheets", nil)
	list.AddCookie(session)
	rec = e.do(list)
	if rec.Code != http.StatusOK {
		t.Fatalf("worksheets: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var listed domain.WorksheetList
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decode worksheets: %v", err)
	}
	if listed.SpreadsheetID != "sheet-1" || len(listed.Worksheets) != 1 || listed.Worksheets[0].Title != "Leads" {
		t.Errorf("unexpected worksheets %+v", listed)
	}

	data := httptest.NewRequest(http.MethodGet, "/v1/sheets/sheet-1/worksheets/Leads/data", nil)
	data.AddCookie(session)
	rec = e.do(data)
	if rec.Code != http.StatusOK {
		t.Fatalf("data: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var fetched domain.WorksheetData
	if err := json.NewDecoder(rec.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(fetched.Data) != 2 || fetched.Metadata.WorksheetName != "Leads" {
		t.Errorf("unexpected data %+v", fetched)
	}
}

func TestIntegration_ImportAbortsOnMissingLeadSource(t *testing.T) {
	e := newEnv(t)
	e.mock.ExpectQuery(leadSourceSQL).
		WithArgs("Radio", "9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "hear_us_from", "lead_group"}))

	rec := e.do(httptest.NewRequest(http.MethodPost, "/v1/import", strings.NewReader(importRequest)))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var report domain.ImportReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.State != domain.StateAborted || report.Success {
		t.Errorf("expected aborted report, got %+v", report)
	}
	if !strings.Contains(report.Remediation, "INSERT INTO `hear_us_from`") || !strings.Contains(report.Remediation, "'Radio'") {
		t.Errorf("expected remediation statement, got %q", report.Remediation)
	}
	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestIntegration_ImportOfKnownContactsIsNoOp(t *testing.T) {
	e := newEnv(t)
	e.mock.ExpectQuery(leadSourceSQL).
		WithArgs("Radio", "9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "hear_us_from", "lead_group"}).AddRow("ls-1", "Radio", 4))
	e.mock.ExpectQuery(emailsSQL).
		WithArgs("amy@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"profile_id", "value"}).AddRow("p-9", "amy@x.com"))
	e.mock.ExpectQuery(phonesSQL).
		WithArgs("5550101").
		WillReturnRows(sqlmock.NewRows([]string{"profile_id", "value"}))

	rec := e.do(httptest.NewRequest(http.MethodPost, "/v1/import", strings.NewReader(importRequest)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var report domain.ImportReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.State != domain.StateNoOpCompleted || report.SkippedRows != 1 || report.SuccessfulRows != 0 {
		t.Errorf("expected no-op report, got %+v", report)
	}
	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestIntegration_HealthAndConnection(t *testing.T) {
	e := newEnv(t)
	e.mock.ExpectPing()
	e.mock.ExpectPing().WillReturnError(fmt.Errorf("dial tcp db:3306: connection refused"))

	rec := e.do(httptest.NewRequest(http.MethodGet, "/v1/database/test-connection", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Database connection successful") {
		t.Errorf("expected successful connection, got %d %s", rec.Code, rec.Body.String())
	}

	rec = e.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var health domain.HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "degraded" {
		t.Errorf("expected degraded health after a failed ping, got %+v", health)
	}

	rec = e.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("metrics: expected 200, got %d", rec.Code)
	}
}
