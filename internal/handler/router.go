package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/infra/observability"
	"github.com/boddenberg/central-sheets-import/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// importSvc, sheetsSvc and sessions may be nil when their configuration is
// missing; their routes then answer with the configuration error.
func NewRouter(
	importSvc *service.ImportService,
	sheetsSvc *service.SheetsService,
	sessions *service.SessionService,
	conn *service.ConnectionService,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(conn, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- Google OAuth ---
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google", googleLoginHandler(sessions, logger))
		r.Get("/callback", googleCallbackHandler(sessions, logger))
		r.Get("/status", authStatusHandler(sessions))
		r.Post("/logout", logoutHandler(sessions, sheetsSvc, logger))
	})

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// Sheets browsing (Google session required)
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(sessions, logger))
			r.Get("/sheets/{spreadsheetId}/worksheets", listWorksheetsHandler(sheetsSvc, logger))
			r.Get("/sheets/{spreadsheetId}/worksheets/{worksheetName}/data", worksheetDataHandler(sheetsSvc, logger))
		})

		// =============================================
		// Database stages
		// =============================================
		r.Get("/database/test-connection", testConnectionHandler(conn, logger))
		r.Group(func(r chi.Router) {
			r.Use(requireStore(importSvc, conn, logger))
			r.Post("/database/check-lead-sources", checkLeadSourcesHandler(importSvc, logger))
			r.Post("/database/check-duplicates", checkDuplicatesHandler(importSvc, logger))
			r.Post("/database/insert-data", insertDataHandler(importSvc, logger))
			r.Post("/import", importHandler(importSvc, logger))
		})

		r.Get("/metrics/import", importMetricsHandler(metrics))
	})

	return r
}

// ============================================================
// Health & Metrics
// ============================================================

func healthzHandler(conn *service.ConnectionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "central-sheets-import", Status: "healthy", LastChecked: now},
		}

		start := time.Now()
		db := domain.ServiceHealth{Name: "mysql", Status: "healthy", LastChecked: now}
		status, err := conn.TestConnection(r.Context())
		db.LatencyMs = time.Since(start).Milliseconds()
		switch {
		case err != nil:
			db.Status = "unhealthy"
			db.Error = err.Error()
		case !status.Success:
			db.Status = "degraded"
			db.Error = status.Message
		}
		services = append(services, db)

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}
		if overallStatus != "healthy" {
			logger.Warn("health check degraded", zap.String("status", overallStatus))
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func importMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetImportSnapshot())
	}
}

// ============================================================
// Probes
// ============================================================

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
