package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
	Error       string `json:"error,omitempty"`
}

// ConnectionStatus is returned by GET /v1/database/test-connection.
type ConnectionStatus struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Config    ConnectionConfig `json:"config"`
	Timestamp string           `json:"timestamp"`
}

// ConnectionConfig is the non-secret part of the store configuration.
type ConnectionConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Database string `json:"database"`
	Dialect  string `json:"dialect"`
}

// ImportMetrics is returned by GET /v1/metrics/import.
type ImportMetrics struct {
	ImportsTotal       int64   `json:"importsTotal"`
	ImportsAborted     int64   `json:"importsAborted"`
	ImportsFailed      int64   `json:"importsFailed"`
	RowsSuccessful     int64   `json:"rowsSuccessful"`
	RowsFailed         int64   `json:"rowsFailed"`
	RowsSkipped        int64   `json:"rowsSkipped"`
	RowsDuplicate      int64   `json:"rowsDuplicate"`
	MissingLeadSources int64   `json:"missingLeadSources"`
	SheetsCacheHitRate float64 `json:"sheetsCacheHitRate"`
	Period             string  `json:"period"`
}
