package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/domain"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Environment selects the DEV contact obfuscation (PROD | DEV).
	Environment string `env:"ENV" envDefault:"PROD"`

	Database DatabaseConfig
	Central  CentralConfig
	Google   GoogleConfig

	// HTTP client
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`

	// Resilience
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"2"`
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF" envDefault:"200ms"`
	MaxConcurrency int           `env:"MAX_CONCURRENCY" envDefault:"8"`

	// Cache
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"2m"`

	// Observability. Empty endpoint keeps spans in-process.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Import report events. Empty URL disables publishing.
	RabbitMQURL       string `env:"RABBITMQ_URL"`
	ImportEventsQueue string `env:"IMPORT_EVENTS_QUEUE" envDefault:"central_import_reports"`
}

// DatabaseConfig describes the central MySQL store.
type DatabaseConfig struct {
	Host     string `env:"DB_HOST"`
	Port     string `env:"DB_PORT"`
	Name     string `env:"DB_NAME"`
	User     string `env:"DB_USERNAME"`
	Password string `env:"DB_PASSWORD"`

	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// Addr returns host:port for the driver.
func (d DatabaseConfig) Addr() string {
	return net.JoinHostPort(d.Host, d.Port)
}

// Missing lists the connection variables that are not set, in a stable order.
func (d DatabaseConfig) Missing() []string {
	var missing []string
	for _, kv := range []struct{ key, value string }{
		{"DB_HOST", d.Host},
		{"DB_PORT", d.Port},
		{"DB_NAME", d.Name},
		{"DB_USERNAME", d.User},
		{"DB_PASSWORD", d.Password},
	} {
		if strings.TrimSpace(kv.value) == "" {
			missing = append(missing, kv.key)
		}
	}
	return missing
}

// CentralConfig scopes every import to one branch and one owning system user.
type CentralConfig struct {
	Branch       string `env:"CENTRAL_BRANCH"`
	SystemUserID string `env:"CENTRAL_SYSTEM_USER_ID"`
}

// GoogleConfig holds the OAuth client and session settings for the Sheets routes.
type GoogleConfig struct {
	ClientID      string        `env:"GOOGLE_CLIENT_ID"`
	ClientSecret  string        `env:"GOOGLE_CLIENT_SECRET"`
	RedirectURL   string        `env:"GOOGLE_REDIRECT_URL" envDefault:"http://localhost:8080/auth/callback"`
	SessionSecret string        `env:"SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	SheetsRange   string        `env:"SHEETS_RANGE" envDefault:"A1:Z1000"`
}

// Enabled reports whether the OAuth client is configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.SessionSecret != ""
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Environment = strings.ToUpper(strings.TrimSpace(cfg.Environment))
	if cfg.Environment != "DEV" {
		cfg.Environment = "PROD"
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files when they exist.
// Variables already present in the environment are never overridden.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := godotenv.Read(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// MissingImportVars lists every variable an import needs that is not set:
// the database connection plus the branch and system user.
func (c *Config) MissingImportVars() []string {
	missing := c.Database.Missing()
	if strings.TrimSpace(c.Central.Branch) == "" {
		missing = append(missing, "CENTRAL_BRANCH")
	}
	if strings.TrimSpace(c.Central.SystemUserID) == "" {
		missing = append(missing, "CENTRAL_SYSTEM_USER_ID")
	}
	return missing
}

// Validate reports every missing database variable in one configuration error.
func (c *Config) Validate() error {
	if missing := c.Database.Missing(); len(missing) > 0 {
		return &domain.ErrConfiguration{Missing: missing}
	}
	return nil
}
