package service

import (
	"context"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/config"
	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/port"

	"go.uber.org/zap"
)

// ConnectionService reports whether the central store is configured and reachable.
type ConnectionService struct {
	db     config.DatabaseConfig
	pinger port.Pinger // nil when the configuration is incomplete
	now    func() time.Time
	logger *zap.Logger
}

// NewConnectionService creates a connection checker. pinger may be nil.
func NewConnectionService(db config.DatabaseConfig, pinger port.Pinger, logger *zap.Logger) *ConnectionService {
	return &ConnectionService{db: db, pinger: pinger, now: time.Now, logger: logger}
}

// TestConnection validates the configuration and pings the store. A failed
// ping is reported in the status, not returned as an error.
func (s *ConnectionService) TestConnection(ctx context.Context) (*domain.ConnectionStatus, error) {
	if missing := s.db.Missing(); len(missing) > 0 {
		return nil, &domain.ErrConfiguration{Missing: missing}
	}

	status := &domain.ConnectionStatus{
		Config: domain.ConnectionConfig{
			Host:     s.db.Host,
			Port:     s.db.Port,
			Database: s.db.Name,
			Dialect:  "mysql",
		},
		Timestamp: s.now().UTC().Format(time.RFC3339),
	}

	if s.pinger == nil {
		status.Message = "Database connection is not initialized"
		return status, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := s.pinger.Ping(ctx); err != nil {
		s.logger.Error("database connection test failed",
			zap.String("host", s.db.Host),
			zap.String("database", s.db.Name),
			zap.Error(err),
		)
		status.Message = "Database connection failed: " + err.Error()
		return status, nil
	}

	s.logger.Info("database connection test succeeded",
		zap.String("host", s.db.Host),
		zap.Duration("latency", time.Since(start)),
	)
	status.Success = true
	status.Message = "Database connection successful"
	return status, nil
}

// Check reports the configuration error store-backed routes answer with when
// the store could not be opened.
func (s *ConnectionService) Check() error {
	if missing := s.db.Missing(); len(missing) > 0 {
		return &domain.ErrConfiguration{Missing: missing}
	}
	return nil
}
