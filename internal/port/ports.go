// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/central-sheets-import/internal/domain"
)

// SheetSource fetches authenticated tabular data from a spreadsheet.
type SheetSource interface {
	ListWorksheets(ctx context.Context, accessToken, spreadsheetID string) ([]domain.Worksheet, error)
	FetchRows(ctx context.Context, accessToken, spreadsheetID, worksheet string) (*domain.WorksheetData, error)
}

// ContactLookup answers batched existence checks against the store.
// Both methods return value -> owning profile id for every value found.
type ContactLookup interface {
	ExistingEmails(ctx context.Context, emails []string) (map[string]string, error)
	ExistingPhones(ctx context.Context, phones []string) (map[string]string, error)
}

// LeadSourceLookup resolves hear_us_from reference records.
type LeadSourceLookup interface {
	// FindLeadSource returns nil, nil when no active record exists for the branch.
	FindLeadSource(ctx context.Context, value, branch string) (*domain.LeadSource, error)
}

// Pinger checks store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReportPublisher publishes import summaries.
type ReportPublisher interface {
	PublishReport(ctx context.Context, evt *domain.ImportEvent) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	DeletePrefix(prefix string)
}

// OAuthProvider runs the Google authorization-code flow.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*domain.GoogleToken, error)
}
