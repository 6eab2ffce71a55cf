package port

import (
	"context"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/domain"
)

// ImportStore opens the single transaction a batch import runs in.
type ImportStore interface {
	BeginImport(ctx context.Context) (ImportTx, error)
}

// ImportTx is one batch transaction. Generated ids are read back with lookups,
// the store does not return them from inserts.
type ImportTx interface {
	// Per-row isolation
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error

	// Profile
	InsertProfile(ctx context.Context, p *domain.ProfileInsert) (int64, error)
	FindProfileID(ctx context.Context, id string) (string, error)

	// Contacts
	InsertEmail(ctx context.Context, profileID, address string, a domain.Audit) error
	InsertPhone(ctx context.Context, profileID, number, branch string, a domain.Audit) error

	// Lead tracking
	FindLeadSourceID(ctx context.Context, value, branch string) (string, bool, error)
	InsertHit(ctx context.Context, h *domain.HitInsert) error
	FindHitID(ctx context.Context, profileID, leadSourceID string, createdOn time.Time) (string, error)
	InsertFollowup(ctx context.Context, f *domain.FollowupInsert) error
	InsertProductLead(ctx context.Context, pl *domain.ProductLeadInsert) error

	// Note
	InsertNote(ctx context.Context, comment string, a domain.Audit) error
	FindNoteID(ctx context.Context, comment, createdBy string) (string, error)
	LinkNote(ctx context.Context, profileID, noteID string) error

	// Placeholder rows
	InsertSatellite(ctx context.Context, t domain.SatelliteTable, profileID string, a domain.Audit) error

	Commit() error
	Rollback() error
}
