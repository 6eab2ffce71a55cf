package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/infra/observability"
	"github.com/boddenberg/central-sheets-import/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RowImporter materializes records into profile graphs inside one batch
// transaction. Each row runs under its own savepoint so a failing row leaves
// nothing behind while earlier rows stay pending for commit.
type RowImporter struct {
	store   port.ImportStore
	now     func() time.Time
	newID   func() string
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewRowImporter creates a row importer backed by the given store.
func NewRowImporter(store port.ImportStore, metrics *observability.Metrics, logger *zap.Logger) *RowImporter {
	return &RowImporter{store: store, now: time.Now, newID: uuid.NewString, metrics: metrics, logger: logger}
}

// WithClock returns a copy of the importer that stamps undated rows with now.
func (ri *RowImporter) WithClock(now func() time.Time) *RowImporter {
	cp := *ri
	cp.now = now
	return &cp
}

// WithIDs returns a copy of the importer that takes profile ids from newID.
func (ri *RowImporter) WithIDs(newID func() string) *RowImporter {
	cp := *ri
	cp.newID = newID
	return &cp
}

// ImportBatch imports records sequentially. Row-level failures are reported in
// the results and never returned. The returned error is either
// *domain.ErrMissingLeadSource (hard stop) or a batch-level store failure; in
// both cases the transaction has been rolled back and no row is successful.
func (ri *RowImporter) ImportBatch(ctx context.Context, records []domain.ExtractedRecord, branch, systemUserID string) (domain.InsertionResults, error) {
	ctx, span := tracer.Start(ctx, "RowImporter.ImportBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("import.rows", len(records)))

	start := time.Now()
	defer func() { ri.metrics.RecordStageDuration("insert", time.Since(start)) }()

	results := domain.NewInsertionResults()
	if len(records) == 0 {
		return results, nil
	}

	tx, err := ri.store.BeginImport(ctx)
	if err != nil {
		ri.logger.Error("failed to begin import transaction", zap.Error(err))
		return results, err
	}

	for i, rec := range records {
		savepoint := fmt.Sprintf("row_%d", i)
		if err := tx.Savepoint(ctx, savepoint); err != nil {
			return ri.abort(tx, results, records, i, err)
		}

		rowErr := ri.importRow(ctx, tx, rec, branch, systemUserID)
		if rowErr == nil {
			if err := tx.ReleaseSavepoint(ctx, savepoint); err != nil {
				return ri.abort(tx, results, records, i, err)
			}
			results.Successful = append(results.Successful, domain.RowResult{
				RowIndex: rec.RowIndex,
				Email:    rec.Email,
				Phone:    rec.Phone,
				Message:  domain.RowImported,
			})
			continue
		}

		if isBatchFatal(rowErr) {
			return ri.abort(tx, results, records, i, rowErr)
		}
		if err := tx.RollbackTo(ctx, savepoint); err != nil {
			return ri.abort(tx, results, records, i, err)
		}

		var dup *domain.ErrDuplicate
		if errors.As(rowErr, &dup) {
			ri.logger.Warn("row skipped: duplicate entry",
				zap.Int("row_index", rec.RowIndex),
				zap.String("email", rec.Email),
				zap.String("phone", rec.Phone),
			)
			results.Skipped = append(results.Skipped, domain.RowResult{
				RowIndex: rec.RowIndex,
				Email:    rec.Email,
				Phone:    rec.Phone,
				Reason:   domain.RowDuplicateEntry,
			})
			continue
		}

		ri.logger.Error("row failed",
			zap.Int("row_index", rec.RowIndex),
			zap.String("email", rec.Email),
			zap.String("phone", rec.Phone),
			zap.Error(rowErr),
		)
		results.Failed = append(results.Failed, domain.RowResult{
			RowIndex: rec.RowIndex,
			Email:    rec.Email,
			Phone:    rec.Phone,
			Reason:   domain.RowProcessingError,
			Error:    rowErr.Error(),
		})
	}

	if len(results.Successful) == 0 {
		if err := tx.Rollback(); err != nil {
			ri.logger.Warn("rollback failed", zap.Error(err))
		}
		ri.record(results)
		ri.logger.Info("no rows imported, transaction rolled back",
			zap.Int("failed", len(results.Failed)),
			zap.Int("skipped", len(results.Skipped)),
		)
		return results, nil
	}

	if err := tx.Commit(); err != nil {
		ri.logger.Error("commit failed", zap.Error(err))
		results = rolledBack(results, records, len(records), err)
		ri.record(results)
		return results, err
	}

	ri.record(results)
	ri.logger.Info("batch committed",
		zap.Int("successful", len(results.Successful)),
		zap.Int("failed", len(results.Failed)),
		zap.Int("skipped", len(results.Skipped)),
	)
	return results, nil
}

// importRow writes one profile graph. Any error leaves the caller to roll the
// row back to its savepoint.
func (ri *RowImporter) importRow(ctx context.Context, tx port.ImportTx, rec domain.ExtractedRecord, branch, userID string) error {
	createdOn := ri.today()
	if rec.RegistrationDate != nil {
		createdOn = *rec.RegistrationDate
	}
	audit := domain.Audit{CreatedOn: createdOn, UserID: userID}

	profileID := ri.newID()
	affected, err := tx.InsertProfile(ctx, &domain.ProfileInsert{
		ID:         profileID,
		FirstName:  rec.FirstName,
		LastName:   rec.LastName,
		GenderCode: rec.GenderCode,
		BirthDate:  rec.BirthDate,
		Age:        rec.Age,
		Occupation: rec.Occupation,
		Audit:      audit,
	})
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("insert profile: expected 1 affected row, got %d", affected)
	}

	// The id is ours; reading it back confirms the insert is visible in the tx.
	if _, err := tx.FindProfileID(ctx, profileID); err != nil {
		return fmt.Errorf("find profile id: %w", err)
	}

	if rec.Email != "" {
		if err := tx.InsertEmail(ctx, profileID, rec.Email, audit); err != nil {
			return fmt.Errorf("insert email: %w", err)
		}
	}
	if rec.Phone != "" {
		if err := tx.InsertPhone(ctx, profileID, rec.Phone, branch, audit); err != nil {
			return fmt.Errorf("insert phone: %w", err)
		}
	}

	if rec.HearUsFrom != "" {
		if err := ri.attachLead(ctx, tx, rec, profileID, branch, audit); err != nil {
			return err
		}
	}

	if rec.NoteText != "" {
		comment := fmt.Sprintf(domain.NoteProfilePrefixFmt, profileID, rec.NoteText)
		if err := tx.InsertNote(ctx, comment, audit); err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
		noteID, err := tx.FindNoteID(ctx, comment, userID)
		if err != nil {
			return fmt.Errorf("find note id: %w", err)
		}
		if err := tx.LinkNote(ctx, profileID, noteID); err != nil {
			return fmt.Errorf("link note: %w", err)
		}
	}

	for _, sat := range domain.SatelliteTables {
		if err := tx.InsertSatellite(ctx, sat, profileID, audit); err != nil {
			return fmt.Errorf("insert %s: %w", sat.Table, err)
		}
	}
	return nil
}

// attachLead creates the hit, its follow-up and both product leads.
func (ri *RowImporter) attachLead(ctx context.Context, tx port.ImportTx, rec domain.ExtractedRecord, profileID, branch string, audit domain.Audit) error {
	leadSourceID, ok, err := tx.FindLeadSourceID(ctx, rec.HearUsFrom, branch)
	if err != nil {
		return fmt.Errorf("find lead source: %w", err)
	}
	if !ok {
		return &domain.ErrMissingLeadSource{
			Value:     rec.HearUsFrom,
			Branch:    branch,
			RowIndex:  rec.RowIndex,
			Statement: SuggestLeadSourceStatement(rec.HearUsFrom, branch, audit.UserID),
		}
	}

	if err := tx.InsertHit(ctx, &domain.HitInsert{
		ProfileID:    profileID,
		LeadSourceID: leadSourceID,
		HitType:      domain.HitTypeWebsite,
		Branch:       branch,
		Audit:        audit,
	}); err != nil {
		return fmt.Errorf("insert hit: %w", err)
	}

	hitID, err := tx.FindHitID(ctx, profileID, leadSourceID, audit.CreatedOn)
	if err != nil {
		return fmt.Errorf("find hit id: %w", err)
	}

	if err := tx.InsertFollowup(ctx, &domain.FollowupInsert{
		ProfileID:          profileID,
		HitID:              hitID,
		TodoDate:           audit.CreatedOn.AddDate(0, 0, 1),
		TodoTime:           domain.FollowupTodoTime,
		Method:             domain.FollowupMethod,
		Result:             domain.FollowupResult,
		AssignedConsultant: audit.UserID,
		Product:            domain.FollowupProduct,
		FollowupType:       domain.FollowupType,
		Branch:             branch,
		Audit:              audit,
	}); err != nil {
		return fmt.Errorf("insert followup: %w", err)
	}

	for _, pl := range []domain.ProductLeadInsert{
		{ProfileID: profileID, HitID: hitID, Product: domain.ProductWithHit, Status: domain.ProductLeadStatus, Audit: audit},
		{ProfileID: profileID, Product: domain.ProductStandalone, Status: domain.ProductLeadStatus, Audit: audit},
	} {
		if err := tx.InsertProductLead(ctx, &pl); err != nil {
			return fmt.Errorf("insert product lead: %w", err)
		}
	}
	return nil
}

// abort rolls back the whole batch after row i hit a batch-fatal error.
func (ri *RowImporter) abort(tx port.ImportTx, results domain.InsertionResults, records []domain.ExtractedRecord, i int, cause error) (domain.InsertionResults, error) {
	if err := tx.Rollback(); err != nil {
		ri.logger.Warn("rollback failed", zap.Error(err))
	}

	rec := records[i]
	var missing *domain.ErrMissingLeadSource
	if errors.As(cause, &missing) {
		ri.logger.Error("missing lead source, batch rolled back",
			zap.Int("row_index", rec.RowIndex),
			zap.String("hear_us_from", missing.Value),
			zap.String("branch", missing.Branch),
		)
		results.Failed = append(results.Failed, domain.RowResult{
			RowIndex: rec.RowIndex,
			Email:    rec.Email,
			Phone:    rec.Phone,
			Reason:   domain.RowMissingLeadSource,
			Error:    cause.Error(),
		})
	} else {
		ri.logger.Error("batch aborted, transaction rolled back",
			zap.Int("row_index", rec.RowIndex),
			zap.Error(cause),
		)
		results.Failed = append(results.Failed, domain.RowResult{
			RowIndex: rec.RowIndex,
			Email:    rec.Email,
			Phone:    rec.Phone,
			Reason:   domain.RowProcessingError,
			Error:    cause.Error(),
		})
	}

	results = rolledBack(results, records, i+1, cause)
	ri.record(results)
	return results, cause
}

// rolledBack moves every successful row to failed and reports rows from
// next onward as not processed.
func rolledBack(results domain.InsertionResults, records []domain.ExtractedRecord, next int, cause error) domain.InsertionResults {
	for _, r := range results.Successful {
		r.Message = ""
		r.Reason = domain.RowRolledBack
		r.Error = cause.Error()
		results.Failed = append(results.Failed, r)
	}
	results.Successful = []domain.RowResult{}

	for _, rec := range records[next:] {
		results.Failed = append(results.Failed, domain.RowResult{
			RowIndex: rec.RowIndex,
			Email:    rec.Email,
			Phone:    rec.Phone,
			Reason:   domain.RowNotProcessed,
		})
	}
	return results
}

func (ri *RowImporter) record(results domain.InsertionResults) {
	ri.metrics.IncrRows("successful", len(results.Successful))
	ri.metrics.IncrRows("failed", len(results.Failed))
	ri.metrics.IncrRows("skipped", len(results.Skipped))
}

func (ri *RowImporter) today() time.Time {
	y, m, d := ri.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// isBatchFatal reports errors that end the batch instead of the row.
func isBatchFatal(err error) bool {
	var missing *domain.ErrMissingLeadSource
	var ext *domain.ErrExternalService
	return errors.As(err, &missing) || errors.As(err, &ext) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
