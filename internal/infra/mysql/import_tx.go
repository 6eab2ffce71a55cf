package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/port"

	"github.com/jmoiron/sqlx"
)

// BeginImport opens the batch transaction.
func (s *Store) BeginImport(ctx context.Context) (port.ImportTx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classify("begin import", err)
	}
	return &importTx{tx: tx}, nil
}

type importTx struct {
	tx *sqlx.Tx
}

// day renders the date-only value the central schema stores in audit columns.
func day(t time.Time) string {
	return t.Format(domain.DateLayout)
}

func nullableDay(t *time.Time) any {
	if t == nil {
		return nil
	}
	return day(*t)
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ============================================================
// Savepoints
// ============================================================

var savepointName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (t *importTx) savepointExec(ctx context.Context, stmt, name string) error {
	if !savepointName.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	if _, err := t.tx.ExecContext(ctx, stmt+" "+name); err != nil {
		return classify(stmt, err)
	}
	return nil
}

func (t *importTx) Savepoint(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "SAVEPOINT", name)
}

func (t *importTx) RollbackTo(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "ROLLBACK TO SAVEPOINT", name)
}

func (t *importTx) ReleaseSavepoint(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "RELEASE SAVEPOINT", name)
}

// ============================================================
// Profile
// ============================================================

const insertProfileSQL = `INSERT INTO profile (id, first_name, last_name, gender, birthdate, age, job_text, created_on, updated_on, created_by, updated_by, deleted, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0)`

func (t *importTx) InsertProfile(ctx context.Context, p *domain.ProfileInsert) (int64, error) {
	res, err := t.tx.ExecContext(ctx, insertProfileSQL,
		p.ID, p.FirstName, p.LastName, p.GenderCode,
		nullableDay(p.BirthDate), nullableInt(p.Age), nullableString(p.Occupation),
		day(p.CreatedOn), day(p.CreatedOn), p.UserID, p.UserID,
	)
	if err != nil {
		return 0, classify("insert profile", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("insert profile", err)
	}
	return n, nil
}

const findProfileSQL = "SELECT id FROM profile WHERE id = ?"

// FindProfileID confirms the profile inserted under id is visible in the tx.
func (t *importTx) FindProfileID(ctx context.Context, id string) (string, error) {
	return t.getID(ctx, "find profile id", findProfileSQL, id)
}

// getID runs a single-id lookup. A missing row is an error: every lookup here
// follows an insert in the same transaction.
func (t *importTx) getID(ctx context.Context, op, query string, args ...any) (string, error) {
	var id string
	err := t.tx.GetContext(ctx, &id, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: no row returned after insert", op)
	}
	if err != nil {
		return "", classify(op, err)
	}
	return id, nil
}

// ============================================================
// Contacts
// ============================================================

const insertEmailSQL = `INSERT INTO profile_email (id, profile_id, address, created_on, updated_on, created_by, updated_by, deleted, version)
VALUES (UUID(), ?, ?, ?, ?, ?, ?, 0, 0)`

func (t *importTx) InsertEmail(ctx context.Context, profileID, address string, a domain.Audit) error {
	_, err := t.tx.ExecContext(ctx, insertEmailSQL, profileID, address, day(a.CreatedOn), day(a.CreatedOn), a.UserID, a.UserID)
	return classify("insert email", err)
}

const insertPhoneSQL = `INSERT INTO profile_phone (id, profile_id, number, branch_id, created_on, updated_on, created_by, updated_by, deleted, version)
VALUES (UUID(), ?, ?, ?, ?, ?, ?, ?, 0, 0)`

func (t *importTx) InsertPhone(ctx context.Context, profileID, number, branch string, a domain.Audit) error {
	_, err := t.tx.ExecContext(ctx, insertPhoneSQL, profileID, number, branch, day(a.CreatedOn), day(a.CreatedOn), a.UserID, a.UserID)
	return classify("insert phone", err)
}

// ============================================================
// Lead tracking
// ============================================================

func (t *importTx) FindLeadSourceID(ctx context.Context, value, branch string) (string, bool, error) {
	var row leadSourceRow
	err := t.tx.GetContext(ctx, &row, leadSourceQuery, value, branch)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("find lead source", err)
	}
	return row.ID, true, nil
}

const insertHitSQL = `INSERT INTO hit (id, profile_id, hear_us_from, created_on, updated_on, created_by, updated_by, hit_type, deleted, version, branch)
VALUES (UUID(), ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)`

func (t *importTx) InsertHit(ctx context.Context, h *domain.HitInsert) error {
	_, err := t.tx.ExecContext(ctx, insertHitSQL,
		h.ProfileID, h.LeadSourceID, day(h.CreatedOn), day(h.CreatedOn), h.UserID, h.UserID, h.HitType, h.Branch,
	)
	return classify("insert hit", err)
}

const findHitSQL = "SELECT id FROM hit WHERE profile_id = ? AND hear_us_from = ? AND created_on = ? ORDER BY created_on DESC LIMIT 1"

func (t *importTx) FindHitID(ctx context.Context, profileID, leadSourceID string, createdOn time.Time) (string, error) {
	return t.getID(ctx, "find hit id", findHitSQL, profileID, leadSourceID, day(createdOn))
}

const insertFollowupSQL = `INSERT INTO followup (id, created_on, updated_on, created_by, updated_by, todo_date, todo_time, method, result, assigned_consultant, product, branch, profile_id, hit_id, followup_type, deleted, version)
VALUES (UUID(), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0)`

func (t *importTx) InsertFollowup(ctx context.Context, f *domain.FollowupInsert) error {
	_, err := t.tx.ExecContext(ctx, insertFollowupSQL,
		day(f.CreatedOn), day(f.CreatedOn), f.UserID, f.UserID,
		day(f.TodoDate), f.TodoTime, f.Method, f.Result, f.AssignedConsultant,
		f.Product, f.Branch, f.ProfileID, f.HitID, f.FollowupType,
	)
	return classify("insert followup", err)
}

const insertProductLeadSQL = `INSERT INTO profile_product_lead (id, status, deleted, product, profile_id, hit_id, created_on, updated_on, version)
VALUES (UUID(), ?, 0, ?, ?, ?, ?, ?, 0)`

func (t *importTx) InsertProductLead(ctx context.Context, pl *domain.ProductLeadInsert) error {
	_, err := t.tx.ExecContext(ctx, insertProductLeadSQL,
		pl.Status, pl.Product, pl.ProfileID, nullableString(pl.HitID), day(pl.CreatedOn), day(pl.CreatedOn),
	)
	return classify("insert product lead", err)
}

// ============================================================
// Note
// ============================================================

const insertNoteSQL = `INSERT INTO post_it (id, comment, created_on, updated_on, created_by, updated_by, deleted, version)
VALUES (UUID(), ?, ?, ?, ?, ?, 0, 0)`

func (t *importTx) InsertNote(ctx context.Context, comment string, a domain.Audit) error {
	_, err := t.tx.ExecContext(ctx, insertNoteSQL, comment, day(a.CreatedOn), day(a.CreatedOn), a.UserID, a.UserID)
	return classify("insert note", err)
}

const findNoteSQL = "SELECT id FROM post_it WHERE comment = ? AND created_by = ? ORDER BY created_on DESC LIMIT 1"

func (t *importTx) FindNoteID(ctx context.Context, comment, createdBy string) (string, error) {
	return t.getID(ctx, "find note id", findNoteSQL, comment, createdBy)
}

const linkNoteSQL = "UPDATE profile SET post_it = ? WHERE id = ?"

func (t *importTx) LinkNote(ctx context.Context, profileID, noteID string) error {
	_, err := t.tx.ExecContext(ctx, linkNoteSQL, noteID, profileID)
	return classify("link note", err)
}

// ============================================================
// Satellite placeholders
// ============================================================

// satelliteSQL builds the placeholder insert. Table and column names come from
// domain.SatelliteTables, never from input.
func satelliteSQL(st domain.SatelliteTable) string {
	if st.Column == "" {
		return fmt.Sprintf("INSERT INTO %s (id, profile_id, created_on, updated_on, created_by, updated_by, deleted, version) VALUES (UUID(), ?, ?, ?, ?, ?, 0, 0)", st.Table)
	}
	return fmt.Sprintf("INSERT INTO %s (id, profile_id, %s, created_on, updated_on, created_by, updated_by, deleted, version) VALUES (UUID(), ?, %d, ?, ?, ?, ?, 0, 0)",
		st.Table, st.Column, st.Value)
}

func (t *importTx) InsertSatellite(ctx context.Context, st domain.SatelliteTable, profileID string, a domain.Audit) error {
	_, err := t.tx.ExecContext(ctx, satelliteSQL(st), profileID, day(a.CreatedOn), day(a.CreatedOn), a.UserID, a.UserID)
	return classify("insert "+st.Table, err)
}

// ============================================================
// Completion
// ============================================================

func (t *importTx) Commit() error {
	return classify("commit", t.tx.Commit())
}

func (t *importTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return classify("rollback", err)
}
