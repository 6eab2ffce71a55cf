package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/boddenberg/central-sheets-import/internal/domain"

	"github.com/jmoiron/sqlx"
)

type contactRow struct {
	ProfileID string `db:"profile_id"`
	Value     string `db:"value"`
}

// ExistingEmails returns address -> profile id for every address already stored.
func (s *Store) ExistingEmails(ctx context.Context, emails []string) (map[string]string, error) {
	return s.existing(ctx, "existing emails",
		"SELECT profile_id, address AS value FROM profile_email WHERE address IN (?)", emails)
}

// ExistingPhones returns number -> profile id for every number already stored.
func (s *Store) ExistingPhones(ctx context.Context, phones []string) (map[string]string, error) {
	return s.existing(ctx, "existing phones",
		"SELECT profile_id, number AS value FROM profile_phone WHERE number IN (?)", phones)
}

func (s *Store) existing(ctx context.Context, op, query string, values []string) (map[string]string, error) {
	found := make(map[string]string)
	if len(values) == 0 {
		return found, nil
	}

	q, args, err := sqlx.In(query, values)
	if err != nil {
		return nil, err
	}

	var rows []contactRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, classify(op, err)
	}
	for _, r := range rows {
		if _, ok := found[r.Value]; !ok {
			found[r.Value] = r.ProfileID
		}
	}
	return found, nil
}

type leadSourceRow struct {
	ID         string        `db:"id"`
	HearUsFrom string        `db:"hear_us_from"`
	LeadGroup  sql.NullInt64 `db:"lead_group"`
}

const leadSourceQuery = "SELECT id, hear_us_from, lead_group FROM hear_us_from WHERE hear_us_from = ? AND branch = ? AND deleted = 0 LIMIT 1"

// FindLeadSource returns the active reference record for value in branch, or nil.
func (s *Store) FindLeadSource(ctx context.Context, value, branch string) (*domain.LeadSource, error) {
	var row leadSourceRow
	err := s.db.GetContext(ctx, &row, leadSourceQuery, value, branch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find lead source", err)
	}

	ls := &domain.LeadSource{Value: row.HearUsFrom, ID: row.ID}
	if row.LeadGroup.Valid {
		g := row.LeadGroup.Int64
		ls.LeadGroup = &g
	}
	return ls, nil
}
