package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/config"
	"github.com/boddenberg/central-sheets-import/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "mysql"), zap.NewNop()), mock
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db.local", Port: "3306", Name: "central", User: "importer", Password: "s3cret"})

	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if cfg.Addr != "db.local:3306" || cfg.DBName != "central" || cfg.User != "importer" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if !cfg.ParseTime {
		t.Error("expected parseTime")
	}
}

func TestExistingEmails(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT profile_id, address AS value FROM profile_email WHERE address IN (?, ?)").
		WithArgs("a@example.com", "b@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"profile_id", "value"}).AddRow("p-9", "b@example.com"))

	found, err := store.ExistingEmails(context.Background(), []string{"a@example.com", "b@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 1 || found["b@example.com"] != "p-9" {
		t.Errorf("unexpected result %v", found)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestExistingPhones_EmptyInputSkipsQuery(t *testing.T) {
	store, mock := newMockStore(t)

	found, err := store.ExistingPhones(context.Background(), nil)
	if err != nil || len(found) != 0 {
		t.Fatalf("expected empty result, got %v %v", found, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestExistingPhones_ConnectionLost(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT profile_id, number AS value FROM profile_phone WHERE number IN (?)").
		WithArgs("91234567").
		WillReturnError(&gomysql.MySQLError{Number: 2013, Message: "Lost connection to MySQL server during query"})

	_, err := store.ExistingPhones(context.Background(), []string{"91234567"})
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}

func TestFindLeadSource(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(leadSourceQuery).
		WithArgs("Instagram", "9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "hear_us_from", "lead_group"}).AddRow("ls-1", "Instagram", 38))
	mock.ExpectQuery(leadSourceQuery).
		WithArgs("Radio", "9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "hear_us_from", "lead_group"}))

	ls, err := store.FindLeadSource(context.Background(), "Instagram", "9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ls == nil || ls.ID != "ls-1" || ls.LeadGroup == nil || *ls.LeadGroup != 38 {
		t.Errorf("unexpected lead source %+v", ls)
	}

	missing, err := store.FindLeadSource(context.Background(), "Radio", "9")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for a missing value, got %+v %v", missing, err)
	}
}

func TestClassify(t *testing.T) {
	var dup *domain.ErrDuplicate
	if err := classify("insert email", &gomysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'address'"}); !errors.As(err, &dup) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	var ext *domain.ErrExternalService
	for _, cause := range []error{
		&gomysql.MySQLError{Number: 1213, Message: "Deadlock found"},
		&gomysql.MySQLError{Number: 2006, Message: "MySQL server has gone away"},
		driver.ErrBadConn,
		gomysql.ErrInvalidConn,
	} {
		if err := classify("insert profile", cause); !errors.As(err, &ext) {
			t.Errorf("expected ErrExternalService for %v, got %v", cause, err)
		}
	}

	plain := classify("insert profile", &gomysql.MySQLError{Number: 1364, Message: "Field 'x' doesn't have a default value"})
	if errors.As(plain, &ext) || errors.As(plain, &dup) {
		t.Errorf("expected a plain wrapped error, got %T", plain)
	}
	if classify("noop", nil) != nil {
		t.Error("expected nil for nil")
	}
}

func TestSatelliteSQL(t *testing.T) {
	got := satelliteSQL(domain.SatelliteTable{Table: "profile_spoken_language", Column: "language", Value: 1})
	want := "INSERT INTO profile_spoken_language (id, profile_id, language, created_on, updated_on, created_by, updated_by, deleted, version) VALUES (UUID(), ?, 1, ?, ?, ?, ?, 0, 0)"
	if got != want {
		t.Errorf("unexpected sql:\n%s", got)
	}
}

func TestSavepoint_RejectsUnsafeNames(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()

	tx, err := store.BeginImport(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tx.Savepoint(context.Background(), "row_1; DROP TABLE profile"); err == nil {
		t.Error("expected invalid savepoint name to be rejected")
	}
}

func TestInsertProfile_ReturnsAffectedRows(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(insertProfileSQL).
		WithArgs("3f1c2a9e-7b41-4c55-9d0e-5a2b8c6d7e01", "Sam", "Lee", 1, nil, nil, nil, "2025-06-15", "2025-06-15", "sys-user", "sys-user").
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := store.BeginImport(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := tx.InsertProfile(context.Background(), &domain.ProfileInsert{
		ID:         "3f1c2a9e-7b41-4c55-9d0e-5a2b8c6d7e01",
		FirstName:  "Sam",
		LastName:   "Lee",
		GenderCode: 1,
		Audit:      domain.Audit{CreatedOn: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), UserID: "sys-user"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 affected rows, got %d", n)
	}
}
