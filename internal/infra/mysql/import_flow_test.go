package mysql

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/infra/observability"
	"github.com/boddenberg/central-sheets-import/internal/service"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"
)

const (
	testBranch = "9"
	testUser   = "sys-user"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func completeRecord(i int) domain.ExtractedRecord {
	age := 48
	return domain.ExtractedRecord{
		RowIndex:         i,
		FirstName:        fmt.Sprintf("Mei%d", i),
		LastName:         "Chan",
		Email:            fmt.Sprintf("mei%d@example.com", i),
		Phone:            fmt.Sprintf("9123456%d", i),
		GenderCode:       2,
		BirthDate:        date(1976, 11, 18),
		Age:              &age,
		Occupation:       "Engineer",
		RegistrationDate: date(2025, 5, 31),
		HearUsFrom:       "Instagram",
		NoteText:         "Joined via form",
	}
}

// expectRow registers every statement a complete row issues, in order.
func expectRow(mock sqlmock.Sqlmock, i int, rec domain.ExtractedRecord) {
	profileID := fmt.Sprintf("p-%d", i)
	hitID := fmt.Sprintf("h-%d", i)
	noteID := fmt.Sprintf("n-%d", i)
	created := "2025-05-31"
	comment := fmt.Sprintf("[Profile ID: %s]\n\n%s", profileID, rec.NoteText)

	mock.ExpectExec(fmt.Sprintf("SAVEPOINT row_%d", i)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertProfileSQL).
		WithArgs(profileID, rec.FirstName, rec.LastName, 2, "1976-11-18", 48, "Engineer", created, created, testUser, testUser).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(findProfileSQL).
		WithArgs(profileID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(profileID))
	mock.ExpectExec(insertEmailSQL).
		WithArgs(profileID, rec.Email, created, created, testUser, testUser).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertPhoneSQL).
		WithArgs(profileID, rec.Phone, testBranch, created, created, testUser, testUser).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(leadSourceQuery).
		WithArgs("Instagram", testBranch).
		WillReturnRows(sqlmock.NewRows([]string{"id", "hear_us_from", "lead_group"}).AddRow("ls-1", "Instagram", 38))
	mock.ExpectExec(insertHitSQL).
		WithArgs(profileID, "ls-1", created, created, testUser, testUser, 3, testBranch).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(findHitSQL).
		WithArgs(profileID, "ls-1", created).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(hitID))
	mock.ExpectExec(insertFollowupSQL).
		WithArgs(created, created, testUser, testUser, "2025-06-01", "09:00:00", 1, 2, testUser, 1, testBranch, profileID, hitID, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertProductLeadSQL).
		WithArgs(1, 1, profileID, hitID, created, created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertProductLeadSQL).
		WithArgs(1, 2, profileID, nil, created, created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertNoteSQL).
		WithArgs(comment, created, created, testUser, testUser).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(findNoteSQL).
		WithArgs(comment, testUser).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(noteID))
	mock.ExpectExec(linkNoteSQL).
		WithArgs(noteID, profileID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for _, st := range domain.SatelliteTables {
		mock.ExpectExec(satelliteSQL(st)).
			WithArgs(profileID, created, created, testUser, testUser).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec(fmt.Sprintf("RELEASE SAVEPOINT row_%d", i)).WillReturnResult(sqlmock.NewResult(0, 0))
}

// newImporter numbers profile ids p-0, p-1, ... in row order.
func newImporter(store *Store) *service.RowImporter {
	n := 0
	return service.NewRowImporter(store, observability.NewMetrics(), zap.NewNop()).
		WithIDs(func() string {
			id := fmt.Sprintf("p-%d", n)
			n++
			return id
		})
}

func TestImportBatch_CompleteRowWritesWholeGraph(t *testing.T) {
	store, mock := newMockStore(t)
	rec := completeRecord(0)

	mock.ExpectBegin()
	expectRow(mock, 0, rec)
	mock.ExpectCommit()

	results, err := newImporter(store).ImportBatch(context.Background(), []domain.ExtractedRecord{rec}, testBranch, testUser)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results.Successful) != 1 || len(results.Failed) != 0 || len(results.Skipped) != 0 {
		t.Fatalf("unexpected results %+v", results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestImportBatch_SameNameRowsKeepTheirOwnGraphs(t *testing.T) {
	store, mock := newMockStore(t)
	first := completeRecord(0)
	second := completeRecord(1)
	second.FirstName = first.FirstName

	// Each row binds its own profile id into every dependent insert.
	mock.ExpectBegin()
	expectRow(mock, 0, first)
	expectRow(mock, 1, second)
	mock.ExpectCommit()

	results, err := newImporter(store).ImportBatch(context.Background(), []domain.ExtractedRecord{first, second}, testBranch, testUser)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results.Successful) != 2 {
		t.Fatalf("unexpected results %+v", results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestImportBatch_DuplicateEntryRollsBackToSavepoint(t *testing.T) {
	store, mock := newMockStore(t)
	first := completeRecord(0)
	second := completeRecord(1)

	mock.ExpectBegin()
	expectRow(mock, 0, first)
	mock.ExpectExec("SAVEPOINT row_1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertProfileSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(findProfileSQL).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p-1"))
	mock.ExpectExec(insertEmailSQL).WillReturnError(dupEntryErr())
	mock.ExpectExec("ROLLBACK TO SAVEPOINT row_1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	results, err := newImporter(store).ImportBatch(context.Background(), []domain.ExtractedRecord{first, second}, testBranch, testUser)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results.Successful) != 1 || len(results.Skipped) != 1 {
		t.Fatalf("unexpected results %+v", results)
	}
	if results.Skipped[0].Reason != domain.RowDuplicateEntry || results.Skipped[0].RowIndex != 1 {
		t.Errorf("unexpected skipped row %+v", results.Skipped[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestImportBatch_MissingLeadSourceRollsBackEverything(t *testing.T) {
	store, mock := newMockStore(t)
	first := completeRecord(0)
	second := completeRecord(1)
	second.HearUsFrom = "Radio"

	mock.ExpectBegin()
	expectRow(mock, 0, first)
	mock.ExpectExec("SAVEPOINT row_1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertProfileSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(findProfileSQL).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p-1"))
	mock.ExpectExec(insertEmailSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertPhoneSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(leadSourceQuery).
		WithArgs("Radio", testBranch).
		WillReturnRows(sqlmock.NewRows([]string{"id", "hear_us_from", "lead_group"}))
	mock.ExpectRollback()

	results, err := newImporter(store).ImportBatch(context.Background(), []domain.ExtractedRecord{first, second}, testBranch, testUser)

	var missing *domain.ErrMissingLeadSource
	if !errors.As(err, &missing) {
		t.Fatalf("expected ErrMissingLeadSource, got %v", err)
	}
	if missing.Value != "Radio" || missing.RowIndex != 1 {
		t.Errorf("unexpected error detail %+v", missing)
	}
	if len(results.Successful) != 0 {
		t.Errorf("expected zero successful rows, got %d", len(results.Successful))
	}
	if len(results.Failed) != 2 {
		t.Errorf("expected both rows reported as failed, got %+v", results.Failed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestImportBatch_BeginFailureIsTransportError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(serverGoneErr())

	_, err := newImporter(store).ImportBatch(context.Background(), []domain.ExtractedRecord{completeRecord(0)}, testBranch, testUser)
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}
