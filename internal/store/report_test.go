package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/assaytrack/apiserver/internal/apperr"
	"github.com/assaytrack/apiserver/types"
)

func newReportRepoWithMock(t *testing.T) (*ReportRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewReportRepository(db), mock, db
}

func reportViewRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "code", "sample_id", "grade", "unit", "certified", "hash", "qr_code",
		"notes", "issued_by", "issued_at", "valid_until",
		"sample_code", "mineral", "site_name", "client_id",
		"name", "email", "company",
	})
}

func addReportViewRow(rows *sqlmock.Rows, id int, code string, clientID int) *sqlmock.Rows {
	return rows.AddRow(id, code, 7, 2.37, "PERCENT", true, strings.Repeat("A", 64), "",
		"", 20, time.Now(), nil,
		"RC-260001", "CU", "North Ridge", clientID,
		"Acme Mining", "ops@acme.example", "Acme")
}

func TestCreateIssued_FlipsSampleInOneTx(t *testing.T) {
	repo, mock, db := newReportRepoWithMock(t)
	defer db.Close()

	issuedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+reports`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectExec(`(?s)UPDATE\s+samples\s+SET\s+status\s+=\s+\$1`).
		WithArgs(string(types.StatusReported), 2.37, issuedAt, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+timeline_events`).
		WithArgs(7, string(types.StatusReported), "Report RPT-RC-260001 generated", 20, issuedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	report, err := repo.CreateIssued(context.Background(), types.Report{
		Code:     "RPT-RC-260001",
		SampleID: 7,
		Grade:    2.37,
		Unit:     types.UnitPercent,
		Hash:     strings.Repeat("A", 64),
		IssuedBy: 20,
		IssuedAt: issuedAt,
	}, "Report RPT-RC-260001 generated")
	if err != nil {
		t.Fatalf("CreateIssued error: %v", err)
	}
	if report.ID != 5 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateIssued_SecondReportIsConflict(t *testing.T) {
	repo, mock, db := newReportRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+reports`).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := repo.CreateIssued(context.Background(), types.Report{SampleID: 7}, "")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestExistsForSample(t *testing.T) {
	repo, mock, db := newReportRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+EXISTS`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsForSample(context.Background(), 7)
	if err != nil {
		t.Fatalf("ExistsForSample error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists")
	}
}

func TestGetViewByCode(t *testing.T) {
	repo, mock, db := newReportRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+.+FROM\s+reports\s+r\s+JOIN\s+samples\s+s\s+ON.+WHERE\s+r\.code\s+=\s+\$1`).
		WithArgs("RPT-RC-260001").
		WillReturnRows(addReportViewRow(reportViewRows(), 5, "RPT-RC-260001", 10))

	view, clientID, err := repo.GetViewByCode(context.Background(), " RPT-RC-260001 ")
	if err != nil {
		t.Fatalf("GetViewByCode error: %v", err)
	}
	if clientID != 10 || view.SampleCode != "RC-260001" || view.ClientName != "Acme Mining" {
		t.Fatalf("unexpected view: clientID=%d view=%+v", clientID, view)
	}
}

func TestGetViewByCode_NotFound(t *testing.T) {
	repo, mock, db := newReportRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+.+FROM\s+reports`).
		WithArgs("RPT-RC-269999").
		WillReturnError(sql.ErrNoRows)

	_, _, err := repo.GetViewByCode(context.Background(), "RPT-RC-269999")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateCertified_MissingRowIsNotFound(t *testing.T) {
	repo, mock, db := newReportRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE\s+reports\s+SET\s+certified`).
		WithArgs(true, 99).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateCertified(context.Background(), 99, true)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestList_ScopedToClient(t *testing.T) {
	repo, mock, db := newReportRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+COUNT\(1\)\s+FROM\s+reports\s+r\s+JOIN\s+samples\s+s.+WHERE\s+s\.client_id\s+=\s+\$1`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`(?s)SELECT\s+.+FROM\s+reports\s+r.+WHERE\s+s\.client_id\s+=\s+\$1\s+ORDER\s+BY\s+r\.issued_at\s+DESC.+OFFSET\s+\$2\s+LIMIT\s+\$3`).
		WithArgs(10, 0, 20).
		WillReturnRows(addReportViewRow(reportViewRows(), 5, "RPT-RC-260001", 10))

	views, total, err := repo.List(context.Background(), 10, 0, 20)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if total != 1 || len(views) != 1 || views[0].Report.Code != "RPT-RC-260001" {
		t.Fatalf("unexpected result: total=%d views=%+v", total, views)
	}
}
