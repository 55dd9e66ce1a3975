package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/assaytrack/apiserver/internal/apperr"
	"github.com/assaytrack/apiserver/types"
)

func newUserRepoWithMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewUserRepository(db), mock, db
}

func userRow(id int, email string, role types.Role) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "name", "role", "company", "phone", "active", "verified",
		"password_hash", "last_login_at", "created_at", "updated_at",
	}).AddRow(id, email, "Alice", string(role), "", "", true, false, "hash", nil, now, now)
}

func TestUserGetByEmail_CaseInsensitive(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+.+\s+FROM\s+users\s+WHERE\s+lower\(email\)\s+=\s+lower\(\$1\)`).
		WithArgs("alice@acme.example").
		WillReturnRows(userRow(1, "alice@acme.example", types.RoleClient))

	user, err := repo.GetByEmail(context.Background(), " alice@acme.example ")
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	if user.ID != 1 || user.Role != types.RoleClient {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+.+\s+FROM\s+users\s+WHERE\s+id\s+=\s+\$1`).
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUserCreate(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+users`).
		WithArgs("alice@acme.example", "Alice", "CLIENT", "", "", true, false, "hash",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	user, err := repo.Create(context.Background(), types.User{
		Email:        "alice@acme.example",
		Name:         "Alice",
		Role:         types.RoleClient,
		Active:       true,
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if user.ID != 1 {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestUserCreate_DuplicateEmailIsConflict(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+users`).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.Create(context.Background(), types.User{Email: "alice@acme.example"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUserUpdate_MissingRowIsNotFound(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+email`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Update(context.Background(), types.User{ID: 99})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTouchLastLogin(t *testing.T) {
	repo, mock, db := newUserRepoWithMock(t)
	defer db.Close()

	at := time.Now().UTC()
	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+last_login_at\s+=\s+\$1\s+WHERE\s+id\s+=\s+\$2`).
		WithArgs(at, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.TouchLastLogin(context.Background(), 1, at); err != nil {
		t.Fatalf("TouchLastLogin error: %v", err)
	}
}
