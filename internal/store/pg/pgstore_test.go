package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"permaudit.io/internal/store"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestGet(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`select value from kv_state where key = \$1`).
		WithArgs("lastScannedAt:org-1").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("1710498600123"))

	v, ok, err := s.Get(context.Background(), "lastScannedAt:org-1")
	if err != nil || !ok || v != "1710498600123" {
		t.Fatalf("unexpected get: %q %v %v", v, ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`select value from kv_state`).WillReturnError(sql.ErrNoRows)

	_, ok, err := s.Get(context.Background(), "absent")
	if err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestSetUpserts(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`insert into kv_state .* on conflict \(key\) do update`).
		WithArgs("lastScannedAt:org-1", "42").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Set(context.Background(), "lastScannedAt:org-1", "42"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSetMapsUndefinedTable(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`insert into kv_state`).WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "kv_state" does not exist`})

	err := s.Set(context.Background(), "k", "v")
	if !errors.Is(err, ErrSchemaMissing) {
		t.Fatalf("expected ErrSchemaMissing, got %v", err)
	}
}

func TestBlankKey(t *testing.T) {
	s, _ := newMock(t)
	if err := s.Set(context.Background(), "", "v"); !errors.Is(err, store.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, _, err := s.Get(context.Background(), " "); !errors.Is(err, store.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestEnsureSchemaAppliesEmbeddedMigrations(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`create table if not exists schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name from schema_migrations`).WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(`create table if not exists kv_state`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(`insert into schema_migrations`).
		WithArgs("0001_kv_state.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
