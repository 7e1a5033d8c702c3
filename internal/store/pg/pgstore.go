package pg

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"permaudit.io/internal/migrate"
	"permaudit.io/internal/store"
)

const pgErrUndefinedTable = "42P01"

// ErrSchemaMissing means kv_state does not exist yet; run migrations.
var ErrSchemaMissing = errors.New("pg: kv_state table missing")

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a PostgreSQL-backed store.KV.
type Store struct {
	db *sql.DB
}

var _ store.KV = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrator returns a migration manager over the embedded schema files.
func (s *Store) Migrator() *migrate.Manager {
	return migrate.NewManager(s.db, migrations, "migrations")
}

// EnsureSchema applies pending migrations.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.Migrator().Up(ctx)
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, store.ErrInvalidKey
	}
	var v string
	err := s.db.QueryRowContext(ctx, `select value from kv_state where key = $1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("get", err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return store.ErrInvalidKey
	}
	_, err := s.db.ExecContext(ctx, `
		insert into kv_state (key, value, updated_at)
		values ($1, $2, now())
		on conflict (key) do update
		set value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return wrap("set", err)
	}
	return nil
}

func wrap(op string, err error) error {
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUndefinedTable {
		return fmt.Errorf("pg %s: %w", op, ErrSchemaMissing)
	}
	return fmt.Errorf("pg %s: %w", op, err)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
