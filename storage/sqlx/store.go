// Package sqlxstore keeps the values in a postgres table.
package sqlxstore

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

var gooseRunFunc = goose.RunFS // mockable

type Store struct {
	db     *sqlx.DB
	prefix string
}

// Open connects to the database, waits for it and migrates it.
func Open(ctx context.Context, dsn, prefix string) (*Store, error) {
	db, err := Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s, err := New(db, prefix)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Connect opens the database and waits for it to be ready.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlxstore: open")
	}
	if err := ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// New wraps an open database after applying the pending migrations.
func New(db *sqlx.DB, prefix string) (*Store, error) {
	if err := Migrate(db.DB, "up"); err != nil {
		return nil, err
	}
	return &Store{db: db, prefix: prefix}, nil
}

// Migrate runs a goose command (up, down, redo, status, version, ...) with the embedded migrations.
func Migrate(db *sql.DB, command string, args ...string) error {
	if err := gooseRunFunc(command, db, migrationsFS, migrationsDir, args...); err != nil {
		return errors.Wrapf(err, "sqlxstore: migrate %s", command)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var val string
	err := s.db.GetContext(ctx, &val, `SELECT value FROM portal_kv WHERE key = $1`, s.prefix+key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "sqlxstore: get %s", key)
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portal_kv (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		s.prefix+key, value,
	)
	return errors.Wrapf(err, "sqlxstore: set %s", key)
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.prefix + k
	}
	query, args, err := sqlx.In(`DELETE FROM portal_kv WHERE key IN (?)`, prefixed)
	if err != nil {
		return errors.Wrap(err, "sqlxstore: building delete")
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	return errors.Wrap(err, "sqlxstore: delete")
}

func (s *Store) Close() error { return s.db.Close() }

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, db *sqlx.DB) error {
	var err error
	maxAttempts := 10
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "sqlxstore: ping")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "sqlxstore: ping timeout")
}
