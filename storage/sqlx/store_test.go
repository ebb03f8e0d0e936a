package sqlxstore

import (
	"database/sql"
	"io/fs"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trezcool/goose"
)

func TestNew_migrates(t *testing.T) {
	defer func() { gooseRunFunc = goose.RunFS }()

	// no connection is made until a query runs
	db, err := sqlx.Open("postgres", "postgres://masomo@127.0.0.1:1/masomo?sslmode=disable")
	require.NoError(t, err)
	defer db.Close()

	type run struct {
		command, dir string
		args         []string
	}
	var runs []run
	gooseRunFunc = func(command string, _ *sql.DB, fsys fs.FS, dir string, args ...string) error {
		runs = append(runs, run{command, dir, args})
		_, err := fs.Stat(fsys, dir+"/00001_create_portal_kv.sql")
		return err
	}

	s, err := New(db, "test:")
	require.NoError(t, err)
	assert.Equal(t, "test:", s.prefix)

	require.NoError(t, Migrate(db.DB, "down-to", "0"))
	assert.Equal(t, []run{{command: "up", dir: "migrations"}, {command: "down-to", dir: "migrations", args: []string{"0"}}}, runs)

	gooseRunFunc = func(string, *sql.DB, fs.FS, string, ...string) error {
		return errors.New("no such command")
	}
	_, err = New(db, "")
	assert.EqualError(t, err, "sqlxstore: migrate up: no such command")
}

func TestMigrations(t *testing.T) {
	data, err := fs.ReadFile(migrationsFS, "migrations/00001_create_portal_kv.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- +goose Up")
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS portal_kv")
	assert.Contains(t, string(data), "-- +goose Down")
}
