// Package storage persists the client-side session state (credentials, identity, role, school).
package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/storage/file"
	"github.com/trezcool/masomo-portal/storage/inmem"
	"github.com/trezcool/masomo-portal/storage/redis"
	"github.com/trezcool/masomo-portal/storage/sqlx"
)

// Keys
const (
	KeyAccess   = "access"
	KeyRefresh  = "refresh"
	KeyUser     = "user"
	KeyRole     = "role"
	KeySchoolID = "school_id"
)

// SessionKeys are every key written by the session; logout clears them all.
var SessionKeys = []string{KeyAccess, KeyRefresh, KeyUser, KeyRole, KeySchoolID}

// Store is a durable string key-value store.
// Get reports whether the key exists; deleting a missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

var (
	_ Store = (*inmemstore.Store)(nil)
	_ Store = (*filestore.Store)(nil)
	_ Store = (*redisstore.Store)(nil)
	_ Store = (*sqlxstore.Store)(nil)
)

// Open opens the store selected by conf.Driver: memory | file | redis | postgres.
func Open(ctx context.Context, conf core.StorageConfig) (Store, error) {
	switch conf.Driver {
	case "", "memory":
		return inmemstore.New(), nil
	case "file":
		return filestore.Open(conf.Path)
	case "redis":
		return redisstore.Open(ctx, redisstore.Options{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
			DB:       conf.RedisDB,
			Prefix:   conf.Prefix,
		})
	case "postgres":
		return sqlxstore.Open(ctx, conf.DatabaseURL, conf.Prefix)
	}
	return nil, errors.Errorf("storage: unknown driver %q", conf.Driver)
}
