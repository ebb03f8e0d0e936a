// Package redisstore keeps the values in redis, under a key prefix.
package redisstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const dialTimeout = 5 * time.Second

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type Store struct {
	rdb    *redis.Client
	prefix string
}

// Open connects to redis and pings it.
func Open(ctx context.Context, opts Options) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: dialTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "redisstore: ping %s", opts.Addr)
	}
	return New(rdb, opts.Prefix), nil
}

// New wraps an existing client.
func New(rdb *redis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "redisstore: get %s", key)
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return errors.Wrapf(s.rdb.Set(ctx, s.key(key), value, 0).Err(), "redisstore: set %s", key)
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}
	return errors.Wrap(s.rdb.Del(ctx, prefixed...).Err(), "redisstore: del")
}

func (s *Store) Close() error { return s.rdb.Close() }
