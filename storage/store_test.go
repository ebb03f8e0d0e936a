package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/storage/file"
	"github.com/trezcool/masomo-portal/storage/redis"
)

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, ok, err := s.Get(ctx, KeyAccess)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, KeyAccess, "a.b.c"))
	require.NoError(t, s.Set(ctx, KeyRole, "teacher"))
	require.NoError(t, s.Set(ctx, KeyRole, "admin"))

	val, ok, err := s.Get(ctx, KeyAccess)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a.b.c", val)

	val, _, _ = s.Get(ctx, KeyRole)
	assert.Equal(t, "admin", val)

	require.NoError(t, s.Set(ctx, KeySchoolID, ""))
	val, ok, _ = s.Get(ctx, KeySchoolID)
	assert.True(t, ok)
	assert.Equal(t, "", val)

	require.NoError(t, s.Delete(ctx, SessionKeys...))
	require.NoError(t, s.Delete(ctx, SessionKeys...)) // missing keys
	require.NoError(t, s.Delete(ctx))
	for _, key := range SessionKeys {
		_, ok, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}

func TestStores(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		s, err := Open(context.Background(), core.StorageConfig{Driver: "memory"})
		require.NoError(t, err)
		testStore(t, s)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "masomo", "session.json")
		s, err := Open(context.Background(), core.StorageConfig{Driver: "file", Path: path})
		require.NoError(t, err)
		testStore(t, s)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		s, err := Open(context.Background(), core.StorageConfig{Driver: "redis", RedisAddr: mr.Addr(), Prefix: "masomo:"})
		require.NoError(t, err)
		defer s.Close()
		testStore(t, s)

		require.NoError(t, s.Set(context.Background(), KeyUser, `{"id": 1}`))
		assert.True(t, mr.Exists("masomo:user"))
	})

	t.Run("postgres", func(t *testing.T) {
		dsn := os.Getenv("TEST_DATABASE_URL")
		if dsn == "" {
			t.Skip("TEST_DATABASE_URL not set")
		}
		s, err := Open(context.Background(), core.StorageConfig{Driver: "postgres", DatabaseURL: dsn, Prefix: "test:"})
		require.NoError(t, err)
		defer s.Close()
		testStore(t, s)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(context.Background(), core.StorageConfig{Driver: "etcd"})
		assert.EqualError(t, err, `storage: unknown driver "etcd"`)
	})
}

func TestFileStore_persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	s, err := filestore.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyRefresh, "r.e.f"))

	reopened, err := filestore.Open(path)
	require.NoError(t, err)
	val, ok, err := reopened.Get(ctx, KeyRefresh)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "r.e.f", val)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = filestore.Open(path)
	assert.Error(t, err)
}

func TestFileStore_failedWrite(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "masomo")
	s, err := filestore.Open(filepath.Join(dir, "session.json"))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyRole, "teacher"))

	// the directory turns into a plain file: nothing can be written anymore
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o600))

	assert.Error(t, s.Set(ctx, KeyRole, "admin"))
	assert.Error(t, s.Set(ctx, KeyAccess, "a.b.c"))
	assert.Error(t, s.Delete(ctx, KeyRole))

	val, ok, err := s.Get(ctx, KeyRole)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "teacher", val)
	_, ok, _ = s.Get(ctx, KeyAccess)
	assert.False(t, ok)
}

func TestRedisStore_unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := redisstore.Open(context.Background(), redisstore.Options{Addr: addr})
	assert.Error(t, err)

	// New does not dial
	s := redisstore.New(redis.NewClient(&redis.Options{Addr: addr}), "")
	assert.NoError(t, s.Close())
}
