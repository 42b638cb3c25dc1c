package kv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements redisClient over a map.
type fakeRedis struct {
	data map[string]string
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: map[string]string{}} }

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Scan(_ context.Context, _ uint64, match string, _ int64) *redis.ScanCmd {
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return redis.NewScanCmdResult(keys, 0, nil)
}

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "ai-insights-cache", []byte(`{"a":1}`)))
	require.NoError(t, s.Set(ctx, "notifications/last-read", []byte("x")))

	got, err := s.Get(ctx, "ai-insights-cache")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	require.NoError(t, s.Set(ctx, "ai-insights-cache", []byte(`{"a":2}`)))
	got, err = s.Get(ctx, "ai-insights-cache")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(got))

	require.NoError(t, s.Delete(ctx, "ai-insights-cache"))
	require.NoError(t, s.Delete(ctx, "ai-insights-cache"))
	_, err = s.Get(ctx, "ai-insights-cache")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Clear(ctx))
	_, err = s.Get(ctx, "notifications/last-read")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStore_ClearKeepsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	foreign := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(foreign, []byte("keep"), 0o600))

	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "k", []byte("v")))
	require.NoError(t, s.Clear(context.Background()))

	_, err = os.Stat(foreign)
	assert.NoError(t, err)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, a.Set(context.Background(), "session", []byte("token")))

	b, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := b.Get(context.Background(), "session")
	require.NoError(t, err)
	assert.Equal(t, "token", string(got))
}

func TestRedisStore(t *testing.T) {
	exerciseStore(t, NewRedisStore(newFakeRedis(), ""))
}

func TestRedisStore_ClearIsPrefixed(t *testing.T) {
	fake := newFakeRedis()
	fake.data["other:key"] = "keep"
	s := NewRedisStore(fake, "finsight:test:")
	require.NoError(t, s.Set(context.Background(), "k", []byte("v")))
	assert.Equal(t, "v", fake.data["finsight:test:k"])

	require.NoError(t, s.Clear(context.Background()))
	assert.Equal(t, map[string]string{"other:key": "keep"}, fake.data)
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), Options{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(context.Background(), Options{Backend: "file"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Options{Backend: "etcd"})
	assert.Error(t, err)
}
