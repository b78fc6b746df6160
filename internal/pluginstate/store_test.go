package pluginstate

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamevyo/qblimiter/internal/config"
	"github.com/gamevyo/qblimiter/internal/testutil"
)

func TestSQLiteStore_RoundTrip(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	store := NewSQLiteStore(tdb.Conn)
	ctx := context.Background()

	_, err := store.Get(ctx, "qblimiter")
	require.ErrorIs(t, err, ErrNotFound)

	values := map[string]any{
		"enabled":      true,
		"upload_limit": 512,
		"downloaders":  []any{"qb-main"},
	}
	require.NoError(t, store.Save(ctx, "qblimiter", values))

	got, err := store.Get(ctx, "qblimiter")
	require.NoError(t, err)
	assert.Equal(t, true, got["enabled"])
	assert.Equal(t, float64(512), got["upload_limit"])
	assert.Equal(t, []any{"qb-main"}, got["downloaders"])

	values["enabled"] = false
	require.NoError(t, store.Save(ctx, "qblimiter", values))
	got, err = store.Get(ctx, "qblimiter")
	require.NoError(t, err)
	assert.Equal(t, false, got["enabled"])

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"qblimiter"}, ids)

	require.NoError(t, store.Delete(ctx, "qblimiter"))
	_, err = store.Get(ctx, "qblimiter")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, "qblimiter"))
}

func TestNew_Drivers(t *testing.T) {
	tdb := testutil.NewTestDB(t)

	s, err := New(config.StateConfig{Driver: "sqlite"}, tdb.Conn)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)

	_, err = New(config.StateConfig{Driver: "sqlite"}, nil)
	assert.Error(t, err)

	s, err = New(config.StateConfig{Driver: "redis", RedisURL: "redis://localhost:6379/2", Prefix: "p:"}, nil)
	require.NoError(t, err)
	rs, ok := s.(*RedisStore)
	require.True(t, ok)
	assert.Equal(t, "p:qblimiter", rs.key("qblimiter"))
	require.NoError(t, rs.Close())

	_, err = New(config.StateConfig{Driver: "redis", RedisURL: "::not a url"}, nil)
	assert.Error(t, err)

	_, err = New(config.StateConfig{Driver: "etcd"}, nil)
	assert.Error(t, err)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	s, err := New(config.StateConfig{Driver: "redis", RedisURL: "redis://" + mr.Addr() + "/0", Prefix: "qblimiter:plugin:"}, nil)
	require.NoError(t, err)
	store := s.(*RedisStore)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Get(ctx, "qblimiter")
	require.ErrorIs(t, err, ErrNotFound)

	values := map[string]any{
		"enabled":      true,
		"upload_limit": 512,
		"downloaders":  []any{"qb-main"},
	}
	require.NoError(t, store.Save(ctx, "qblimiter", values))
	require.NoError(t, store.Save(ctx, "other", map[string]any{}))
	require.NoError(t, mr.Set("unrelated:key", "x"))

	assert.True(t, mr.Exists("qblimiter:plugin:qblimiter"))

	got, err := store.Get(ctx, "qblimiter")
	require.NoError(t, err)
	assert.Equal(t, true, got["enabled"])
	assert.Equal(t, float64(512), got["upload_limit"])
	assert.Equal(t, []any{"qb-main"}, got["downloaders"])

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "qblimiter"}, ids)

	require.NoError(t, store.Delete(ctx, "qblimiter"))
	_, err = store.Get(ctx, "qblimiter")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Delete(ctx, "qblimiter"))

	require.NoError(t, mr.Set("qblimiter:plugin:broken", "{not json"))
	_, err = store.Get(ctx, "broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := New(config.StateConfig{Driver: "redis", RedisURL: "redis://" + mr.Addr() + "/0", Prefix: "p:"}, nil)
	require.NoError(t, err)
	mr.Close()

	_, err = s.Get(context.Background(), "qblimiter")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
