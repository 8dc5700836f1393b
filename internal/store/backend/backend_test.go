package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realmsync.io/internal/model"
	"realmsync.io/internal/store/memory"
	"realmsync.io/internal/store/sqlite"
)

func TestOpen_DefaultsToMemory(t *testing.T) {
	st, err := Open(Config{})
	require.NoError(t, err)
	defer st.Close()
	_, ok := st.(*memory.Storage)
	assert.True(t, ok)
}

func TestOpen_SQLiteUnderDataDir(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Config{Backend: "SQLite", DataDir: dir})
	require.NoError(t, err)
	defer st.Close()
	_, ok := st.(*sqlite.Storage)
	assert.True(t, ok)
	assert.FileExists(t, filepath.Join(dir, "realm.db"))
}

func TestOpen_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	st, err := Open(Config{Backend: "redis", RedisURL: "redis://" + mr.Addr(), RedisKeyPrefix: "t"})
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.SavePlayer(ctx, model.PlayerState{ID: "p1", Username: "ann"}))
	got, err := st.LoadPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "ann", got.Username)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(Config{Backend: "etcd"})
	assert.ErrorContains(t, err, "unknown store backend")
}
