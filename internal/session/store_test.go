package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-chat/teamchat/internal/models"
)

func sample() *models.Session {
	return &models.Session{
		AccessToken:  "a1",
		RefreshToken: "r1",
		User:         &models.User{ID: "u1", Username: "ann", Email: "ann@example.com"},
	}
}

func testStore(t *testing.T, store TokenStore) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Save(ctx, sample()))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a1", got.AccessToken)
	assert.Equal(t, "r1", got.RefreshToken)
	require.NotNil(t, got.User)
	assert.Equal(t, "ann", got.User.Username)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	testStore(t, NewFileStore(afero.NewMemMapFs(), "/home/ann/.teamchat/session.json", ""))
}

func TestFileStore_Sealed(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, "/s/session.json", "hunter2")
	testStore(t, store)

	require.NoError(t, store.Save(context.Background(), sample()))
	raw, err := afero.ReadFile(fs, "/s/session.json")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "a1")

	_, err = NewFileStore(fs, "/s/session.json", "wrong").Load(context.Background())
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	defer store.Close()

	testStore(t, store)
}
