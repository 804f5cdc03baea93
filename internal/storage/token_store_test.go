package storage

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"auction-client/internal/domain"
	"auction-client/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testToken() string {
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(`{"user_id":"U1"}`)) + ".c2ln"
}

func newTestStore(t *testing.T) (*FileTokenStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token")
	return NewFileTokenStore(path, logger.NewNop()), path
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	token := testToken()

	require.NoError(t, store.Save(token))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestSaveRejectsMalformedToken(t *testing.T) {
	store, path := newTestStore(t)

	err := store.Save("not-a-credential")
	assert.ErrorIs(t, err, domain.ErrMalformedToken)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no file should be written for a malformed token")
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestLoadPurgesCorruptedFile(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte("garbage in storage"), 0o600))

	_, err := store.Load()
	assert.ErrorIs(t, err, domain.ErrMalformedToken)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "corrupted token file should be removed")
}

func TestClear(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, store.Save(testToken()))

	require.NoError(t, store.Clear())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	// Clearing an already-empty store is fine.
	require.NoError(t, store.Clear())
}
