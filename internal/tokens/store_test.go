package tokens

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/adsightlabs/adconnect/internal/config"
	"github.com/adsightlabs/adconnect/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(StoreParams{
		Config: &config.StorageConfig{TokenDir: filepath.Join(t.TempDir(), "tokens")},
	})
}

func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	token := &oauth2.Token{
		AccessToken:  "tok_1",
		RefreshToken: "ref_1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
	}
	require.NoError(t, store.Save(provider.Meta, token))

	loaded, err := store.Load(provider.Meta)
	require.NoError(t, err)
	assert.Equal(t, token.AccessToken, loaded.AccessToken)
	assert.Equal(t, token.RefreshToken, loaded.RefreshToken)
	assert.True(t, token.Expiry.Equal(loaded.Expiry))
}

func TestLoadMissingToken(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(provider.Google)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokensAreScopedPerProvider(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(provider.Meta, &oauth2.Token{AccessToken: "tok_1"}))
	require.NoError(t, store.Save(provider.Google, &oauth2.Token{AccessToken: "tok_2"}))

	meta, err := store.Load(provider.Meta)
	require.NoError(t, err)
	google, err := store.Load(provider.Google)
	require.NoError(t, err)
	assert.Equal(t, "tok_1", meta.AccessToken)
	assert.Equal(t, "tok_2", google.AccessToken)
}

func TestSaveOverwrites(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(provider.Meta, &oauth2.Token{AccessToken: "tok_old"}))
	require.NoError(t, store.Save(provider.Meta, &oauth2.Token{AccessToken: "tok_new"}))

	loaded, err := store.Load(provider.Meta)
	require.NoError(t, err)
	assert.Equal(t, "tok_new", loaded.AccessToken)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(provider.Meta, &oauth2.Token{AccessToken: "tok_1"}))
	require.NoError(t, store.Delete(provider.Meta))

	_, err := store.Load(provider.Meta)
	require.ErrorIs(t, err, ErrTokenNotFound)

	// Deleting again is not an error
	require.NoError(t, store.Delete(provider.Meta))
}
