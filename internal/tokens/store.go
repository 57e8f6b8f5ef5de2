// Package tokens persists OAuth tokens per provider between runs.
package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adsightlabs/adconnect/internal/config"
	"github.com/adsightlabs/adconnect/internal/provider"
	"go.uber.org/fx"
	"golang.org/x/oauth2"
)

// ErrTokenNotFound indicates no token has been stored for a provider.
var ErrTokenNotFound = errors.New("token not found")

// Store keeps one token file per provider under the configured directory.
type Store struct {
	dir string
}

type StoreParams struct {
	fx.In

	Config *config.StorageConfig
}

// NewStore creates a Store rooted at the configured token directory.
func NewStore(params StoreParams) *Store {
	return &Store{dir: params.Config.TokenDir}
}

// Save writes the token for a provider, creating the directory if needed.
func (s *Store) Save(name provider.Name, token *oauth2.Token) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	return os.WriteFile(s.path(name), data, 0o600)
}

// Load reads the token for a provider, or ErrTokenNotFound.
func (s *Store) Load(name provider.Name) (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// Delete removes the stored token for a provider. Missing files are fine.
func (s *Store) Delete(name provider.Name) error {
	err := os.Remove(s.path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (s *Store) path(name provider.Name) string {
	// provider names come from the embedded manifest, but sanitize anyway
	clean := filepath.Base(string(name))
	return filepath.Join(s.dir, clean+"_token.json")
}
