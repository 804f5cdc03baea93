package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"auction-client/internal/domain"
	"auction-client/pkg/logger"
)

// FileTokenStore keeps the single credential string in a file. It refuses to
// persist anything that fails the structural token check and purges malformed
// content found on disk.
type FileTokenStore struct {
	path string
	log  logger.Logger
}

func NewFileTokenStore(path string, log logger.Logger) *FileTokenStore {
	return &FileTokenStore{
		path: path,
		log:  log,
	}
}

func (s *FileTokenStore) Save(token string) error {
	if !domain.ValidToken(token) {
		return domain.ErrMalformedToken
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}

	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}

	// Verify the write took effect before reporting success.
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("verify token write: %w", err)
	}
	if string(data) != token {
		return fmt.Errorf("verify token write: stored value does not match")
	}

	return nil
}

func (s *FileTokenStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read token: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if !domain.ValidToken(token) {
		s.log.Warn("Purging malformed stored token", "path", s.path)
		if err := os.Remove(s.path); err != nil {
			s.log.Error("Failed to purge token file", "path", s.path, "error", err)
		}
		return "", domain.ErrMalformedToken
	}

	return token, nil
}

func (s *FileTokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}
