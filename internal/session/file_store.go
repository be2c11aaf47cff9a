package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/concord-chat/teamchat/internal/models"
	"github.com/concord-chat/teamchat/pkg/crypto"
)

// FileStore keeps the session as a JSON document. With a passphrase the
// document is sealed before it touches the disk.
type FileStore struct {
	fs         afero.Fs
	path       string
	passphrase string
	mu         sync.Mutex
}

// NewFileStore creates a store at path on fs
func NewFileStore(fs afero.Fs, path, passphrase string) *FileStore {
	return &FileStore{fs: fs, path: path, passphrase: passphrase}
}

// Load reads the session file. A missing file is not an error.
func (f *FileStore) Load(ctx context.Context) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	if f.passphrase != "" {
		data, err = crypto.Open(f.passphrase, data)
		if err != nil {
			return nil, fmt.Errorf("failed to open session file: %w", err)
		}
	}

	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if s.AccessToken == "" && s.RefreshToken == "" {
		return nil, nil
	}
	return &s, nil
}

// Save writes the session atomically
func (f *FileStore) Save(ctx context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if f.passphrase != "" {
		data, err = crypto.Seal(f.passphrase, data)
		if err != nil {
			return fmt.Errorf("failed to seal session: %w", err)
		}
	}

	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	// Write to temp file first (atomic write)
	tempFile := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	if err := f.fs.Rename(tempFile, f.path); err != nil {
		f.fs.Remove(tempFile) // Clean up temp file on error
		return fmt.Errorf("failed to save session file: %w", err)
	}
	return nil
}

// Clear deletes the session file
func (f *FileStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fs.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
