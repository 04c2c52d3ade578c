package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists the local session between runs, like browser local storage.
type Store interface {
	// Load returns ErrNoSession when nothing is stored.
	Load(ctx context.Context) (*Credentials, error)
	Save(ctx context.Context, c *Credentials) error
	Clear(ctx context.Context) error
}

// FileStore keeps the session as a JSON file readable only by the owner.
type FileStore struct {
	Path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load(_ context.Context) (*Credentials, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if c.UserID == "" {
		return nil, ErrNoSession
	}
	return &c, nil
}

func (s *FileStore) Save(_ context.Context, c *Credentials) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	return os.WriteFile(s.Path, data, 0o600)
}

func (s *FileStore) Clear(_ context.Context) error {
	err := os.Remove(s.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// VerifyFunc asks the server to confirm stored credentials and returns the
// server's view of them.
type VerifyFunc func(ctx context.Context, c *Credentials) (*Credentials, error)

// Restore loads the stored session and confirms it with the server. Any failure
// clears the store and returns an error wrapping ErrNoSession, which callers
// treat as "send the user back to login".
func Restore(ctx context.Context, store Store, verify VerifyFunc) (*Credentials, error) {
	c, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	confirmed, err := verify(ctx, c)
	if err != nil {
		if clearErr := store.Clear(ctx); clearErr != nil {
			return nil, errors.Join(fmt.Errorf("%w: %v", ErrNoSession, err), clearErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if confirmed.Token == "" {
		confirmed.Token = c.Token
	}
	if err := store.Save(ctx, confirmed); err != nil {
		return nil, err
	}
	return confirmed, nil
}
