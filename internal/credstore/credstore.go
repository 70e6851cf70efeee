// Package credstore persists the device identity and signal keys of the
// linked account in a whatsmeow SQL store.
package credstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/mattn/go-sqlite3"
)

// Store loads and saves credentials for a single device.
type Store struct {
	container *sqlstore.Container
	path      string

	mu     sync.Mutex
	device *wastore.Device
}

// Open creates (or opens) the credential database at path.
func Open(ctx context.Context, path string, log waLog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create auth dir: %w", err)
	}
	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", path),
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("create credential store: %w", err)
	}
	return &Store{container: container, path: path}, nil
}

// Load returns the stored device, or a fresh unregistered one.
func (s *Store) Load(ctx context.Context) (*wastore.Device, error) {
	device, err := s.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}
	s.mu.Lock()
	s.device = device
	s.mu.Unlock()
	return device, nil
}

// Save persists the most recently loaded device. A device that has not been
// paired yet has nothing to save.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	device := s.device
	s.mu.Unlock()

	if device == nil || device.ID == nil {
		return nil
	}
	if err := device.Save(ctx); err != nil {
		return fmt.Errorf("save device %s: %w", device.ID, err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.container.Close()
}
