package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pocket-telemetry/backend/internal/models"
)

// CredentialSlot is the name of the single persisted credential slot.
const CredentialSlot = "dimoCredentials"

// ErrNoCredentials is returned when nothing has been saved.
var ErrNoCredentials = errors.New("no saved credentials")

// CredentialStore defines the interface for the saved credential slot.
type CredentialStore interface {
	Load() (*models.SavedCredentials, error)
	Save(creds models.SavedCredentials) error
	Clear() error
	Persistent() bool
}

// FileCredentialStore keeps the slot as a JSON file readable only by the owner.
type FileCredentialStore struct {
	mu   sync.RWMutex
	path string
}

// NewFileCredentialStore creates a store under dataDir.
func NewFileCredentialStore(dataDir string) (*FileCredentialStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &FileCredentialStore{
		path: filepath.Join(dataDir, CredentialSlot+".json"),
	}, nil
}

// Path returns the slot file location.
func (s *FileCredentialStore) Path() string {
	return s.path
}

// Load reads the slot.
func (s *FileCredentialStore) Load() (*models.SavedCredentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	var creds models.SavedCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("decoding credentials: %w", err)
	}
	return &creds, nil
}

// Save overwrites the slot. The file is written to a temp name and renamed
// so a crash never leaves a half-written slot.
func (s *FileCredentialStore) Save(creds models.SavedCredentials) error {
	if creds.SavedAt.IsZero() {
		creds.SavedAt = time.Now()
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing credentials: %w", err)
	}
	return nil
}

// Clear removes the slot. Clearing an empty slot is not an error.
func (s *FileCredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing credentials: %w", err)
	}
	return nil
}

func (s *FileCredentialStore) Persistent() bool { return true }

// MemoryCredentialStore keeps the slot for the lifetime of the process only.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds *models.SavedCredentials
}

// NewMemoryCredentialStore creates an empty in-memory slot.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

func (s *MemoryCredentialStore) Load() (*models.SavedCredentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.creds == nil {
		return nil, ErrNoCredentials
	}
	c := *s.creds
	return &c, nil
}

func (s *MemoryCredentialStore) Save(creds models.SavedCredentials) error {
	if creds.SavedAt.IsZero() {
		creds.SavedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = &creds
	return nil
}

func (s *MemoryCredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	return nil
}

func (s *MemoryCredentialStore) Persistent() bool { return false }
