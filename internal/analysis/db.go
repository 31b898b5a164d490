package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotFound is returned when no record exists for a path.
var ErrNotFound = errors.New("no analysis record")

// Status describes the outcome of analyzing one item.
type Status string

const (
	StatusAnalyzed   Status = "analyzed"
	StatusUnanalyzed Status = "unanalyzed"
	StatusFailed     Status = "failed"
)

// Record is a stored result with metadata
type Record struct {
	Result     *Result `json:"result"`
	Status     Status  `json:"status"`
	Error      string  `json:"error,omitempty"`
	Version    int     `json:"version"`
	AnalyzedAt int64   `json:"analyzedAt"`
	FileHash   string  `json:"fileHash"`
}

// Store persists analysis records keyed by file path.
type Store interface {
	Put(path string, rec *Record) error
	Get(path string) (*Record, error)
	// IsCurrent reports whether path has an analyzed record for fileHash
	// at minVersion or later.
	IsCurrent(path, fileHash string, minVersion int) bool
	All() (map[string]*Record, error)
	Count() (int, error)
	Save() error
	Close() error
}

// OpenStore opens the store backend by name ("json" or "sqlite") in dataDir.
func OpenStore(backend, dataDir string) (Store, error) {
	switch backend {
	case "", "json":
		return NewJSONStore(dataDir)
	case "sqlite":
		return NewSQLiteStore(dataDir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// JSONStore keeps records in memory and writes them to a single JSON file
type JSONStore struct {
	mu       sync.RWMutex
	dataPath string
	records  map[string]*Record
}

// NewJSONStore creates a JSON-backed store, loading any existing file.
func NewJSONStore(dataDir string) (*JSONStore, error) {
	store := &JSONStore{
		dataPath: filepath.Join(dataDir, "resonance_analysis.json"),
		records:  make(map[string]*Record),
	}

	if err := store.load(); err != nil {
		// Not an error if file doesn't exist
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load store: %w", err)
		}
	}

	return store, nil
}

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.dataPath)
	if err != nil {
		return err
	}

	var stored struct {
		Records map[string]*Record `json:"records"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	if stored.Records != nil {
		s.records = stored.Records
	}
	return nil
}

// Save writes data to disk
func (s *JSONStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := struct {
		Records map[string]*Record `json:"records"`
	}{Records: s.records}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.dataPath), 0700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	if err := os.WriteFile(s.dataPath, data, 0600); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

// Put stores the record for path, stamping AnalyzedAt if unset.
func (s *JSONStore) Put(path string, rec *Record) error {
	if rec == nil {
		return errors.New("nil record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	if cp.AnalyzedAt == 0 {
		cp.AnalyzedAt = unixNow()
	}
	s.records[path] = &cp
	return nil
}

// Get retrieves the record for path
func (s *JSONStore) Get(path string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	cp := *rec
	return &cp, nil
}

func (s *JSONStore) IsCurrent(path, fileHash string, minVersion int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[path]
	return ok && isCurrent(rec, fileHash, minVersion)
}

// All returns a copy of all stored records
func (s *JSONStore) All() (map[string]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*Record, len(s.records))
	for k, v := range s.records {
		cp := *v
		result[k] = &cp
	}
	return result, nil
}

func (s *JSONStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Close flushes the store to disk.
func (s *JSONStore) Close() error {
	return s.Save()
}

func isCurrent(rec *Record, fileHash string, minVersion int) bool {
	return rec.Status == StatusAnalyzed && rec.Version >= minVersion && rec.FileHash == fileHash
}

func unixNow() int64 {
	return time.Now().Unix()
}
