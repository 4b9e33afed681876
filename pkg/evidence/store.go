// Package evidence holds the persistent pseudo-label state of one
// self-training round and the two-phase promotion algorithm that fills it.
package evidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrAlreadyLabeled is returned when promoting a question whose evidence
	// label is already set. Labels are immutable once promoted.
	ErrAlreadyLabeled = errors.New("evidence label already set")
	// ErrDuplicateKey is returned when a confidence record is written twice
	// for the same (batch, example) coordinate in one pass. This indicates a
	// driver bug and is fatal: a duplicate would corrupt the global ranking.
	ErrDuplicateKey = errors.New("duplicate confidence record key")
	// ErrInvalidDocIndex is returned when promoting with a negative document
	// index.
	ErrInvalidDocIndex = errors.New("invalid evidence document index")
)

// Unlabeled is the sentinel value of a question without a promoted evidence
// document.
const Unlabeled = -1

// Store maps question ids to evidence labels: the index of the document
// promoted as that question's pseudo-label, or Unlabeled.
//
// Stores are owned by one self-training round: loaded (or created empty) at
// round start, mutated only by the promoter, and persisted once at round end.
// Implementations are not safe for concurrent writers.
type Store interface {
	// Get returns the label for questionID, defaulting to Unlabeled.
	Get(questionID int) int

	// Ensure creates an Unlabeled entry for questionID if absent, so that
	// untouched questions still round-trip through persistence.
	Ensure(questionID int) error

	// Promote sets the label for questionID. It fails with ErrAlreadyLabeled
	// if the current value is not Unlabeled: labels are never overwritten.
	Promote(questionID, docIndex int) error

	// Labeled returns the number of promoted (non-Unlabeled) entries.
	Labeled() int

	// Serialize returns the full label mapping as a byte blob that
	// round-trips exactly, Unlabeled entries included.
	Serialize() ([]byte, error)

	// Close releases any underlying resources.
	Close() error
}

// MemoryStore is the in-memory Store backing small and medium runs. It
// serializes to JSON.
type MemoryStore struct {
	labels map[int]int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{labels: make(map[int]int)}
}

// NewMemoryStoreFromBlob restores a store from a Serialize blob.
func NewMemoryStoreFromBlob(blob []byte) (*MemoryStore, error) {
	labels := make(map[int]int)
	if err := json.Unmarshal(blob, &labels); err != nil {
		return nil, fmt.Errorf("failed to decode evidence labels: %w", err)
	}
	return &MemoryStore{labels: labels}, nil
}

func (s *MemoryStore) Get(questionID int) int {
	if v, ok := s.labels[questionID]; ok {
		return v
	}
	return Unlabeled
}

func (s *MemoryStore) Ensure(questionID int) error {
	if _, ok := s.labels[questionID]; !ok {
		s.labels[questionID] = Unlabeled
	}
	return nil
}

func (s *MemoryStore) Promote(questionID, docIndex int) error {
	if docIndex < 0 {
		return fmt.Errorf("question %d: doc %d: %w", questionID, docIndex, ErrInvalidDocIndex)
	}
	if cur := s.Get(questionID); cur != Unlabeled {
		return fmt.Errorf("question %d already labeled with doc %d: %w", questionID, cur, ErrAlreadyLabeled)
	}
	s.labels[questionID] = docIndex
	return nil
}

func (s *MemoryStore) Labeled() int {
	n := 0
	for _, v := range s.labels {
		if v != Unlabeled {
			n++
		}
	}
	return n
}

func (s *MemoryStore) Serialize() ([]byte, error) {
	return json.Marshal(s.labels)
}

func (s *MemoryStore) Close() error { return nil }

// SaveFile persists any Store to path with an atomic tmp-file + rename write.
func SaveFile(store Store, path string) error {
	blob, err := store.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize evidence labels: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create evidence directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, blob, 0644); err != nil {
		return fmt.Errorf("failed to write evidence file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename evidence file: %w", err)
	}
	return nil
}

// LoadFile restores a MemoryStore from a file written by SaveFile. A missing
// file is an error: a round that names a previous evidence file must find it.
func LoadFile(path string) (*MemoryStore, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence file: %w", err)
	}
	return NewMemoryStoreFromBlob(blob)
}
