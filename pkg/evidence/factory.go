package evidence

import (
	"fmt"
	"log/slog"
)

// Backend names a Store implementation.
type Backend string

const (
	// BackendMemory keeps labels in memory and persists them as a JSON blob.
	BackendMemory Backend = "memory"
	// BackendBadger keeps labels in an on-disk Badger database.
	BackendBadger Backend = "badger"
)

// NewStore creates a Store for the configured backend. An empty backend
// defaults to memory. The path is the Badger directory and is ignored by the
// memory backend.
func NewStore(backend Backend, path string, logger *slog.Logger) (Store, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendBadger:
		if path == "" {
			return nil, fmt.Errorf("badger evidence backend requires a path")
		}
		return OpenBadgerStore(path, logger)
	default:
		return nil, fmt.Errorf("unsupported evidence backend: %s (supported: memory, badger)", backend)
	}
}
