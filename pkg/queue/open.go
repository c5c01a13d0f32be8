package queue

import (
	"errors"

	"github.com/posagent/posagentd/internal/logger"
)

// Open opens the durable on-disk store at path. If it cannot be opened —
// disk full, permissions, a corrupt database — it falls back to a
// non-durable in-memory store and logs a warning, per the persistent-store-
// unavailable error taxonomy: the service keeps running, accepting data
// loss on restart, rather than failing startup outright.
func Open(path string) Store {
	store, err := OpenBadgerStore(path)
	if err == nil {
		return store
	}

	if errors.Is(err, ErrStoreUnavailable) {
		logger.Warn("queue: persistent store unavailable, falling back to in-memory queue",
			"path", path, "error", err)
	} else {
		logger.Warn("queue: unexpected error opening store, falling back to in-memory queue",
			"path", path, "error", err)
	}
	return NewMemoryStore()
}
