package index

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Locator is the in-memory representation of where a live record's body
// lives in the data file: the byte offset it starts at and its length.
// This is the entirety of what the index needs to hold per key; the data
// file is the source of truth for everything else, including the
// timestamp, which is carried for observability only and never consulted
// on replay.
type Locator struct {
	Pos int64
	Len int64
}

// Index represents the in-memory hash table that maps keys to their disk
// locations. It keeps all live keys in memory while storing only a
// position and a length per entry, so lookups stay O(1) without requiring
// the full dataset to fit in RAM.
type Index struct {
	log     *zap.SugaredLogger // Provides structured logging capabilities.
	entries map[string]Locator // Maintains the core mapping from keys to their disk locations.
	mu      sync.RWMutex       // Protects concurrent access to entries.
	closed  atomic.Bool        // Indicates whether the index has been closed.
}

// Config encapsulates the configuration parameters required to initialize
// an Index.
type Config struct {
	Logger *zap.SugaredLogger
}
