package storage

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// magic identifies a cask data file. Records begin immediately after the
// 12-byte header (4-byte magic + 8-byte little-endian threshold).
var magic = [4]byte{'K', 'V', 'S', '1'}

const (
	magicSize     = 4
	thresholdSize = 8
	HeaderSize    = magicSize + thresholdSize
)

// Storage owns the single read-write handle on a cask data file: the
// writable handle itself, the tracked logical file size, and the
// compaction threshold persisted in the header. All three are grouped
// under one lock because every threshold read is paired with an append.
type Storage struct {
	mu        sync.Mutex // F — exclusive lock around file, size, and threshold.
	path      string
	file      *os.File
	size      int64
	threshold uint64
	closed    atomic.Bool
	log       *zap.SugaredLogger
}

// Config encapsulates the configuration parameters required to initialize
// a Storage instance.
type Config struct {
	Path             string
	CompactThreshold uint64
	Logger           *zap.SugaredLogger
}
