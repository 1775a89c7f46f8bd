// Package cask provides an embedded, single-file, persistent key-value
// store in the Bitcask tradition: an append-only log of binary records
// paired with an in-memory index mapping each live key to the location of
// its most recent record on disk.
//
// A Store is bound to exactly one data file. Open or OpenWithThreshold
// create the file if absent, validate its header if present, and replay
// its log to rebuild the index before returning. Keys and values are
// arbitrary byte sequences; deleting a key appends a tombstone and is
// reversed by a later Set of the same key.
package cask

import (
	"github.com/gofrs/flock"

	"github.com/iamNilotpal/cask/internal/engine"
	"github.com/iamNilotpal/cask/pkg/logger"
	"github.com/iamNilotpal/cask/pkg/options"
	"github.com/iamNilotpal/cask/pkg/tmpname"
)

// Store is the primary entry point for interacting with a cask data file.
// It is safe for concurrent use by multiple goroutines within one
// process; cross-process use of the same path is guarded by an advisory
// file lock unless disabled via options.WithoutFileLock.
type Store struct {
	engine  *engine.Engine
	options *options.Options
	flock   *flock.Flock
}

// Open opens or creates the data file at path using cask's default
// configuration (1 MiB initial compaction threshold, a reader pool of 4
// handles opened up-front and capped at 8).
func Open(path string, opts ...options.OptionFunc) (*Store, error) {
	return OpenWithThreshold(path, options.DefaultCompactThreshold, opts...)
}

// OpenWithThreshold is like Open but uses threshold as the initial
// compaction trigger size when the data file does not already exist. If
// the file already exists, its header's stored threshold takes
// precedence over threshold.
func OpenWithThreshold(path string, threshold uint64, opts ...options.OptionFunc) (*Store, error) {
	cfg := options.NewDefaultOptions()
	cfg.Path = path
	if threshold >= options.MinCompactThreshold {
		cfg.CompactThreshold = threshold
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := logger.New("cask")

	var fl *flock.Flock
	if !cfg.DisableFileLock {
		fl = flock.New(tmpname.Lock(cfg.Path))
		locked, err := fl.TryLock()
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, ErrLocked
		}
	}

	eng, err := engine.New(&engine.Config{Logger: log, Options: &cfg})
	if err != nil {
		if fl != nil {
			fl.Unlock()
		}
		return nil, err
	}

	return &Store{engine: eng, options: &cfg, flock: fl}, nil
}

// Set stores key -> value, replacing any prior value for key. The write
// is appended to the log and reflected in the index before Set returns;
// if the file size has reached the compaction threshold, Set also performs
// a synchronous compaction before returning.
func (s *Store) Set(key, value []byte) error {
	return s.engine.Set(key, value)
}

// Get returns the current value for key and true, or nil and false if key
// is absent.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	return s.engine.Get(key)
}

// Del appends a tombstone for key, removing it from subsequent Get calls.
// Deleting an absent key is not an error.
func (s *Store) Del(key []byte) error {
	return s.engine.Del(key)
}

// Compact forces an immediate rewrite of the log down to one record per
// live key, regardless of the current file size relative to the
// compaction threshold.
func (s *Store) Compact() error {
	return s.engine.Compact()
}

// Close releases the Store's file handles, the reader pool, and (unless
// disabled) the advisory cross-process lock. The Store must not be used
// after Close returns.
func (s *Store) Close() error {
	err := s.engine.Close()
	if s.flock != nil {
		if unlockErr := s.flock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}
