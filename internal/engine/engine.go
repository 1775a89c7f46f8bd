// Package engine provides the core coordinator for a cask Store.
//
// The engine orchestrates four subsystems:
//   - storage: the single append-only data file, its size, and its header.
//   - index: the in-memory key -> locator map.
//   - readerpool: bounded read-only handles shared by concurrent gets.
//   - compaction: rewrites the log down to live records and swaps it in.
//
// Lock ordering follows one rule throughout: writers take the file lock
// before the index lock, and never the reverse; the reader pool's lock is
// always taken last (Get takes it after releasing the index lock;
// compaction takes it while still holding the file and index locks).
package engine

import (
	stdErrors "errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/iamNilotpal/cask/internal/codec"
	"github.com/iamNilotpal/cask/internal/compaction"
	"github.com/iamNilotpal/cask/internal/index"
	"github.com/iamNilotpal/cask/internal/readerpool"
	"github.com/iamNilotpal/cask/internal/storage"
	"github.com/iamNilotpal/cask/pkg/options"
)

var (
	// ErrEngineClosed is returned when attempting to perform operations on a closed engine.
	ErrEngineClosed = stdErrors.New("operation failed: cannot access closed engine")
)

// Engine is the main coordinator. It is safe for concurrent use by
// multiple goroutines.
type Engine struct {
	options    *options.Options
	log        *zap.SugaredLogger
	closed     atomic.Bool
	storage    *storage.Storage
	index      *index.Index
	pool       *readerpool.Pool
	compaction *compaction.Compactor
}

// Config holds all the parameters needed to initialize a new Engine instance.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}

// New opens the data file named by config.Options.Path (creating it if
// absent), replays its log to rebuild the index, and returns a ready
// Engine.
func New(config *Config) (*Engine, error) {
	st, err := storage.New(&storage.Config{
		Path:             config.Options.Path,
		CompactThreshold: config.Options.CompactThreshold,
		Logger:           config.Logger,
	})
	if err != nil {
		return nil, err
	}

	idx, err := index.New(&index.Config{Logger: config.Logger})
	if err != nil {
		st.Close()
		return nil, err
	}

	finalOffset, err := storage.Replay(config.Options.Path, func(key []byte, pos, length int64, tombstone bool) {
		k := string(key)
		if tombstone {
			idx.Remove(k)
			return
		}
		idx.Insert(k, index.Locator{Pos: pos, Len: length})
	})
	if err != nil {
		st.Close()
		idx.Close()
		return nil, err
	}
	config.Logger.Infow("replayed data file", "path", config.Options.Path, "finalOffset", finalOffset, "liveKeys", idx.Len())

	pool, err := readerpool.New(&readerpool.Config{
		Path:   config.Options.Path,
		Open:   config.Options.ReaderPoolOpen,
		Cap:    config.Options.ReaderPoolCap,
		Logger: config.Logger,
	})
	if err != nil {
		st.Close()
		idx.Close()
		return nil, err
	}

	compactor, err := compaction.New(&compaction.Config{
		Logger:     config.Logger,
		ReaderOpen: config.Options.ReaderPoolOpen,
		ReaderCap:  config.Options.ReaderPoolCap,
	})
	if err != nil {
		st.Close()
		idx.Close()
		pool.Close()
		return nil, err
	}

	return &Engine{
		options:    config.Options,
		log:        config.Logger,
		storage:    st,
		index:      idx,
		pool:       pool,
		compaction: compactor,
	}, nil
}

// Set writes key -> value as a new record and updates the index. If the
// append brings the file size to or past the current compaction threshold, Set
// triggers a synchronous compaction before returning.
func (e *Engine) Set(key, value []byte) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	body := codec.Encode(codec.Record{Timestamp: nowMillis(), Key: key, Value: value})

	e.storage.Lock()
	pos, length, err := e.storage.AppendLocked(body)
	if err != nil {
		e.storage.Unlock()
		return err
	}
	newSize := e.storage.CurrentSizeLocked()
	threshold := e.storage.ThresholdLocked()

	e.index.Insert(string(key), index.Locator{Pos: pos, Len: length})

	var compactErr error
	if uint64(newSize) >= threshold {
		compactErr = e.compaction.Run(e.storage, e.index, e.pool)
	}
	e.storage.Unlock()

	return compactErr
}

// Del appends a tombstone for key and removes it from the index. Deleting
// an absent key is not an error, and del never triggers compaction on its
// own.
func (e *Engine) Del(key []byte) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	body := codec.Encode(codec.Record{Timestamp: nowMillis(), Key: key, Tombstone: true})

	e.storage.Lock()
	_, _, err := e.storage.AppendLocked(body)
	e.storage.Unlock()
	if err != nil {
		return err
	}

	e.index.Remove(string(key))
	return nil
}

// Get returns the current value for key, or (nil, false) if the key is
// absent. Get never takes the file lock, so it never blocks behind a
// writer beyond the brief index shared lock.
func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	if e.closed.Load() {
		return nil, false, ErrEngineClosed
	}

	loc, ok := e.index.Lookup(string(key))
	if !ok {
		return nil, false, nil
	}

	reader, err := e.pool.Get()
	if err != nil {
		return nil, false, err
	}

	buf := make([]byte, loc.Len)
	_, err = reader.ReadAt(buf, loc.Pos)
	if err != nil {
		reader.Close()
		return nil, false, err
	}
	e.pool.Put(reader)

	record, err := codec.Decode(buf)
	if err != nil {
		return nil, false, err
	}

	return record.Value, true, nil
}

// Compact forces a synchronous compaction regardless of the current file
// size relative to the threshold.
func (e *Engine) Compact() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	e.storage.Lock()
	defer e.storage.Unlock()
	return e.compaction.Run(e.storage, e.index, e.pool)
}

// Close gracefully shuts down the engine and releases all associated resources.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}

	e.pool.Close()

	if err := e.index.Close(); err != nil {
		e.log.Errorw("failed to close index cleanly", "error", err)
	}

	return e.storage.Close()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
