// Package compaction rewrites a cask data file down to exactly one record
// per live key and swaps it in atomically via rename. It also owns the
// adaptive threshold: when a compaction reclaims less than a quarter of
// the file, the trigger size for the next auto-compaction doubles, which
// keeps a genuinely growing working set from compacting on every write.
package compaction

import (
	"encoding/binary"
	"os"

	"go.uber.org/zap"

	"github.com/iamNilotpal/cask/internal/index"
	"github.com/iamNilotpal/cask/internal/readerpool"
	"github.com/iamNilotpal/cask/internal/storage"
	"github.com/iamNilotpal/cask/pkg/errors"
	"github.com/iamNilotpal/cask/pkg/tmpname"
)

// Compactor coordinates a single data file's compaction runs. It holds no
// state of its own between runs; all durable state lives in the storage,
// index, and reader pool it is handed.
type Compactor struct {
	log        *zap.SugaredLogger
	readerOpen int
	readerCap  int
}

// Config encapsulates the configuration parameters required to initialize
// a Compactor.
type Config struct {
	Logger     *zap.SugaredLogger
	ReaderOpen int
	ReaderCap  int
}

// New creates a Compactor.
func New(config *Config) (*Compactor, error) {
	if config == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "compactor configuration is required",
		).WithField("config").WithRule("required").WithProvided(config)
	}
	return &Compactor{log: config.Logger, readerOpen: config.ReaderOpen, readerCap: config.ReaderCap}, nil
}

// Run executes the full compaction procedure against s, idx, and pool.
// The caller must already hold the exclusive file lock on s for the
// duration of this call; Run takes the index's exclusive lock only for
// the final swap, matching the engine's lock-ordering contract.
func (c *Compactor) Run(s *storage.Storage, idx *index.Index, pool *readerpool.Pool) error {
	oldSize := s.CurrentSizeLocked()
	threshold := s.ThresholdLocked()

	tmpPath := tmpname.Compact(s.Path())
	tmpFile, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return errors.ClassifyFileOpenError(err, tmpPath, tmpPath)
	}

	var header [storage.HeaderSize]byte
	copy(header[0:4], []byte{'K', 'V', 'S', '1'})
	binary.LittleEndian.PutUint64(header[4:], threshold)
	if _, err := tmpFile.Write(header[:]); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write compaction scratch header").
			WithPath(tmpPath)
	}

	snapshot := idx.Snapshot()
	fresh := make(map[string]index.Locator, len(snapshot))
	var newSize int64 = storage.HeaderSize

	for key, loc := range snapshot {
		body, err := s.ReadAt(loc.Pos, loc.Len)
		if err != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
			return err
		}

		var lenPrefix [8]byte
		binary.LittleEndian.PutUint64(lenPrefix[:], uint64(loc.Len))
		if _, err := tmpFile.Write(lenPrefix[:]); err != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
			return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write compacted record length").
				WithPath(tmpPath)
		}

		newPos := newSize + 8
		if _, err := tmpFile.Write(body); err != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
			return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write compacted record body").
				WithPath(tmpPath)
		}

		fresh[key] = index.Locator{Pos: newPos, Len: loc.Len}
		newSize = newPos + loc.Len
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to sync compaction scratch file").
			WithPath(tmpPath)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to close compaction scratch file").
			WithPath(tmpPath)
	}

	pool.Drain()

	// I is held for the entire swap, not just the index assignment: a
	// Lookup that slipped in between the rename and idx.ReplaceLocked would
	// find an old locator but, with the pool already drained, a fresh Get
	// would open the just-renamed new file by path and read garbage at
	// that offset. Holding I here blocks every Lookup until the file,
	// size, index, and pool all agree.
	idx.Lock()

	if err := os.Rename(tmpPath, s.Path()); err != nil {
		idx.Unlock()
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to rename compacted file into place").
			WithPath(s.Path())
	}

	if err := s.ReplaceLocked(newSize, threshold); err != nil {
		idx.Unlock()
		return err
	}
	idx.ReplaceLocked(fresh)
	pool.Refill(c.readerOpen)
	idx.Unlock()

	c.log.Infow("compaction finished", "oldSize", oldSize, "newSize", newSize, "liveKeys", len(fresh))

	if newSize*4 > oldSize*3 {
		newThreshold := threshold * 2
		if newThreshold < threshold {
			newThreshold = ^uint64(0) // saturate on overflow
		}
		if err := s.SetThresholdLocked(newThreshold); err != nil {
			return err
		}
		c.log.Infow("adaptive threshold doubled", "oldThreshold", threshold, "newThreshold", newThreshold)
	}

	return nil
}
