// Package storage owns the single append-only data file behind a cask
// Store: the writable handle, the tracked logical file size, and the
// 12-byte header that carries the magic value and the compaction
// threshold. It also replays the file on open to rebuild the in-memory
// index, tolerating a torn tail as a clean stop rather than an error.
package storage

import (
	"encoding/binary"
	stdErrors "errors"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/iamNilotpal/cask/internal/codec"
	"github.com/iamNilotpal/cask/pkg/errors"
	"github.com/iamNilotpal/cask/pkg/filesys"
	"github.com/iamNilotpal/cask/pkg/tmpname"
)

var (
	// ErrStorageClosed is returned when attempting to use a closed Storage.
	ErrStorageClosed = stdErrors.New("operation failed: cannot access closed storage")

	// ErrInvalidDataFile is returned when a non-empty file is too short to
	// hold a header, or its magic bytes don't match.
	ErrInvalidDataFile = stdErrors.New("invalid data file")
)

// New opens the data file at config.Path, creating it (and its parent
// directory) if necessary, validates or writes the header, and returns a
// Storage positioned to append at the current end of file. The caller is
// responsible for replaying the log into an index afterwards via Replay.
func New(config *Config) (*Storage, error) {
	if config == nil || config.Path == "" || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "storage configuration is required",
		).WithField("config").WithRule("required").WithProvided(config)
	}

	dir := filepath.Dir(config.Path)
	if dir != "." {
		if err := filesys.CreateDir(dir, 0755, true); err != nil {
			return nil, errors.ClassifyDirectoryCreationError(err, dir)
		}
	}

	cleanStaleScratchFiles(config.Path, config.Logger)

	file, err := os.OpenFile(config.Path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, config.Path, filepath.Base(config.Path))
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to stat data file").
			WithPath(config.Path).WithFileName(filepath.Base(config.Path))
	}

	s := &Storage{path: config.Path, file: file, log: config.Logger}

	if info.Size() == 0 {
		threshold := config.CompactThreshold
		if err := s.writeHeader(threshold); err != nil {
			file.Close()
			return nil, err
		}
		s.threshold = threshold
		s.size = HeaderSize
		config.Logger.Infow("created new data file", "path", config.Path, "threshold", threshold)
		return s, nil
	}

	threshold, err := s.readHeader(info.Size())
	if err != nil {
		file.Close()
		return nil, err
	}
	s.threshold = threshold
	s.size = info.Size()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		file.Close()
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to seek to end of data file").
			WithPath(config.Path)
	}

	config.Logger.Infow(
		"opened existing data file", "path", config.Path, "size", s.size, "threshold", threshold,
	)
	return s, nil
}

// cleanStaleScratchFiles removes any "<path>.compact-*.tmp" scratch file
// left behind by a compaction that crashed before its rename completed.
// spec.md §6 calls such a file "safe to delete externally"; this performs
// that housekeeping automatically on open rather than leaving it for an
// operator to do by hand. Failures are logged, not propagated: a leftover
// scratch file is harmless to the engine, so a stray permission error here
// must not block opening the store.
func cleanStaleScratchFiles(path string, log *zap.SugaredLogger) {
	matches, err := filepath.Glob(path + ".compact-*.tmp")
	if err != nil {
		return
	}

	for _, candidate := range matches {
		if !tmpname.Stale(candidate, path) {
			continue
		}
		if err := os.Remove(candidate); err != nil {
			log.Warnw("failed to remove stale compaction scratch file", "error", err, "path", candidate)
			continue
		}
		log.Infow("removed stale compaction scratch file", "path", candidate)
	}
}

// writeHeader writes the 12-byte header (magic + threshold) at offset 0.
// Caller must hold mu.
func (s *Storage) writeHeader(threshold uint64) error {
	var header [HeaderSize]byte
	copy(header[0:magicSize], magic[:])
	binary.LittleEndian.PutUint64(header[magicSize:], threshold)

	if _, err := s.file.WriteAt(header[:], 0); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write data file header").
			WithPath(s.path)
	}
	return nil
}

// readHeader validates the header of an existing, non-empty file and
// returns its stored threshold.
func (s *Storage) readHeader(fileSize int64) (uint64, error) {
	if fileSize < HeaderSize {
		return 0, errors.NewStorageError(
			ErrInvalidDataFile, errors.ErrorCodeHeaderReadFailure, "invalid "+filepath.Base(s.path)+": missing header",
		).WithPath(s.path).WithDetail("fileSize", fileSize).WithDetail("minSize", HeaderSize)
	}

	var header [HeaderSize]byte
	if _, err := s.file.ReadAt(header[:], 0); err != nil {
		return 0, errors.NewStorageError(err, errors.ErrorCodeHeaderReadFailure, "failed to read data file header").
			WithPath(s.path)
	}

	if string(header[0:magicSize]) != string(magic[:]) {
		return 0, errors.NewStorageError(
			ErrInvalidDataFile, errors.ErrorCodeHeaderReadFailure,
			"invalid "+filepath.Base(s.path)+": unsupported format (missing KVS1 header)",
		).WithPath(s.path)
	}

	return binary.LittleEndian.Uint64(header[magicSize:]), nil
}

// Lock acquires the exclusive file lock F. Callers append, read size and
// threshold, or run compaction's rewrite phase while holding it, then call
// Unlock.
func (s *Storage) Lock() {
	s.mu.Lock()
}

// Unlock releases F.
func (s *Storage) Unlock() {
	s.mu.Unlock()
}

// AppendLocked writes a length-prefixed record body at the end of the
// file and returns the body's start offset and length. Caller must hold F.
func (s *Storage) AppendLocked(body []byte) (pos int64, length int64, err error) {
	if s.closed.Load() {
		return 0, 0, ErrStorageClosed
	}

	var lenPrefix [8]byte
	binary.LittleEndian.PutUint64(lenPrefix[:], uint64(len(body)))

	offset, err := s.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, 0, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to seek to end of data file").
			WithPath(s.path).WithOffset(int(s.size))
	}

	if _, err := s.file.Write(lenPrefix[:]); err != nil {
		return 0, 0, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write record length prefix").
			WithPath(s.path).WithOffset(int(offset))
	}

	bodyStart := offset + 8
	if _, err := s.file.Write(body); err != nil {
		return 0, 0, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write record body").
			WithPath(s.path).WithOffset(int(bodyStart))
	}

	s.size = bodyStart + int64(len(body))
	return bodyStart, int64(len(body)), nil
}

// CurrentSizeLocked returns the tracked file size. Caller must hold F.
func (s *Storage) CurrentSizeLocked() int64 {
	return s.size
}

// ThresholdLocked returns the current compaction threshold. Caller must
// hold F.
func (s *Storage) ThresholdLocked() uint64 {
	return s.threshold
}

// SetThresholdLocked rewrites the header in place with a new threshold.
// Caller must hold F.
func (s *Storage) SetThresholdLocked(threshold uint64) error {
	if err := s.writeHeader(threshold); err != nil {
		return err
	}
	s.threshold = threshold
	return nil
}

// ReadAt performs a positioned read against the live handle. Used by
// compaction to pull record bodies out of the file being rewritten; does
// not require F (the caller already holds it during compaction).
func (s *Storage) ReadAt(pos, length int64) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := s.file.ReadAt(buf, pos); err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodePayloadReadFailure, "failed to read record body").
			WithPath(s.path).WithOffset(int(pos))
	}
	return buf, nil
}

// ReplaceLocked closes the current handle, reopens the file at path
// (expected to have just been renamed over the old one), and adopts the
// given size and threshold. Caller must hold F.
func (s *Storage) ReplaceLocked(size int64, threshold uint64) error {
	if err := s.file.Close(); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to close old data file handle").
			WithPath(s.path)
	}

	file, err := os.OpenFile(s.path, os.O_RDWR, 0644)
	if err != nil {
		return errors.ClassifyFileOpenError(err, s.path, filepath.Base(s.path))
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		file.Close()
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to seek to end of compacted data file").
			WithPath(s.path)
	}

	s.file = file
	s.size = size
	s.threshold = threshold
	return nil
}

// Path returns the data file path.
func (s *Storage) Path() string {
	return s.path
}

// Close flushes and releases the data file handle.
func (s *Storage) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrStorageClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.file.Sync(); err != nil {
		syncErr := errors.ClassifySyncError(err, filepath.Base(s.path), s.path, int(s.size))
		s.log.Errorw("failed to sync data file on close", "error", syncErr, "path", s.path)
		s.file.Close()
		return syncErr
	}
	return s.file.Close()
}

// ReplayFunc receives each record decoded during a Replay scan.
// tombstone is true when the record is a delete marker; in that case pos
// and length are zero and callers should remove the key from the index
// instead of inserting it.
type ReplayFunc func(key []byte, pos, length int64, tombstone bool)

// Replay scans the data file from offset 12 to its end, decoding each
// framed record and invoking fn for it. A length-prefix or body read that
// hits io.ErrUnexpectedEOF is a torn tail: the scan stops cleanly and
// Replay returns nil. A read that succeeds in full but fails to decode
// (bad checksum, malformed length fields) is a genuine corruption and is
// returned as an error.
func Replay(path string, fn ReplayFunc) (finalOffset int64, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, errors.ClassifyFileOpenError(err, path, filepath.Base(path))
	}
	defer file.Close()

	offset := int64(HeaderSize)
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return 0, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to seek past header").WithPath(path)
	}

	var lenPrefix [8]byte
	for {
		if _, err := io.ReadFull(file, lenPrefix[:]); err != nil {
			if stdErrors.Is(err, io.ErrUnexpectedEOF) || stdErrors.Is(err, io.EOF) {
				return offset, nil
			}
			return 0, errors.NewStorageError(err, errors.ErrorCodeRecoveryFailed, "failed to read record length prefix").
				WithPath(path).WithOffset(int(offset))
		}

		bodyLen := int64(binary.LittleEndian.Uint64(lenPrefix[:]))
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(file, body); err != nil {
			if stdErrors.Is(err, io.ErrUnexpectedEOF) || stdErrors.Is(err, io.EOF) {
				return offset, nil
			}
			return 0, errors.NewStorageError(err, errors.ErrorCodePayloadReadFailure, "failed to read record body").
				WithPath(path).WithOffset(int(offset + 8))
		}

		record, err := codec.Decode(body)
		if err != nil {
			return 0, err
		}

		bodyStart := offset + 8
		if record.Tombstone {
			fn(record.Key, 0, 0, true)
		} else {
			fn(record.Key, bodyStart, bodyLen, false)
		}

		offset = bodyStart + bodyLen
	}
}
