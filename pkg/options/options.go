// Package options provides data structures and functions for configuring a
// cask Store. It defines the parameters that control the store's durability
// and performance knobs: the data file path, the initial compaction
// threshold, and the reader pool's sizing policy.
package options

import "strings"

// Options defines the configuration parameters for a cask Store.
type Options struct {
	// Path is the single data file the store reads from and appends to.
	// Required.
	Path string `json:"path"`

	// CompactThreshold is the initial auto-compaction trigger size, in
	// bytes, used only when Path does not already exist. If the file
	// already carries a header, the header's stored threshold always
	// wins — see spec.md §4.6 and §6.
	CompactThreshold uint64 `json:"compactThreshold"`

	// ReaderPoolOpen is how many read-only handles Open opens up-front.
	ReaderPoolOpen int `json:"readerPoolOpen"`

	// ReaderPoolCap is the maximum number of read-only handles the pool
	// retains across Get calls.
	ReaderPoolCap int `json:"readerPoolCap"`

	// DisableFileLock skips taking the advisory <path>.lock file lock.
	// Leave false in production; with the lock taken, a second Open of the
	// same path, even from the same process, fails with ErrLocked.
	DisableFileLock bool `json:"disableFileLock"`
}

// OptionFunc is a function type that modifies a Store's configuration.
type OptionFunc func(*Options)

// WithDefaultOptions resets the compaction threshold and reader pool sizing
// to cask's baseline configuration, leaving Path and DisableFileLock
// untouched.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		opts := NewDefaultOptions()
		o.CompactThreshold = opts.CompactThreshold
		o.ReaderPoolOpen = opts.ReaderPoolOpen
		o.ReaderPoolCap = opts.ReaderPoolCap
	}
}

// WithPath sets the data file path.
func WithPath(path string) OptionFunc {
	return func(o *Options) {
		path = strings.TrimSpace(path)
		if path != "" {
			o.Path = path
		}
	}
}

// WithCompactThreshold sets the initial auto-compaction threshold applied
// when the data file is created fresh. Values below MinCompactThreshold are
// ignored to avoid a store that compacts on nearly every write.
func WithCompactThreshold(threshold uint64) OptionFunc {
	return func(o *Options) {
		if threshold >= MinCompactThreshold {
			o.CompactThreshold = threshold
		}
	}
}

// WithReaderPool overrides the reader pool's open/cap sizing. Spec.md §9
// calls the 4/8 policy fixed but parameterizable without changing
// semantics; this is that parameterization. Invalid values (cap < open, or
// either non-positive) are ignored.
func WithReaderPool(open, cap int) OptionFunc {
	return func(o *Options) {
		if open > 0 && cap >= open {
			o.ReaderPoolOpen = open
			o.ReaderPoolCap = cap
		}
	}
}

// WithoutFileLock disables the advisory inter-process file lock. Intended
// for tests and for callers who already guarantee single-process access by
// other means.
func WithoutFileLock() OptionFunc {
	return func(o *Options) {
		o.DisableFileLock = true
	}
}
