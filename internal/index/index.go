// Package index provides the in-memory hash table implementation for the
// cask key-value store. The index holds exactly one locator per live key;
// tombstones are never represented here, only in the log.
package index

import (
	stdErrors "errors"

	"github.com/iamNilotpal/cask/pkg/errors"
)

var (
	ErrIndexClosed = stdErrors.New("operation failed: cannot access closed index")
)

// New creates and initializes a new Index instance. The returned Index is
// immediately ready for concurrent use.
func New(config *Config) (*Index, error) {
	if config == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "index configuration is required",
		).WithField("config").WithRule("required").WithProvided(config)
	}

	return &Index{
		log:     config.Logger,
		entries: make(map[string]Locator, 1024),
	}, nil
}

// Lock acquires the exclusive index lock I. Compaction holds I across its
// whole rename/reopen/replace/refill swap (spec.md §4.7 step 6, §5) rather
// than only around ReplaceLocked, so that no Lookup can observe a locator
// into the file compaction just replaced. Callers must pair this with
// Unlock and must not call Insert/Remove/Lookup/Snapshot/Replace/Close
// (which take the lock themselves) while holding it — use the *Locked
// variants instead.
func (idx *Index) Lock() {
	idx.mu.Lock()
}

// Unlock releases I.
func (idx *Index) Unlock() {
	idx.mu.Unlock()
}

// Lookup returns the locator for key and whether it is present. Shared
// lock — concurrent lookups never block each other.
func (idx *Index) Lookup(key string) (Locator, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	loc, ok := idx.entries[key]
	return loc, ok
}

// Insert records or overwrites the locator for key. Exclusive lock.
func (idx *Index) Insert(key string, loc Locator) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[key] = loc
}

// Remove deletes key from the index, if present. Exclusive lock. Removing
// an absent key is not an error.
func (idx *Index) Remove(key string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, key)
}

// Snapshot returns a copy of every live key and its locator. Shared lock;
// used by compaction to decide what to rewrite.
func (idx *Index) Snapshot() map[string]Locator {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	snap := make(map[string]Locator, len(idx.entries))
	for k, v := range idx.entries {
		snap[k] = v
	}
	return snap
}

// Replace atomically swaps the entire entry set, used by compaction after
// it rewrites the log under fresh locators. Exclusive lock.
func (idx *Index) Replace(entries map[string]Locator) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.ReplaceLocked(entries)
}

// ReplaceLocked swaps the entire entry set without taking I itself. Caller
// must already hold I via Lock — this is what Compactor.Run uses so the
// swap happens under the single Lock/Unlock pair spanning the whole
// rename/reopen/replace/refill sequence, not a lock taken and released
// just for this one assignment.
func (idx *Index) ReplaceLocked(entries map[string]Locator) {
	idx.entries = entries
}

// Len returns the number of live keys currently tracked.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Close releases the index's resources. The index cannot be used after
// closure.
func (idx *Index) Close() error {
	if !idx.closed.CompareAndSwap(false, true) {
		return ErrIndexClosed
	}

	idx.log.Infow("closing index")

	idx.mu.Lock()
	defer idx.mu.Unlock()
	clear(idx.entries)
	idx.entries = nil

	return nil
}
