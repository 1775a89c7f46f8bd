// Package readerpool provides a bounded cache of read-only file handles
// shared by concurrent get operations, so a read does not have to reopen
// the data file on every call. The pool is guarded by one short lock (P
// in the concurrency model), always taken last: get operations take it
// after releasing the index lock, and compaction takes it while holding
// the file lock (and, for the refill, the index lock).
package readerpool

import (
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/iamNilotpal/cask/pkg/errors"
)

// Pool is a bounded stack of read-only *os.File handles opened against a
// single path.
type Pool struct {
	mu   sync.Mutex
	path string
	cap  int
	free []*os.File
	log  *zap.SugaredLogger
}

// Config encapsulates the configuration parameters required to initialize
// a Pool.
type Config struct {
	Path   string
	Open   int
	Cap    int
	Logger *zap.SugaredLogger
}

// New creates a Pool and opens Config.Open read-only handles into it
// up-front. Failing to open every requested handle is tolerated: Get
// falls back to opening a fresh handle when the pool runs dry, so a
// partially filled pool only costs a little startup throughput, not
// correctness.
func New(config *Config) (*Pool, error) {
	if config == nil || config.Path == "" || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "reader pool configuration is required",
		).WithField("config").WithRule("required").WithProvided(config)
	}

	p := &Pool{path: config.Path, cap: config.Cap, log: config.Logger, free: make([]*os.File, 0, config.Cap)}

	for i := 0; i < config.Open; i++ {
		f, err := os.Open(config.Path)
		if err != nil {
			config.Logger.Warnw("failed to pre-open reader pool handle", "error", err, "index", i)
			break
		}
		p.free = append(p.free, f)
	}

	return p, nil
}

// Get returns a handle to read from: one popped from the pool, or a
// freshly opened one if the pool is empty.
func (p *Pool) Get() (*os.File, error) {
	p.mu.Lock()
	n := len(p.free)
	if n > 0 {
		f := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return f, nil
	}
	p.mu.Unlock()

	return os.Open(p.path)
}

// Put returns a handle to the pool if it has capacity; otherwise the
// handle is closed and dropped.
func (p *Pool) Put(f *os.File) {
	p.mu.Lock()
	if len(p.free) < p.cap {
		p.free = append(p.free, f)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	f.Close()
}

// Drain closes and removes every handle currently held by the pool.
// Compaction calls this before swapping the underlying file, since every
// handle it holds references the old inode.
func (p *Pool) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.free {
		f.Close()
	}
	p.free = p.free[:0]
}

// Refill drains the pool and opens n fresh handles against the current
// path, used by compaction after the rename to repopulate against the
// new file.
func (p *Pool) Refill(n int) {
	p.Drain()

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < n; i++ {
		f, err := os.Open(p.path)
		if err != nil {
			p.log.Warnw("failed to refill reader pool handle", "error", err, "index", i)
			break
		}
		p.free = append(p.free, f)
	}
}

// Close drains the pool. It does not mark the pool closed: a later Put
// or Refill adds handles to it again.
func (p *Pool) Close() {
	p.Drain()
}
