package options

const (
	// DefaultCompactThreshold is the file size, in bytes, at which a
	// set-triggered automatic compaction fires for a newly created data
	// file. An existing file's stored header threshold always takes
	// precedence over this default.
	DefaultCompactThreshold uint64 = 1024 * 1024

	// DefaultReaderPoolOpen is how many read-only handles Open opens
	// up-front into the reader pool.
	DefaultReaderPoolOpen = 4

	// DefaultReaderPoolCap is the maximum number of read-only handles the
	// pool retains; a Get that returns a handle once the pool is already
	// at capacity drops it instead.
	DefaultReaderPoolCap = 8

	// MinCompactThreshold guards against configuring a threshold so small
	// that nearly every write would re-trigger compaction. spec.md §8's own
	// concrete scenarios exercise thresholds as low as 64 bytes, so the
	// floor sits at that value rather than above it.
	MinCompactThreshold uint64 = 64
)

// Holds the default configuration settings for a cask Store.
var defaultOptions = Options{
	CompactThreshold: DefaultCompactThreshold,
	ReaderPoolOpen:   DefaultReaderPoolOpen,
	ReaderPoolCap:    DefaultReaderPoolCap,
}

// NewDefaultOptions returns a copy of cask's baseline configuration. Path is
// left empty; callers set it via WithPath or by passing it directly to Open.
func NewDefaultOptions() Options {
	return defaultOptions
}
