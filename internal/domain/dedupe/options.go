package dedupe

// Option applies a configuration option to the in-memory tombstone set.
type Option func(*inMemoryTombstones)

// WithMaxSize sets the maximum number of ids to keep.
// If maxSize > 0: bounded mode, oldest ids are evicted first.
// If maxSize <= 0: unbounded mode.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryTombstones) {
		d.maxSize = maxSize
	}
}
