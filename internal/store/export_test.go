package store

// WithBufferSize overrides the answer buffer size for tests.
func WithBufferSize(n int) Options {
	return func(o *options) {
		o.bufSize = n
	}
}
