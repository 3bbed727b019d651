package fetcher

// Result represents the outcome of a single FetchOne call.
// It's sent through channels from worker goroutines to the coordinator,
// which keeps the successes and drops the failures.
type Result struct {
	// Instrument is the instrument that was requested
	Instrument string

	// Quote is the normalized observation. Only meaningful when Err is nil.
	Quote Quote

	// Err contains any error that occurred during the fetch operation.
	Err error
}

// OK reports whether the fetch produced a usable quote.
func (r Result) OK() bool {
	return r.Err == nil
}
