package feed

import "fmt"

// FetchError is returned when every (mirror, strategy) attempt failed. It
// carries the last underlying cause; the feed mirrors are flaky enough that
// the remediation is usually "try again later".
type FetchError struct {
	Attempts int
	Last     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("all %d fetch attempts failed (last: %v); the feed mirrors or relays may be temporarily unavailable, retry later or check network connectivity", e.Attempts, e.Last)
}

func (e *FetchError) Unwrap() error { return e.Last }

// FormatError is returned when the fetched payload cannot be turned into
// stations: not a zip archive, no XML entry inside it, or markup so broken
// that even the fallback parser extracted nothing.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid feed payload: %s: %v", e.Reason, e.Err)
	}
	return "invalid feed payload: " + e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }
