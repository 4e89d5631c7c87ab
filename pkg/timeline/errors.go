package timeline

import "errors"

var (
	// ErrWriteFailed wraps append failures. The provisional entry is marked
	// failed; the user may retry by re-issuing the send.
	ErrWriteFailed = errors.New("timeline: write failed")
	// ErrReadFailed wraps pagination/tail failures. Retryable; already-loaded
	// timeline state is never discarded because of it.
	ErrReadFailed = errors.New("timeline: read failed")
	// ErrClosed is returned by operations on a torn-down session.
	ErrClosed = errors.New("timeline: session closed")
)
