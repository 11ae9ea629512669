package gen

import "errors"

// Static errors shared by every Service implementation.
var (
	// ErrAuth indicates the service rejected the credentials. Not retryable;
	// surfaced to the caller immediately.
	ErrAuth = errors.New("gen: authentication failed")
	// ErrConnection indicates a transport failure. Potentially transient;
	// callers may retry connect or submit.
	ErrConnection = errors.New("gen: connection error")
	// ErrNotConnected is returned by streaming calls made without an open
	// connection.
	ErrNotConnected = errors.New("gen: not connected")
	// ErrJobNotFound is returned when the service has no job with that ID.
	ErrJobNotFound = errors.New("gen: job not found")
)
