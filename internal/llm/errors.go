package llm

import "errors"

// Error kinds surfaced by every backend. Backends wrap the SDK error with one
// of these so callers can tell them apart with errors.Is.
var (
	ErrTransport         = errors.New("transport failure")
	ErrAuthentication    = errors.New("authentication failure")
	ErrMalformedResponse = errors.New("malformed response")
)
