package klarna

import "fmt"

// TransportError means no HTTP response came back at all. It surfaces
// to the checkout as a generic "could not create/update session"
// failure; the underlying cause is kept for logs.
type TransportError struct {
	Op  string // "create session" or "update session"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("klarna: could not %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a non-success HTTP status from Klarna. The status code
// and raw body are carried so the failure is never silently swallowed.
type APIError struct {
	Op         string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("klarna: %s failed with HTTP %d: %s", e.Op, e.StatusCode, string(e.Body))
}
