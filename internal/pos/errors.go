package pos

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFirstPage signals that the remote returned no items on the first page.
	// It is never treated as an empty catalog.
	ErrEmptyFirstPage = errors.New("pos: remote returned zero items on the first page")
	// ErrMalformedResponse indicates a body that could not be decoded.
	ErrMalformedResponse = errors.New("pos: malformed remote response")
	// ErrPageLimit indicates pagination ran past the configured page cap.
	ErrPageLimit = errors.New("pos: page limit exceeded")
	// ErrUnknownVendor indicates no adapter is registered for a vendor tag.
	ErrUnknownVendor = errors.New("pos: unknown vendor")
)

// TransportError wraps failures where no response was received.
type TransportError struct {
	Vendor string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("pos %s: no response from %s: %v", e.Vendor, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteHTTPError carries an error status returned by the remote.
type RemoteHTTPError struct {
	Vendor     string
	URL        string
	StatusCode int
	Body       string
}

func (e *RemoteHTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("pos %s: %s returned status %d", e.Vendor, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("pos %s: %s returned status %d: %s", e.Vendor, e.URL, e.StatusCode, e.Body)
}
