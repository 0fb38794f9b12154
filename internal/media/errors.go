// internal/media/errors.go
package media

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors
var (
	ErrInvalidReference = errors.New("invalid media reference")
	ErrUnreachable      = errors.New("media host unreachable")
	ErrTimeout          = errors.New("media fetch timed out")
	ErrTLS              = errors.New("media host failed TLS verification")
	ErrTooLarge         = errors.New("media exceeds size limit")
	ErrUnclassifiable   = errors.New("media type could not be determined")
	ErrIO               = errors.New("media storage failed")
	ErrScanFailed       = errors.New("markup scan failed")
)

// HTTPError is returned when a media host answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// Transient reports whether the status is worth retrying. Only 5xx is;
// every 4xx, 429 included, is final.
func (e *HTTPError) Transient() bool {
	return e.StatusCode >= 500
}

// IsTransient reports whether err is a network-level failure that a retry may fix.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnreachable) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Transient()
	}
	return false
}
