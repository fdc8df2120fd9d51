package streaming

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthenticated means no caller identity is attached to the request.
	ErrUnauthenticated = errors.New("streaming: unauthenticated")

	// ErrForbidden covers bad, expired or foreign signatures alike.
	ErrForbidden = errors.New("streaming: forbidden")

	// ErrNotFound means the manifest, segment or video is absent.
	ErrNotFound = errors.New("streaming: not found")
)

// RangeError reports an unsatisfiable or malformed Range header.
type RangeError struct {
	Header string
	Size   int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("streaming: invalid range %q for size %d", e.Header, e.Size)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var rerr *RangeError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &rerr):
		return http.StatusRequestedRangeNotSatisfiable
	default:
		return http.StatusInternalServerError
	}
}
