package stream

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a streaming failure.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindInvalidRange
	KindRangeNotSatisfiable
	KindStreamAborted
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidRange:
		return "invalid_range"
	case KindRangeNotSatisfiable:
		return "range_not_satisfiable"
	case KindStreamAborted:
		return "stream_aborted"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by Prepare and by the copy loop. Size is the file size
// when it was known at failure time, and is what a 416 reports.
type Error struct {
	Kind Kind
	ID   string
	Size int64
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("video %q: %s: %v", e.ID, e.Kind, e.Err)
	}
	return fmt.Sprintf("video %q: %s", e.ID, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode maps the kind to an HTTP status. StreamAborted has no clean
// status since headers were already committed; 500 is returned for logging.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidRange:
		return http.StatusBadRequest
	case KindRangeNotSatisfiable:
		return http.StatusRequestedRangeNotSatisfiable
	default:
		return http.StatusInternalServerError
	}
}

// Message is the client-facing error text.
func (e *Error) Message() string {
	switch e.Kind {
	case KindNotFound:
		return "Video not found"
	case KindInvalidRange:
		return "Invalid range header"
	case KindRangeNotSatisfiable:
		return "Requested range not satisfiable"
	default:
		return "Error streaming video"
	}
}

// KindOf extracts the Kind from err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// errClientGone marks a failed write to the response, which means the
// client went away. It is not a server-side failure.
var errClientGone = errors.New("client disconnected")
