// Package byterange parses HTTP Range request headers of the form
// "bytes=<start>-[<end>]" and resolves them against a resource size.
package byterange

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const unitPrefix = "bytes="

var (
	// ErrMalformed reports a Range header that does not match "bytes=<start>-[<end>]".
	ErrMalformed = errors.New("malformed range")

	// ErrUnsatisfiable reports a well-formed range that falls outside the resource.
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Request is a syntactically valid range request that has not yet been
// checked against a resource size.
type Request struct {
	Start int64

	// End is the inclusive last offset. Only meaningful when HasEnd is true.
	End    int64
	HasEnd bool
}

// Spec is a resolved byte window. Start and End are both inclusive and
// satisfy 0 <= Start <= End < size of the resource it was resolved against.
type Spec struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the window.
func (s Spec) Length() int64 {
	return s.End - s.Start + 1
}

// ContentRange formats the Content-Range header value for a 206 response.
func (s Spec) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", s.Start, s.End, size)
}

// UnsatisfiedContentRange formats the Content-Range header value sent with a 416.
func UnsatisfiedContentRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// ParseRequest parses the raw header value. Suffix ranges ("bytes=-500") and
// multiple ranges are rejected as malformed.
func ParseRequest(header string) (Request, error) {
	h := strings.TrimSpace(header)
	if !strings.HasPrefix(h, unitPrefix) {
		return Request{}, fmt.Errorf("%w: missing %q unit in %q", ErrMalformed, unitPrefix, header)
	}
	h = strings.TrimSpace(h[len(unitPrefix):])

	if strings.Contains(h, ",") {
		return Request{}, fmt.Errorf("%w: multiple ranges are not supported", ErrMalformed)
	}

	startStr, endStr, ok := strings.Cut(h, "-")
	if !ok {
		return Request{}, fmt.Errorf("%w: missing '-' in %q", ErrMalformed, header)
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	start, err := parseOffset(startStr)
	if err != nil {
		return Request{}, fmt.Errorf("%w: start offset: %v", ErrMalformed, err)
	}

	req := Request{Start: start}
	if endStr == "" {
		return req, nil
	}

	end, err := parseOffset(endStr)
	if err != nil {
		return Request{}, fmt.Errorf("%w: end offset: %v", ErrMalformed, err)
	}
	req.End = end
	req.HasEnd = true

	return req, nil
}

// Resolve checks the request against size. An omitted end defaults to
// size-1. Out-of-bounds ends are rejected rather than clamped.
func (r Request) Resolve(size int64) (Spec, error) {
	end := size - 1
	if r.HasEnd {
		end = r.End
	}

	if r.Start >= size || end >= size || r.Start > end {
		return Spec{}, fmt.Errorf("%w: bytes=%d-%d against size %d", ErrUnsatisfiable, r.Start, end, size)
	}

	return Spec{Start: r.Start, End: end}, nil
}

// parseOffset accepts only plain decimal digits; signs and blanks are
// errors. Offsets too large for int64 saturate so Resolve reports them as
// unsatisfiable.
func parseOffset(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty offset")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid offset %q", s)
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt64, nil
	}
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q: %w", s, err)
	}
	return n, nil
}
