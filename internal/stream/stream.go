// Package stream serves video files with HTTP byte-range support.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/agleyzer/reelserver/internal/byterange"
	"github.com/agleyzer/reelserver/internal/media"
)

const (
	// DefaultCacheControl matches what the site's static video route advertised.
	DefaultCacheControl = "public, max-age=31536000, immutable"

	defaultBufferSize = 32 * 1024
)

// Plan is everything needed to answer one request, decided before any
// bytes are written.
type Plan struct {
	Asset   media.Asset
	Window  byterange.Spec
	Partial bool
}

// Status returns 206 for partial plans and 200 otherwise.
func (p *Plan) Status() int {
	if p.Partial {
		return http.StatusPartialContent
	}
	return http.StatusOK
}

// Streamer is the range-aware video endpoint. It holds no per-request state
// and is safe for concurrent use.
type Streamer struct {
	lib          *media.Library
	logger       *slog.Logger
	cacheControl string
	bufferSize   int
	onView       func(id string)
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithCacheControl sets the Cache-Control header on successful responses.
// An empty value omits the header.
func WithCacheControl(v string) Option {
	return func(s *Streamer) { s.cacheControl = v }
}

// WithBufferSize sets the copy buffer size.
func WithBufferSize(n int) Option {
	return func(s *Streamer) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// WithViewRecorder registers fn to be called once per GET that starts
// playback from the first byte.
func WithViewRecorder(fn func(id string)) Option {
	return func(s *Streamer) { s.onView = fn }
}

// New creates a Streamer over lib.
func New(lib *media.Library, logger *slog.Logger, opts ...Option) *Streamer {
	s := &Streamer{
		lib:          lib,
		logger:       logger,
		cacheControl: DefaultCacheControl,
		bufferSize:   defaultBufferSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prepare resolves id, stats the file and validates rangeHeader against its
// size. An empty rangeHeader means the whole file.
func (s *Streamer) Prepare(id, rangeHeader string) (*Plan, error) {
	asset, err := s.lib.Stat(id)
	if err != nil {
		// Stat failures other than absence also surface as not found.
		return nil, &Error{Kind: KindNotFound, ID: id, Err: err}
	}

	if rangeHeader == "" {
		plan := &Plan{Asset: asset}
		if asset.Size > 0 {
			plan.Window = byterange.Spec{Start: 0, End: asset.Size - 1}
		} else {
			plan.Window = byterange.Spec{Start: 0, End: -1}
		}
		return plan, nil
	}

	req, err := byterange.ParseRequest(rangeHeader)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRange, ID: id, Size: asset.Size, Err: err}
	}

	window, err := req.Resolve(asset.Size)
	if err != nil {
		return nil, &Error{Kind: KindRangeNotSatisfiable, ID: id, Size: asset.Size, Err: err}
	}

	return &Plan{Asset: asset, Window: window, Partial: true}, nil
}

// ServeVideo answers GET and HEAD for a single video id.
func (s *Streamer) ServeVideo(w http.ResponseWriter, r *http.Request, id string) {
	plan, err := s.Prepare(id, r.Header.Get("Range"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	f, err := s.lib.Open(plan.Asset)
	if err != nil {
		s.writeError(w, &Error{Kind: KindNotFound, ID: id, Err: err})
		return
	}
	defer f.Close()

	s.writeHeader(w, plan)

	if r.Method == http.MethodHead {
		return
	}

	if s.onView != nil && plan.Window.Start == 0 {
		s.onView(id)
	}

	n, err := s.copyWindow(r.Context(), w, f, plan)
	switch {
	case err == nil:
		s.logger.Debug("video streamed", "id", id, "bytes", n, "status", plan.Status())
	case errors.Is(err, errClientGone), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Debug("client left during stream", "id", id, "bytes", n, "error", err)
	default:
		s.logger.Error("video stream aborted", "id", id, "bytes", n, "error", err)
		// Headers are committed; dropping the connection is the only signal left.
		panic(http.ErrAbortHandler)
	}
}

func (s *Streamer) writeHeader(w http.ResponseWriter, plan *Plan) {
	h := w.Header()
	h.Set("Content-Type", plan.Asset.ContentType)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Length", strconv.FormatInt(plan.Window.Length(), 10))
	if !plan.Asset.ModTime.IsZero() {
		h.Set("Last-Modified", plan.Asset.ModTime.UTC().Format(http.TimeFormat))
	}
	if s.cacheControl != "" {
		h.Set("Cache-Control", s.cacheControl)
	}
	if plan.Partial {
		h.Set("Content-Range", plan.Window.ContentRange(plan.Asset.Size))
	}
	w.WriteHeader(plan.Status())
}

// copyWindow forwards exactly the plan's window from src to w through a
// fixed buffer. A short source is a read failure.
func (s *Streamer) copyWindow(ctx context.Context, w io.Writer, src io.ReaderAt, plan *Plan) (int64, error) {
	length := plan.Window.Length()
	if length <= 0 {
		return 0, nil
	}

	section := io.NewSectionReader(src, plan.Window.Start, length)
	buf := make([]byte, s.bufferSize)

	var written int64
	for written < length {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, rerr := section.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("%w: %v", errClientGone, werr)
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, &Error{Kind: KindStreamAborted, ID: plan.Asset.ID, Size: plan.Asset.Size, Err: rerr}
		}
	}

	if written < length {
		return written, &Error{Kind: KindStreamAborted, ID: plan.Asset.ID, Size: plan.Asset.Size, Err: io.ErrUnexpectedEOF}
	}
	return written, nil
}

func (s *Streamer) writeError(w http.ResponseWriter, err error) {
	var se *Error
	if !errors.As(err, &se) {
		se = &Error{Kind: KindStreamAborted, Err: err}
	}

	switch se.Kind {
	case KindNotFound:
		s.logger.Info("video not found", "id", se.ID, "error", se.Err)
	default:
		s.logger.Debug("video request rejected", "id", se.ID, "kind", se.Kind, "error", se.Err)
	}

	if se.Kind == KindRangeNotSatisfiable {
		w.Header().Set("Content-Range", byterange.UnsatisfiedContentRange(se.Size))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(se.StatusCode())
	json.NewEncoder(w).Encode(map[string]string{"error": se.Message()})
}
