package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"github.com/agleyzer/reelserver/internal/byterange"
	"github.com/agleyzer/reelserver/internal/media"
	"github.com/spf13/afero"
)

const clipSize = 1_000_000

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func clipBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func createTestStreamer(t *testing.T, opts ...Option) (*Streamer, []byte, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/media", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	clip := clipBytes(clipSize)
	if err := afero.WriteFile(fs, "/media/Edit clip.mp4", clip, 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	if err := afero.WriteFile(fs, "/media/Edit empty.mp4", nil, 0o644); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	if err := afero.WriteFile(fs, "/secret.mp4", []byte("outside the root"), 0o644); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	lib, err := media.NewLibrary(fs, "/media", media.DefaultPattern)
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	return New(lib, createTestLogger(), opts...), clip, fs
}

func doRequest(s *Streamer, method, id, rangeHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/video/"+id, nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	w := httptest.NewRecorder()
	s.ServeVideo(w, req, id)
	return w
}

func TestServeVideo_FullFile(t *testing.T) {
	s, clip, _ := createTestStreamer(t)

	w := doRequest(s, http.MethodGet, "clip", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "video/mp4" {
		t.Errorf("Expected Content-Type video/mp4, got %q", got)
	}
	if got := w.Header().Get("Content-Length"); got != strconv.Itoa(clipSize) {
		t.Errorf("Expected Content-Length %d, got %q", clipSize, got)
	}
	if got := w.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Errorf("Expected Accept-Ranges bytes, got %q", got)
	}
	if got := w.Header().Get("Content-Range"); got != "" {
		t.Errorf("Expected no Content-Range on 200, got %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != DefaultCacheControl {
		t.Errorf("Expected default Cache-Control, got %q", got)
	}
	if !bytes.Equal(w.Body.Bytes(), clip) {
		t.Errorf("Body does not match file contents (got %d bytes)", w.Body.Len())
	}
}

func TestServeVideo_Ranges(t *testing.T) {
	s, clip, _ := createTestStreamer(t)

	tests := []struct {
		name             string
		header           string
		wantStart        int
		wantEnd          int
		wantContentRange string
	}{
		{"middle window", "bytes=500000-599999", 500000, 599999, "bytes 500000-599999/1000000"},
		{"last byte open ended", "bytes=999999-", 999999, 999999, "bytes 999999-999999/1000000"},
		{"first byte", "bytes=0-0", 0, 0, "bytes 0-0/1000000"},
		{"whole file as range", "bytes=0-999999", 0, 999999, "bytes 0-999999/1000000"},
		{"spans buffer boundaries", "bytes=32000-100000", 32000, 100000, "bytes 32000-100000/1000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(s, http.MethodGet, "clip", tt.header)

			if w.Code != http.StatusPartialContent {
				t.Fatalf("Expected status 206, got %d", w.Code)
			}
			if got := w.Header().Get("Content-Range"); got != tt.wantContentRange {
				t.Errorf("Content-Range = %q, want %q", got, tt.wantContentRange)
			}
			wantLen := tt.wantEnd - tt.wantStart + 1
			if got := w.Header().Get("Content-Length"); got != strconv.Itoa(wantLen) {
				t.Errorf("Content-Length = %q, want %d", got, wantLen)
			}
			if got := w.Header().Get("Accept-Ranges"); got != "bytes" {
				t.Errorf("Accept-Ranges = %q, want bytes", got)
			}
			if got := w.Header().Get("Content-Type"); got != "video/mp4" {
				t.Errorf("Content-Type = %q, want video/mp4", got)
			}
			if !bytes.Equal(w.Body.Bytes(), clip[tt.wantStart:tt.wantEnd+1]) {
				t.Errorf("Body does not match bytes [%d, %d]", tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestServeVideo_Unsatisfiable(t *testing.T) {
	s, _, _ := createTestStreamer(t)

	for _, header := range []string{
		"bytes=1000000-1000005",
		"bytes=0-1000000",
		"bytes=500-100",
		"bytes=1000000-",
		"bytes=99999999999999999999-",
		"bytes=0-99999999999999999999",
	} {
		t.Run(header, func(t *testing.T) {
			w := doRequest(s, http.MethodGet, "clip", header)

			if w.Code != http.StatusRequestedRangeNotSatisfiable {
				t.Fatalf("Expected status 416, got %d", w.Code)
			}
			if got := w.Header().Get("Content-Range"); got != "bytes */1000000" {
				t.Errorf("Content-Range = %q, want bytes */1000000", got)
			}
		})
	}
}

func TestServeVideo_MalformedRange(t *testing.T) {
	s, _, _ := createTestStreamer(t)

	for _, header := range []string{"bytes=abc-", "items=0-5", "bytes=-500", "bytes=0-1,4-5"} {
		t.Run(header, func(t *testing.T) {
			w := doRequest(s, http.MethodGet, "clip", header)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}
}

func TestServeVideo_NotFound(t *testing.T) {
	s, _, _ := createTestStreamer(t)

	ids := []string{"missing", "../secret", "..", "/etc/passwd"}
	for _, id := range ids {
		for _, header := range []string{"", "bytes=0-10"} {
			t.Run(id+"|"+header, func(t *testing.T) {
				w := doRequest(s, http.MethodGet, id, header)

				if w.Code != http.StatusNotFound {
					t.Fatalf("Expected status 404, got %d", w.Code)
				}
				if got := w.Header().Get("Content-Type"); got != "application/json" {
					t.Errorf("Expected JSON error, got Content-Type %q", got)
				}
				var body map[string]string
				if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
					t.Fatalf("Failed to decode error body: %v", err)
				}
				if body["error"] == "" {
					t.Error("Error body missing 'error' field")
				}
			})
		}
	}
}

func TestServeVideo_Head(t *testing.T) {
	s, _, _ := createTestStreamer(t)

	w := doRequest(s, http.MethodHead, "clip", "bytes=10-19")

	if w.Code != http.StatusPartialContent {
		t.Fatalf("Expected status 206, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Length"); got != "10" {
		t.Errorf("Content-Length = %q, want 10", got)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Expected empty body for HEAD, got %d bytes", w.Body.Len())
	}
}

func TestServeVideo_EmptyFile(t *testing.T) {
	s, _, _ := createTestStreamer(t)

	w := doRequest(s, http.MethodGet, "empty", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Length"); got != "0" {
		t.Errorf("Content-Length = %q, want 0", got)
	}

	w = doRequest(s, http.MethodGet, "empty", "bytes=0-")
	if w.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Errorf("Expected status 416 for a range on an empty file, got %d", w.Code)
	}
}

func TestServeVideo_Idempotent(t *testing.T) {
	s, _, _ := createTestStreamer(t)

	first := doRequest(s, http.MethodGet, "clip", "bytes=1234-56789")
	second := doRequest(s, http.MethodGet, "clip", "bytes=1234-56789")

	if first.Code != second.Code {
		t.Errorf("Status codes differ: %d vs %d", first.Code, second.Code)
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Error("Repeated requests returned different bodies")
	}
	for _, h := range []string{"Content-Range", "Content-Length", "Content-Type"} {
		if first.Header().Get(h) != second.Header().Get(h) {
			t.Errorf("Header %s differs: %q vs %q", h, first.Header().Get(h), second.Header().Get(h))
		}
	}
}

func TestServeVideo_ViewRecorder(t *testing.T) {
	var views []string
	s, _, _ := createTestStreamer(t, WithViewRecorder(func(id string) {
		views = append(views, id)
	}))

	doRequest(s, http.MethodGet, "clip", "")
	doRequest(s, http.MethodGet, "clip", "bytes=0-99")
	doRequest(s, http.MethodGet, "clip", "bytes=100-199")
	doRequest(s, http.MethodHead, "clip", "")
	doRequest(s, http.MethodGet, "missing", "")

	if len(views) != 2 {
		t.Errorf("Expected 2 recorded views, got %d (%v)", len(views), views)
	}
}

func TestServeVideo_CacheControlOption(t *testing.T) {
	s, _, _ := createTestStreamer(t, WithCacheControl(""))

	w := doRequest(s, http.MethodGet, "clip", "bytes=0-9")
	if got := w.Header().Get("Cache-Control"); got != "" {
		t.Errorf("Expected no Cache-Control, got %q", got)
	}
}

func TestPrepare(t *testing.T) {
	s, _, _ := createTestStreamer(t)

	plan, err := s.Prepare("clip", "bytes=500000-599999")
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if plan.Status() != http.StatusPartialContent {
		t.Errorf("Status() = %d, want 206", plan.Status())
	}
	if plan.Window.Length() != 100000 {
		t.Errorf("Window length = %d, want 100000", plan.Window.Length())
	}

	_, err = s.Prepare("clip", "bytes=1000000-1000005")
	if KindOf(err) != KindRangeNotSatisfiable {
		t.Errorf("KindOf = %v, want %v", KindOf(err), KindRangeNotSatisfiable)
	}
	if !errors.Is(err, byterange.ErrUnsatisfiable) {
		t.Errorf("Expected error to wrap ErrUnsatisfiable, got %v", err)
	}

	_, err = s.Prepare("../secret", "")
	if KindOf(err) != KindNotFound {
		t.Errorf("KindOf = %v, want %v", KindOf(err), KindNotFound)
	}
	if !errors.Is(err, media.ErrNotFound) {
		t.Errorf("Expected error to wrap media.ErrNotFound, got %v", err)
	}
}

type failingReaderAt struct {
	data   []byte
	failAt int64
}

func (f *failingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= f.failAt {
		return 0, errors.New("disk error")
	}
	end := off + int64(len(p))
	if end > f.failAt {
		end = f.failAt
	}
	n := copy(p, f.data[off:end])
	return n, nil
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestCopyWindow(t *testing.T) {
	s, clip, _ := createTestStreamer(t, WithBufferSize(1024))
	plan := &Plan{
		Asset:   media.Asset{ID: "clip", Size: clipSize},
		Window:  byterange.Spec{Start: 0, End: 9999},
		Partial: true,
	}

	t.Run("read failure aborts the stream", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := s.copyWindow(context.Background(), &buf, &failingReaderAt{data: clip, failAt: 4096}, plan)
		if KindOf(err) != KindStreamAborted {
			t.Fatalf("Expected StreamAborted, got %v", err)
		}
		if n != 4096 {
			t.Errorf("Expected 4096 bytes forwarded before failure, got %d", n)
		}
	})

	t.Run("short source aborts the stream", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := s.copyWindow(context.Background(), &buf, bytes.NewReader(clip[:5000]), plan)
		if KindOf(err) != KindStreamAborted {
			t.Fatalf("Expected StreamAborted, got %v", err)
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("Expected ErrUnexpectedEOF, got %v", err)
		}
	})

	t.Run("write failure is a client disconnect", func(t *testing.T) {
		_, err := s.copyWindow(context.Background(), failingWriter{}, bytes.NewReader(clip), plan)
		if !errors.Is(err, errClientGone) {
			t.Fatalf("Expected errClientGone, got %v", err)
		}
		if KindOf(err) != 0 {
			t.Errorf("Client disconnect should not be a stream Error, got kind %v", KindOf(err))
		}
	})

	t.Run("canceled context stops the copy", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var buf bytes.Buffer
		n, err := s.copyWindow(ctx, &buf, bytes.NewReader(clip), plan)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled, got %v", err)
		}
		if n != 0 {
			t.Errorf("Expected no bytes written, got %d", n)
		}
	})
}

type brokenFs struct {
	afero.Fs
}

type brokenFile struct {
	afero.File
}

func (f brokenFile) ReadAt(p []byte, off int64) (int, error) {
	return 0, errors.New("disk error")
}

func (b brokenFs) Open(name string) (afero.File, error) {
	f, err := b.Fs.Open(name)
	if err != nil {
		return nil, err
	}
	return brokenFile{File: f}, nil
}

func TestServeVideo_AbortsOnReadFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	fs.MkdirAll("/media", 0o755)
	afero.WriteFile(fs, "/media/Edit 1.mp4", clipBytes(2048), 0o644)

	lib, err := media.NewLibrary(brokenFs{Fs: fs}, "/media", "")
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	s := New(lib, createTestLogger())

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("Expected panic with http.ErrAbortHandler, got %v", r)
		}
	}()

	doRequest(s, http.MethodGet, "1", "")
	t.Error("ServeVideo returned normally after a read failure")
}

func TestError_StatusCode(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindInvalidRange, http.StatusBadRequest},
		{KindRangeNotSatisfiable, http.StatusRequestedRangeNotSatisfiable},
		{KindStreamAborted, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			e := &Error{Kind: tt.kind}
			if got := e.StatusCode(); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
