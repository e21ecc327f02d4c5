// Package media resolves video identifiers to files under a fixed media root.
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const (
	// ContentType is the MIME type reported for every asset.
	ContentType = "video/mp4"

	// DefaultPattern maps id "3" to "Edit 3.mp4".
	DefaultPattern = "Edit {id}.mp4"

	idPlaceholder = "{id}"
)

// ErrNotFound covers unknown ids, missing or non-regular files, and ids
// that would resolve outside the media root.
var ErrNotFound = errors.New("video not found")

// Asset is a video file as observed at stat time.
type Asset struct {
	ID          string
	Path        string
	Size        int64
	ModTime     time.Time
	ContentType string
}

// Library is a read-only view over the media root.
type Library struct {
	fs      afero.Fs
	root    string
	pattern string
}

// NewLibrary validates root and pattern. root must be an existing directory
// on fs and pattern must contain "{id}" exactly once.
func NewLibrary(fs afero.Fs, root, pattern string) (*Library, error) {
	if root == "" {
		return nil, fmt.Errorf("media root is required")
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	if strings.Count(pattern, idPlaceholder) != 1 {
		return nil, fmt.Errorf("media pattern %q must contain %s exactly once", pattern, idPlaceholder)
	}
	if strings.ContainsAny(pattern, `/\`) {
		return nil, fmt.Errorf("media pattern %q must not contain path separators", pattern)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve media root: %w", err)
	}

	fi, err := fs.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat media root: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("media root %q is not a directory", abs)
	}

	return &Library{
		fs:      fs,
		root:    filepath.Clean(abs),
		pattern: pattern,
	}, nil
}

// Root returns the absolute media root.
func (l *Library) Root() string {
	return l.root
}

// Resolve maps id to an absolute path under the root without touching the
// filesystem. Any id that could escape the root is rejected.
func (l *Library) Resolve(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrNotFound)
	}
	if strings.ContainsAny(id, "/\\\x00") || id == "." || strings.Contains(id, "..") || filepath.IsAbs(id) {
		return "", fmt.Errorf("%w: rejected id %q", ErrNotFound, id)
	}

	name := strings.Replace(l.pattern, idPlaceholder, id, 1)
	path := filepath.Join(l.root, name)

	rel, err := filepath.Rel(l.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || strings.Contains(rel, string(filepath.Separator)) {
		return "", fmt.Errorf("%w: id %q escapes media root", ErrNotFound, id)
	}

	return path, nil
}

// Stat resolves id and reads the file's current size. Symlinks are
// reported as not found when the backend can tell them apart.
func (l *Library) Stat(id string) (Asset, error) {
	path, err := l.Resolve(id)
	if err != nil {
		return Asset{}, err
	}

	fi, err := l.lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Asset{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Asset{}, fmt.Errorf("stat %q: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return Asset{}, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, id)
	}

	return Asset{
		ID:          id,
		Path:        path,
		Size:        fi.Size(),
		ModTime:     fi.ModTime(),
		ContentType: ContentType,
	}, nil
}

// Open returns a read handle for the asset. The caller must close it.
func (l *Library) Open(a Asset) (afero.File, error) {
	f, err := l.fs.Open(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, a.ID)
		}
		return nil, fmt.Errorf("open %q: %w", a.Path, err)
	}
	return f, nil
}

// List returns every regular file in the root that matches the pattern,
// sorted by id.
func (l *Library) List() ([]Asset, error) {
	entries, err := afero.ReadDir(l.fs, l.root)
	if err != nil {
		return nil, fmt.Errorf("read media root: %w", err)
	}

	prefix, suffix, _ := strings.Cut(l.pattern, idPlaceholder)

	var assets []Asset
	for _, e := range entries {
		if !e.Mode().IsRegular() {
			continue
		}
		name := e.Name()
		if len(name) <= len(prefix)+len(suffix) || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		id := name[len(prefix) : len(name)-len(suffix)]
		if _, err := l.Resolve(id); err != nil {
			continue
		}
		assets = append(assets, Asset{
			ID:          id,
			Path:        filepath.Join(l.root, name),
			Size:        e.Size(),
			ModTime:     e.ModTime(),
			ContentType: ContentType,
		})
	}

	sort.Slice(assets, func(i, j int) bool {
		return lessID(assets[i].ID, assets[j].ID)
	})

	return assets, nil
}

func (l *Library) lstat(path string) (os.FileInfo, error) {
	if ls, ok := l.fs.(afero.Lstater); ok {
		fi, _, err := ls.LstatIfPossible(path)
		return fi, err
	}
	return l.fs.Stat(path)
}

// lessID orders numeric ids numerically ("2" < "10") and everything else
// lexically after them.
func lessID(a, b string) bool {
	an, aok := numeric(a)
	bn, bok := numeric(b)
	switch {
	case aok && bok:
		if an != bn {
			return an < bn
		}
		return a < b
	case aok:
		return true
	case bok:
		return false
	default:
		return a < b
	}
}

func numeric(s string) (int, bool) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
		if n > 1<<30 {
			return 0, false
		}
	}
	return n, s != ""
}
