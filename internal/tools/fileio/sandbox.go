package fileio

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// MaxReadBytes is the largest file read_file returns.
const MaxReadBytes = 1 << 20

// ErrTooLarge is returned for files above [MaxReadBytes].
var ErrTooLarge = errors.New("fileio: file too large")

// Sandbox confines file access to one directory tree. It is backed by an
// [os.Root], so neither ".." components nor symlinks can escape it. A Sandbox
// is safe for concurrent use.
type Sandbox struct {
	dir  string
	root *os.Root
}

// Open creates dir if needed and opens it as a sandbox.
func Open(dir string) (*Sandbox, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("fileio: resolve sandbox dir %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("fileio: create sandbox dir: %w", err)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("fileio: open sandbox: %w", err)
	}
	return &Sandbox{dir: abs, root: root}, nil
}

// Dir returns the absolute sandbox directory.
func (s *Sandbox) Dir() string {
	return s.dir
}

// Close releases the sandbox root.
func (s *Sandbox) Close() error {
	return s.root.Close()
}

// Clean validates a caller-supplied relative path and returns it cleaned,
// using the host separator. Absolute paths and paths leaving the sandbox
// are rejected.
func (s *Sandbox) Clean(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", errors.New("fileio: path must not be empty")
	}
	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("fileio: path %q escapes the sandbox directory", rel)
	}
	return filepath.Clean(local), nil
}

// Abs returns the absolute host path of rel after validating it.
func (s *Sandbox) Abs(rel string) (string, error) {
	clean, err := s.Clean(rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, clean), nil
}

// Write stores content at rel, creating parent directories. With appendMode
// the content is added to the end of an existing file.
func (s *Sandbox) Write(rel, content string, appendMode bool) (int, error) {
	clean, err := s.Clean(rel)
	if err != nil {
		return 0, err
	}
	if dir := filepath.Dir(clean); dir != "." {
		if err := s.root.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("fileio: create directories for %q: %w", rel, err)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendMode {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := s.root.OpenFile(clean, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("fileio: open %q: %w", rel, err)
	}
	n, err := io.WriteString(f, content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("fileio: write %q: %w", rel, err)
	}
	return n, nil
}

// Read returns the content of rel. Files above [MaxReadBytes] fail with
// [ErrTooLarge].
func (s *Sandbox) Read(rel string) (string, error) {
	clean, err := s.Clean(rel)
	if err != nil {
		return "", err
	}
	f, err := s.root.Open(clean)
	if err != nil {
		return "", fmt.Errorf("fileio: open %q: %w", rel, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("fileio: stat %q: %w", rel, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("fileio: %q is a directory", rel)
	}
	if info.Size() > MaxReadBytes {
		return "", fmt.Errorf("%w: %q is %d bytes, max %d", ErrTooLarge, rel, info.Size(), MaxReadBytes)
	}
	data, err := io.ReadAll(io.LimitReader(f, MaxReadBytes+1))
	if err != nil {
		return "", fmt.Errorf("fileio: read %q: %w", rel, err)
	}
	if len(data) > MaxReadBytes {
		return "", fmt.Errorf("%w: %q grew past %d bytes", ErrTooLarge, rel, MaxReadBytes)
	}
	return string(data), nil
}

// Entry is one item returned by [Sandbox.List].
type Entry struct {
	Path  string `json:"path"`
	Dir   bool   `json:"dir"`
	Bytes int64  `json:"bytes"`
}

// List walks the tree below rel ("" or "." for the whole sandbox) and
// returns every entry with slash-separated paths relative to the sandbox,
// stopping after limit entries.
func (s *Sandbox) List(rel string, limit int) ([]Entry, error) {
	start := "."
	if strings.TrimSpace(rel) != "" && rel != "." {
		clean, err := s.Clean(rel)
		if err != nil {
			return nil, err
		}
		start = filepath.ToSlash(clean)
	}

	errLimit := errors.New("limit reached")
	entries := []Entry{}
	err := fs.WalkDir(s.root.FS(), start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." || p == start && d.IsDir() {
			return nil
		}
		if len(entries) >= limit {
			return errLimit
		}
		e := Entry{Path: p, Dir: d.IsDir()}
		if !e.Dir {
			if info, err := d.Info(); err == nil {
				e.Bytes = info.Size()
			}
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return nil, fmt.Errorf("fileio: list %q: %w", rel, err)
	}
	return entries, nil
}
