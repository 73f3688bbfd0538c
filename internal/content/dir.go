package content

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Override files are Markdown; dotfiles such as editor lock files are skipped.
const (
	pagePattern   = "**/*.md"
	hiddenPattern = "**/.*"
)

// Dir reads page overrides from a directory on disk.
type Dir struct {
	root string // absolute path
}

// NewDir creates a Dir rooted at root. The directory must already exist.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("content: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("content: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("content: root is not a directory: %s", abs)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute directory path.
func (d *Dir) Root() string {
	return d.root
}

// Read returns the raw Markdown of slug, or an error wrapping os.ErrNotExist.
func (d *Dir) Read(slug string) ([]byte, error) {
	p, err := d.safePath(slug + ".md")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("content: read %s: %w", slug, err)
	}
	return data, nil
}

// SlugOf maps an absolute file path back to its slug. ok is false for files
// outside the root, hidden files and anything that is not Markdown.
func (d *Dir) SlugOf(path string) (string, bool) {
	rel, err := filepath.Rel(d.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if hidden, _ := doublestar.Match(hiddenPattern, rel); hidden {
		return "", false
	}
	if md, _ := doublestar.Match(pagePattern, rel); !md {
		return "", false
	}
	return strings.TrimSuffix(rel, ".md"), true
}

// safePath rejects any path that escapes the root.
func (d *Dir) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("content: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(d.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("content: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, d.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("content: path escapes root: %s", rel)
	}
	return abs, nil
}
