// Package content renders the static Markdown pages (about, membership,
// events, careers, login copy). Embedded defaults can be overridden per slug
// from a directory on disk, which is watched for changes.
package content

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/starford/biddge/internal/apperr"
	"github.com/starford/biddge/internal/checksum"
)

//go:embed defaults/*.md
var defaultsFS embed.FS

// Page is a rendered Markdown page.
type Page struct {
	Slug        string
	Title       string
	Description string
	HTML        template.HTML
	Checksum    string
}

// Pages renders and caches content pages.
type Pages struct {
	dir      *Dir // nil when no override directory is configured
	defaults fs.FS
	md       goldmark.Markdown
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[string]*Page
}

// NewPages creates a page renderer. dir may be nil.
func NewPages(dir *Dir, logger *slog.Logger) *Pages {
	if logger == nil {
		logger = slog.Default()
	}
	sub, _ := fs.Sub(defaultsFS, "defaults")
	return &Pages{
		dir:      dir,
		defaults: sub,
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(
					highlighting.WithStyle("github"),
				),
			),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		logger: logger,
		cache:  make(map[string]*Page),
	}
}

// Get returns the rendered page for slug.
func (p *Pages) Get(slug string) (*Page, error) {
	p.mu.RLock()
	page, ok := p.cache[slug]
	p.mu.RUnlock()
	if ok {
		return page, nil
	}

	raw, err := p.read(slug)
	if err != nil {
		return nil, err
	}
	page, err = p.render(slug, raw)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[slug] = page
	p.mu.Unlock()
	return page, nil
}

// Reload re-reads slug and replaces the cached page when its checksum changed.
// It reports whether the cached page was replaced or dropped.
func (p *Pages) Reload(slug string) bool {
	p.mu.RLock()
	old, cached := p.cache[slug]
	p.mu.RUnlock()

	raw, err := p.read(slug)
	if err != nil {
		p.mu.Lock()
		delete(p.cache, slug)
		p.mu.Unlock()
		return cached
	}
	if cached && old.Checksum == checksum.Sum(raw) {
		return false
	}
	page, err := p.render(slug, raw)
	if err != nil {
		p.logger.Warn("content: render failed", slog.String("slug", slug), slog.String("error", err.Error()))
		return false
	}
	p.mu.Lock()
	p.cache[slug] = page
	p.mu.Unlock()
	return true
}

// Forget drops every cached page.
func (p *Pages) Forget() {
	p.mu.Lock()
	p.cache = make(map[string]*Page)
	p.mu.Unlock()
}

func (p *Pages) read(slug string) ([]byte, error) {
	if p.dir != nil {
		data, err := p.dir.Read(slug)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("content: override read failed", slog.String("slug", slug), slog.String("error", err.Error()))
		}
	}
	data, err := fs.ReadFile(p.defaults, slug+".md")
	if err != nil {
		return nil, fmt.Errorf("content: page %q: %w", slug, apperr.ErrNotFound)
	}
	return data, nil
}

func (p *Pages) render(slug string, raw []byte) (*Page, error) {
	m, body := splitFrontmatter(raw)
	var buf bytes.Buffer
	if err := p.md.Convert(body, &buf); err != nil {
		return nil, fmt.Errorf("content: convert %s: %w", slug, err)
	}
	return &Page{
		Slug:        slug,
		Title:       deriveTitle(m, body),
		Description: m.Description,
		HTML:        template.HTML(buf.String()), //nolint:gosec // goldmark escapes raw HTML by default
		Checksum:    checksum.Sum(raw),
	}, nil
}
