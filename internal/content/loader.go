package content

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"
)

// Front matter is delimited either by `+++` lines (TOML) or `---` lines
// (YAML). The opening delimiter must be the first line of the file.
var formats = []*frontmatter.Format{
	frontmatter.NewFormat("+++", "+++", toml.Unmarshal),
	frontmatter.NewFormat("---", "---", yaml.Unmarshal),
}

var excerptMarkerRe = regexp.MustCompile(`\s*` + regexp.QuoteMeta(ExcerptMarker) + `\s*\n?`)

// Loader parses source files into Items, dispatching the variant by
// collection root: files under the posts root become posts, files under
// the pages root become pages.
type Loader struct {
	root     string // site root, for deriving IDs
	postsDir string
	pagesDir string
}

// NewLoader creates a loader for the given absolute roots.
func NewLoader(root, postsDir, pagesDir string) *Loader {
	return &Loader{root: root, postsDir: postsDir, pagesDir: pagesDir}
}

// Classify reports which collection a source path belongs to. Paths
// outside both collection roots, and non-Markdown files under the posts
// root, are not content.
func (l *Loader) Classify(path string) (Kind, bool) {
	if rel, ok := relativeTo(l.postsDir, path); ok {
		if filepath.Ext(rel) != ".md" {
			return 0, false
		}
		return KindPost, true
	}
	if _, ok := relativeTo(l.pagesDir, path); ok {
		return KindPage, true
	}
	return 0, false
}

// ID derives the content identifier for a source path.
func (l *Loader) ID(path string) ID {
	if rel, ok := relativeTo(l.root, path); ok {
		return ID(filepath.ToSlash(rel))
	}
	return ID(filepath.ToSlash(path))
}

// LoadFile reads and parses a single source file.
func (l *Loader) LoadFile(path string) (*Item, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return l.Load(path, raw)
}

// Load parses raw source bytes into an Item. The variant is dispatched by
// the path's collection root. Load has no side effects beyond the returned
// item.
func (l *Loader) Load(path string, raw []byte) (*Item, error) {
	kind, ok := l.Classify(path)
	if !ok {
		return nil, fmt.Errorf("%s: not a content file", path)
	}
	if kind == KindPage && filepath.Ext(path) != ".md" {
		return nil, fmt.Errorf("%s: %w %q", path, ErrUnsupportedExtension, filepath.Ext(path))
	}

	var fm map[string]any
	body, err := frontmatter.Parse(bytes.NewReader(raw), &fm, formats...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrMalformedFrontMatter, err)
	}
	if fm == nil {
		fm = map[string]any{}
	}

	collection := l.postsDir
	if kind == KindPage {
		collection = l.pagesDir
	}
	rel, _ := relativeTo(collection, path)

	it := &Item{
		ID:          l.ID(path),
		Kind:        kind,
		FrontMatter: fm,
		Body:        string(body),
		rel:         filepath.ToSlash(rel),
	}
	if it.Title, err = requireString(fm, "title", path); err != nil {
		return nil, err
	}

	switch kind {
	case KindPost:
		it.Layout = DefaultPostLayout
		if it.URL, err = requireString(fm, "url", path); err != nil {
			return nil, err
		}
		if strings.Trim(it.URL, "/") == "" {
			return nil, fmt.Errorf("%s: %w %q (no path segment)", path, ErrMissingRequiredField, "url")
		}
		rawDate, err := requireString(fm, "date", path)
		if err != nil {
			return nil, err
		}
		if it.Date, err = time.Parse(DateFormat, rawDate); err != nil {
			return nil, fmt.Errorf("%s: %w %q (want %s)", path, ErrInvalidDate, rawDate, DateFormat)
		}
	case KindPage:
		it.Layout = DefaultPageLayout
	}
	if v, ok := fm["layout"].(string); ok && v != "" {
		it.Layout = v
	}

	it.Excerpt = extractExcerpt(fm, it.Body)
	return it, nil
}

// LoadAll walks both collection roots and loads every content file.
// Per-file load failures are collected and returned alongside the items
// that did load; a broken item never aborts the rest of the site.
func (l *Loader) LoadAll() ([]*Item, []error) {
	var items []*Item
	var errs []error
	for _, dir := range []string{l.postsDir, l.pagesDir} {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			if _, ok := l.Classify(path); !ok {
				return nil
			}
			it, err := l.LoadFile(path)
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			items = append(items, it)
			return nil
		})
		if walkErr != nil {
			errs = append(errs, fmt.Errorf("walk %s: %w", dir, walkErr))
		}
	}
	return items, errs
}

// extractExcerpt prefers an explicit `excerpt` front matter field, then
// the body text up to the first excerpt marker. Without either there is
// no excerpt.
func extractExcerpt(fm map[string]any, body string) string {
	if v, ok := fm["excerpt"].(string); ok && v != "" {
		return v
	}
	parts := excerptMarkerRe.Split(body, 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

func requireString(fm map[string]any, key, path string) (string, error) {
	v, ok := fm[key]
	if !ok {
		return "", fmt.Errorf("%s: %w %q", path, ErrMissingRequiredField, key)
	}
	switch s := v.(type) {
	case string:
		if s == "" {
			return "", fmt.Errorf("%s: %w %q", path, ErrMissingRequiredField, key)
		}
		return s, nil
	case time.Time:
		// TOML parses bare dates into time values.
		return s.Format(DateFormat), nil
	case fmt.Stringer:
		return s.String(), nil
	default:
		return "", fmt.Errorf("%s: %w %q (got %T)", path, ErrMissingRequiredField, key, v)
	}
}

func relativeTo(dir, path string) (string, bool) {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return rel, true
}
