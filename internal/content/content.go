// Package content parses source files into typed content items.
//
// Two item kinds exist: posts (dated, listed in aggregates) and pages
// (standalone). Both carry front matter, a raw Markdown body and a layout
// selection; the renderer consumes them uniformly.
package content

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// ID is a stable, path-derived identifier for a source file: its
// slash-separated path relative to the site root, e.g.
// "posts/2024-01-01-a.md". Unique per content file within a build session.
type ID string

// Kind discriminates the two content item variants.
type Kind int

const (
	KindPost Kind = iota
	KindPage
)

func (k Kind) String() string {
	if k == KindPost {
		return "post"
	}
	return "page"
}

// Default layout names per kind. An explicit `layout` front matter key
// overrides these.
const (
	DefaultPostLayout = "post"
	DefaultPageLayout = "default"
)

// DateFormat is the required form of the post `date` front matter field.
const DateFormat = "2006-01-02"

// ExcerptMarker splits a post body into excerpt and remainder.
const ExcerptMarker = "<!--more-->"

// Item is a loaded content file. Exactly one of the Kind-specific fields
// is meaningful: Date and URL are set for posts only.
type Item struct {
	ID          ID
	Kind        Kind
	FrontMatter map[string]any
	Body        string // raw Markdown, front matter removed
	Title       string
	Layout      string
	Date        time.Time // posts only
	URL         string    // posts only, from front matter
	Excerpt     string    // raw Markdown, "" when absent

	rel string // source path relative to its collection root, slash-separated
}

// OutputPath returns the destination path of the item's rendered HTML,
// relative to the output root and slash-separated.
//
// Posts get a date-derived prefix: 2024-01-01 with url "/first" becomes
// "2024/01/01/first.html". Pages mirror their collection-relative source
// path with the extension normalized to ".html".
func (it *Item) OutputPath() string {
	if it.Kind == KindPost {
		slug := strings.Trim(it.URL, "/")
		if path.Ext(slug) == "" {
			slug += ".html"
		}
		return path.Join(it.Date.Format("2006/01/02"), slug)
	}
	return strings.TrimSuffix(it.rel, path.Ext(it.rel)) + ".html"
}

// Permalink returns the site-absolute URL of the rendered item.
func (it *Item) Permalink() string {
	return "/" + it.OutputPath()
}

// Vars merges the item's front matter with computed defaults and standard
// injected variables. The result is the per-page half of the render
// context; site-wide variables and the rendered body are layered on by the
// renderer.
func (it *Item) Vars() map[string]any {
	vars := make(map[string]any, len(it.FrontMatter)+4)
	for k, v := range it.FrontMatter {
		vars[k] = v
	}
	vars["title"] = it.Title
	vars["layout"] = it.Layout
	vars["url"] = it.Permalink()
	if it.Kind == KindPost {
		vars["date"] = it.Date.Format(DateFormat)
	}
	return vars
}

func (it *Item) String() string {
	return fmt.Sprintf("%s(%s)", it.Kind, it.ID)
}
