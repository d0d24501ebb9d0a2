// Package render turns a content item plus its resolved context into final
// HTML bytes.
//
// Rendering is pure given its inputs: the Markdown body is converted once,
// then piped through the item's layout chain innermost-first, each layout
// receiving the accumulated HTML as the Content context field. Aggregate
// reads (the sorted post list) go through tracked accessor methods so the
// scheduler can record exactly what each output consumed.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"git.home.luguber.info/inful/kalamos/internal/content"
	"git.home.luguber.info/inful/kalamos/internal/layout"
)

// AggregateAllPosts names the synthetic producer representing the full,
// date-sorted post list.
const AggregateAllPosts = "all_posts"

// PostRef is one entry of the all_posts aggregate, as seen by templates.
type PostRef struct {
	Title   string
	URL     string
	Date    time.Time
	Excerpt template.HTML
}

// Site is the site-wide half of the render context. The post list is a
// read-only snapshot computed once per build pass; access is routed
// through Posts so a dependency tracker can observe the read.
type Site struct {
	Title   string
	BaseURL string
	Vars    map[string]any

	posts  []PostRef
	onRead func(aggregate string)
}

// NewSite builds a site context over an already-sorted post snapshot.
func NewSite(title, baseURL string, vars map[string]any, posts []PostRef) *Site {
	return &Site{Title: title, BaseURL: baseURL, Vars: vars, posts: posts}
}

// Tracked returns a view of the site whose aggregate accessors report
// reads to fn. The snapshot itself is shared, never copied.
func (s *Site) Tracked(fn func(aggregate string)) *Site {
	view := *s
	view.onRead = fn
	return &view
}

// Posts returns the date-descending post list and records an all_posts
// read on the tracker, if any. Templates iterate it for listing pages.
func (s *Site) Posts() []PostRef {
	if s.onRead != nil {
		s.onRead(AggregateAllPosts)
	}
	return s.posts
}

// Context is the value every layout template executes against.
type Context struct {
	Page    map[string]any
	Content template.HTML
	Site    *Site
}

// Renderer renders content items through a layout registry.
type Renderer struct {
	layouts *layout.Registry
}

// New creates a Renderer over the given layouts.
func New(layouts *layout.Registry) *Renderer {
	return &Renderer{layouts: layouts}
}

// Render produces the final HTML for one item and reports the layout chain
// it rendered through, so the caller can record layout dependencies.
//
// Failures are scoped to this one output: an unresolvable layout chain
// (errors.Is layout.ErrUnknown / layout.ErrCyclic) or a wrapped
// template/markdown expansion error.
func (r *Renderer) Render(it *content.Item, site *Site) ([]byte, []layout.ID, error) {
	chain, err := r.layouts.Resolve(layout.ID(it.Layout))
	if err != nil {
		return nil, nil, fmt.Errorf("render %s: %w", it.ID, err)
	}

	html, err := Markdown([]byte(it.Body))
	if err != nil {
		return nil, nil, fmt.Errorf("render %s: %w", it.ID, err)
	}

	ctx := Context{Page: it.Vars(), Site: site}
	ids := make([]layout.ID, 0, len(chain))
	for _, l := range chain {
		ids = append(ids, l.ID)
		ctx.Content = template.HTML(html)
		var buf bytes.Buffer
		if err := l.Template.Execute(&buf, ctx); err != nil {
			return nil, nil, fmt.Errorf("render %s: layout %s: %w", it.ID, l.ID, err)
		}
		html = buf.Bytes()
	}
	return html, ids, nil
}

// PostRefs builds the aggregate entries for a set of posts. Excerpts are
// converted through Markdown like body text; a post whose excerpt fails to
// convert contributes an empty excerpt rather than poisoning the list.
func PostRefs(posts []*content.Item) []PostRef {
	refs := make([]PostRef, 0, len(posts))
	for _, p := range posts {
		ref := PostRef{Title: p.Title, URL: p.Permalink(), Date: p.Date}
		if p.Excerpt != "" {
			if html, err := Markdown([]byte(p.Excerpt)); err == nil {
				ref.Excerpt = template.HTML(html)
			}
		}
		refs = append(refs, ref)
	}
	return refs
}
