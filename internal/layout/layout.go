// Package layout loads named templates and resolves layout inheritance
// chains.
//
// A layout is an HTML template file in the layout root. It may declare a
// parent layout in a front matter block; chains are followed iteratively
// with a visited set so a misconfigured cycle is detected rather than
// looping. Rendering wraps content through the chain innermost-first via
// the Content context field.
package layout

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/kalamos/internal/util/sets"
)

var (
	// ErrUnknown indicates a referenced layout id has no definition.
	ErrUnknown = errors.New("unknown layout")

	// ErrCyclic indicates the layout-inheritance relation revisits an id.
	ErrCyclic = errors.New("cyclic layout inheritance")
)

// ID names a layout: the template file name without its extension.
type ID string

// Layout is a single named template plus its inheritance link. A file
// that failed to load still occupies its id with loadErr set, so only
// chains passing through it fail while the rest of the registry stays
// usable.
type Layout struct {
	ID       ID
	Parent   ID // "" when the layout has no parent
	Path     string
	Template *template.Template
	loadErr  error
}

// frontMatter is the layout file header; only inheritance lives there.
type frontMatter struct {
	Parent string `toml:"parent" yaml:"parent"`
}

var formats = []*frontmatter.Format{
	frontmatter.NewFormat("+++", "+++", toml.Unmarshal),
	frontmatter.NewFormat("---", "---", yaml.Unmarshal),
}

// Registry holds every layout loaded from the layout root, keyed by id.
type Registry struct {
	layouts map[ID]*Layout
}

// LoadDir reads every *.html template in dir into a Registry. Per-file
// problems (template parse failures, malformed front matter) are scoped
// to their layout: the broken id stays registered carrying the error,
// surfaced by Resolve and Validate, and every other layout loads fresh.
// Only an unreadable directory fails the whole load.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read layout root %s: %w", dir, err)
	}

	reg := &Registry{layouts: make(map[ID]*Layout, len(entries))}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".html" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		l, err := loadFile(path)
		if err != nil {
			id := ID(strings.TrimSuffix(e.Name(), ".html"))
			l = &Layout{ID: id, Path: path, loadErr: err}
		}
		reg.layouts[l.ID] = l
	}
	return reg, nil
}

func loadFile(path string) (*Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout %s: %w", path, err)
	}

	var fm frontMatter
	body, err := frontmatter.Parse(bytes.NewReader(raw), &fm, formats...)
	if err != nil {
		return nil, fmt.Errorf("layout %s: malformed front matter: %w", path, err)
	}

	id := ID(strings.TrimSuffix(filepath.Base(path), ".html"))
	tmpl, err := template.New(string(id)).Parse(string(body))
	if err != nil {
		return nil, fmt.Errorf("layout %s: %w", path, err)
	}
	return &Layout{ID: id, Parent: ID(fm.Parent), Path: path, Template: tmpl}, nil
}

// Get returns the layout for id, if defined.
func (r *Registry) Get(id ID) (*Layout, bool) {
	l, ok := r.layouts[id]
	return l, ok
}

// IDs returns every defined layout id in ascending order.
func (r *Registry) IDs() []ID {
	out := make([]ID, 0, len(r.layouts))
	for id := range r.layouts {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve follows parent links from start until a root layout is reached
// and returns the chain innermost-first, e.g. [post, base]. The walk is
// iterative: revisiting an id fails with ErrCyclic, a missing definition
// fails with ErrUnknown, and a definition whose file failed to load fails
// with that load error. A resolved chain never contains an id twice.
func (r *Registry) Resolve(start ID) ([]*Layout, error) {
	var chain []*Layout
	visited := sets.New[ID]()

	for id := start; id != ""; {
		if visited.Has(id) {
			return nil, fmt.Errorf("%w: %q revisited from %q", ErrCyclic, id, start)
		}
		visited.Add(id)

		l, ok := r.layouts[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q (wanted by %q)", ErrUnknown, id, start)
		}
		if l.loadErr != nil {
			return nil, l.loadErr
		}
		chain = append(chain, l)
		id = l.Parent
	}
	return chain, nil
}

// Descendants returns every layout id whose inheritance chain passes
// through id, including id itself when defined. A change to a base layout
// therefore fans out to all layouts built on it.
func (r *Registry) Descendants(id ID) []ID {
	out := sets.New[ID]()
	if _, ok := r.layouts[id]; ok {
		out.Add(id)
	}
	for candidate, l := range r.layouts {
		visited := sets.New[ID](candidate)
		for parent := l.Parent; parent != ""; {
			if parent == id {
				out.Add(candidate)
				break
			}
			if visited.Has(parent) {
				break // broken chain, reported by Resolve
			}
			visited.Add(parent)
			next, ok := r.layouts[parent]
			if !ok {
				break
			}
			parent = next.Parent
		}
	}
	return sets.SortedValues(out)
}

// Validate resolves every defined layout and returns one error per broken
// chain. Cycles and unknown parents are configuration errors surfaced
// before any rendering; unaffected layouts stay usable.
func (r *Registry) Validate() []error {
	var errs []error
	for _, id := range r.IDs() {
		if _, err := r.Resolve(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
