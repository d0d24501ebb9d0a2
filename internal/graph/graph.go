// Package graph records which inputs every output artifact was derived
// from, and answers the inverse question: given a set of changed inputs,
// which outputs must be regenerated.
//
// Edges are rebuilt freshly on every render pass that touches an output;
// no incremental graph surgery. Aggregates (the post list) are first-class
// producer nodes, so invalidation is a direct one-hop lookup — the only
// transitive relation, layout inheritance, is expanded by the caller
// before the lookup (see layout.Registry.Descendants).
package graph

import (
	"fmt"
	"strings"
	"sync"

	"git.home.luguber.info/inful/kalamos/internal/util/sets"
)

// OutputID is the destination path of a rendered artifact, relative to
// the output root and slash-separated.
type OutputID string

// ProducerKind discriminates the three producer node types.
type ProducerKind int

const (
	ProducerContent ProducerKind = iota
	ProducerLayout
	ProducerAggregate
)

func (k ProducerKind) String() string {
	switch k {
	case ProducerContent:
		return "content"
	case ProducerLayout:
		return "layout"
	default:
		return "aggregate"
	}
}

// ProducerID identifies an input node: a content file, a layout, or a
// synthetic aggregate such as all_posts.
type ProducerID struct {
	Kind ProducerKind
	Name string
}

func (p ProducerID) String() string {
	return p.Kind.String() + ":" + p.Name
}

// Content returns the producer node for a content file.
func Content(name string) ProducerID {
	return ProducerID{Kind: ProducerContent, Name: name}
}

// Layout returns the producer node for a layout id.
func Layout(name string) ProducerID {
	return ProducerID{Kind: ProducerLayout, Name: name}
}

// Aggregate returns the producer node for a derived collection.
func Aggregate(name string) ProducerID {
	return ProducerID{Kind: ProducerAggregate, Name: name}
}

// ParseProducer is the inverse of ProducerID.String, used by the
// snapshot codec.
func ParseProducer(s string) (ProducerID, error) {
	kind, name, ok := strings.Cut(s, ":")
	if !ok {
		return ProducerID{}, fmt.Errorf("malformed producer id %q", s)
	}
	switch kind {
	case "content":
		return Content(name), nil
	case "layout":
		return Layout(name), nil
	case "aggregate":
		return Aggregate(name), nil
	default:
		return ProducerID{}, fmt.Errorf("unknown producer kind %q", s)
	}
}

// Graph is the dependency graph plus the per-output content hashes of the
// last written bytes. Mutation happens through Pass commits and Forget;
// both directions of every edge are kept so affected-output lookup is a
// map access per changed producer.
type Graph struct {
	mu        sync.RWMutex
	producers map[OutputID]sets.Set[ProducerID]
	consumers map[ProducerID]sets.Set[OutputID]
	hashes    map[OutputID]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		producers: make(map[OutputID]sets.Set[ProducerID]),
		consumers: make(map[ProducerID]sets.Set[OutputID]),
		hashes:    make(map[OutputID]string),
	}
}

// Pass stages the dependency edges observed while rendering one output.
// Each output is owned by exactly one worker for the duration of its
// render, so Record needs no locking; Commit atomically replaces the
// output's edge set, discarding stale edges from the prior pass. An
// abandoned pass (render failure) leaves the previous edges and hash
// untouched.
type Pass struct {
	g        *Graph
	out      OutputID
	observed sets.Set[ProducerID]
}

// BeginPass starts a fresh edge-recording pass for out.
func (g *Graph) BeginPass(out OutputID) *Pass {
	return &Pass{g: g, out: out, observed: sets.New[ProducerID]()}
}

// Record adds a producer edge. Idempotent within the pass.
func (p *Pass) Record(prod ProducerID) {
	p.observed.Add(prod)
}

// Commit replaces the output's edge set with the recorded one and stores
// the content hash of the newly written bytes.
func (p *Pass) Commit(hash string) {
	g := p.g
	g.mu.Lock()
	defer g.mu.Unlock()

	for prod := range g.producers[p.out] {
		g.dropConsumerLocked(prod, p.out)
	}
	g.producers[p.out] = p.observed.Clone()
	for prod := range p.observed {
		if g.consumers[prod] == nil {
			g.consumers[prod] = sets.New[OutputID]()
		}
		g.consumers[prod].Add(p.out)
	}
	g.hashes[p.out] = hash
}

// Affected returns every output with at least one edge whose producer is
// in changed. Direct lookup only: aggregate fan-in is captured by the
// aggregate nodes themselves, and layout fan-out must be expanded by the
// caller before the call.
func (g *Graph) Affected(changed sets.Set[ProducerID]) sets.Set[OutputID] {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := sets.New[OutputID]()
	for prod := range changed {
		for consumer := range g.consumers[prod] {
			out.Add(consumer)
		}
	}
	return out
}

// DependsOn reports whether out currently has an edge on prod.
func (g *Graph) DependsOn(out OutputID, prod ProducerID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.producers[out].Has(prod)
}

// Producers returns a copy of the output's current edge set.
func (g *Graph) Producers(out OutputID) sets.Set[ProducerID] {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if s, ok := g.producers[out]; ok {
		return s.Clone()
	}
	return sets.New[ProducerID]()
}

// Hash returns the content hash of the last bytes written for out, or ""
// if the output has never been committed.
func (g *Graph) Hash(out OutputID) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hashes[out]
}

// Forget removes the output's artifact record and all of its edges, e.g.
// when its source file was deleted.
func (g *Graph) Forget(out OutputID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for prod := range g.producers[out] {
		g.dropConsumerLocked(prod, out)
	}
	delete(g.producers, out)
	delete(g.hashes, out)
}

// Outputs returns every known output id in unspecified order.
func (g *Graph) Outputs() []OutputID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]OutputID, 0, len(g.producers))
	for id := range g.producers {
		out = append(out, id)
	}
	return out
}

// Len returns the number of known outputs.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.producers)
}

func (g *Graph) dropConsumerLocked(prod ProducerID, out OutputID) {
	if consumers, ok := g.consumers[prod]; ok {
		consumers.Delete(out)
		if consumers.Len() == 0 {
			delete(g.consumers, prod)
		}
	}
}
