// Package engine is the incremental build scheduler.
//
// A pass moves through Collecting (mapping changed paths to invalidated
// producers), Resolving (computing the affected output set from the
// dependency graph) and Rendering (re-rendering affected outputs on a
// bounded worker pool). A full rebuild is the same pass seeded with every
// known producer changed; there is no separate code path.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"git.home.luguber.info/inful/kalamos/internal/config"
	"git.home.luguber.info/inful/kalamos/internal/content"
	"git.home.luguber.info/inful/kalamos/internal/graph"
	"git.home.luguber.info/inful/kalamos/internal/layout"
	"git.home.luguber.info/inful/kalamos/internal/metrics"
	"git.home.luguber.info/inful/kalamos/internal/output"
	"git.home.luguber.info/inful/kalamos/internal/render"
)

// snapshotRelPath locates the persisted dependency graph under the site
// root. Losing it is harmless: the next pass degrades to a full rebuild.
const snapshotRelPath = ".kalamos/graph.json"

// quietWindow is how long Run waits after the last change event before
// starting a pass; events inside the window coalesce into one batch.
const quietWindow = 200 * time.Millisecond

// Engine owns the site model, the dependency graph and the render
// pipeline. All passes run on the caller's goroutine; the worker pool is
// internal to a pass. Engine is not safe for concurrent passes.
type Engine struct {
	cfg      *config.Config
	loader   *content.Loader
	layouts  *layout.Registry
	renderer *render.Renderer
	graph    *graph.Graph
	writer   *output.Writer

	items   map[content.ID]*content.Item
	outputs map[content.ID]graph.OutputID // destination of the item's last render

	recorder metrics.Recorder
	logger   *slog.Logger
}

// New creates an engine for the configured site. Layouts are loaded and
// checked up front: an unreadable layout root is a startup error, while
// per-chain problems (cycles, unknown parents) are logged and surface
// later as per-output failures. A persisted graph snapshot is restored
// when present so incremental behavior survives process restarts.
func New(cfg *config.Config) (*Engine, error) {
	layouts, err := layout.LoadDir(cfg.LayoutsDir())
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		loader:   content.NewLoader(cfg.Root, cfg.PostsDir(), cfg.PagesDir()),
		layouts:  layouts,
		renderer: render.New(layouts),
		writer:   output.NewWriter(cfg.OutputDir()),
		items:    make(map[content.ID]*content.Item),
		outputs:  make(map[content.ID]graph.OutputID),
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}

	for _, err := range layouts.Validate() {
		e.logger.Warn("broken layout chain", "error", err)
	}

	snapshot := e.snapshotPath()
	if g, err := graph.Load(snapshot); err == nil {
		e.graph = g
		e.logger.Info("restored dependency graph", "outputs", g.Len(), "path", snapshot)
	} else {
		if !os.IsNotExist(err) {
			e.logger.Warn("graph snapshot unusable, falling back to full rebuild", "error", err)
		}
		e.graph = graph.New()
	}
	return e, nil
}

// WithRecorder sets a metrics recorder.
func (e *Engine) WithRecorder(r metrics.Recorder) *Engine {
	if r != nil {
		e.recorder = r
	}
	return e
}

// WithLogger sets a custom logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// Graph exposes the dependency graph for inspection (tests, tooling).
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Item returns the loaded content item for id, if present.
func (e *Engine) Item(id content.ID) (*content.Item, bool) {
	it, ok := e.items[id]
	return it, ok
}

func (e *Engine) snapshotPath() string {
	return filepath.Join(e.cfg.Root, filepath.FromSlash(snapshotRelPath))
}

// saveSnapshot persists the graph after a pass; failure is logged, never
// fatal, since the worst case is a full rebuild after restart.
func (e *Engine) saveSnapshot() {
	if err := e.graph.Save(e.snapshotPath()); err != nil {
		e.logger.Warn("persist dependency graph", "error", err)
	}
}

// sortedPosts returns the all_posts ordering: date descending, ties by
// ContentId ascending.
func (e *Engine) sortedPosts() []*content.Item {
	var posts []*content.Item
	for _, it := range e.items {
		if it.Kind == content.KindPost {
			posts = append(posts, it)
		}
	}
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].Date.Equal(posts[j].Date) {
			return posts[i].Date.After(posts[j].Date)
		}
		return posts[i].ID < posts[j].ID
	})
	return posts
}

// Run consumes change events until ctx is canceled or the channel closes.
// Events arriving within the quiet window are coalesced into one batch;
// events arriving while a pass is rendering queue up in the channel and
// fold into the next batch. Each completed pass is handed to onPass when
// non-nil.
func (e *Engine) Run(ctx context.Context, events <-chan Change, onPass func(*Report)) error {
	var pending []Change
	timer := time.NewTimer(quietWindow)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			pending = append(pending, ev)
			e.recorder.SetQueuedChanges(len(pending))
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(quietWindow)

		case <-timer.C:
			batch := Coalesce(pending)
			pending = nil
			e.recorder.SetQueuedChanges(0)
			report, err := e.Apply(ctx, batch)
			if err != nil {
				return fmt.Errorf("build pass: %w", err)
			}
			e.logReport(report)
			if onPass != nil {
				onPass(report)
			}
		}
	}
}

func (e *Engine) logReport(r *Report) {
	e.logger.Info("pass complete",
		"pass", r.PassID,
		"full", r.Full,
		"rendered", r.Rendered,
		"unchanged", r.Unchanged,
		"deleted", r.Deleted,
		"failed", len(r.Failed),
		"load_errors", len(r.LoadErrors),
		"duration", r.Duration)
	for _, f := range r.Failed {
		e.logger.Error("output failed", "output", f.Output, "error", f.Err)
	}
	for _, err := range r.LoadErrors {
		e.logger.Error("load failed", "error", err)
	}
}
