package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/kalamos/internal/content"
	"git.home.luguber.info/inful/kalamos/internal/graph"
	"git.home.luguber.info/inful/kalamos/internal/layout"
	"git.home.luguber.info/inful/kalamos/internal/metrics"
	"git.home.luguber.info/inful/kalamos/internal/output"
	"git.home.luguber.info/inful/kalamos/internal/render"
	"git.home.luguber.info/inful/kalamos/internal/util/sets"
)

// FullBuild rescans every source file and renders the whole site. It runs
// the same pass logic as Apply, seeded as if every known producer had
// changed; outputs whose bytes are unchanged are still skipped by hash.
func (e *Engine) FullBuild(ctx context.Context) (*Report, error) {
	return e.pass(ctx, nil, true)
}

// Apply runs one incremental pass over a coalesced change batch. A change
// to the configuration file escalates to a full rebuild.
func (e *Engine) Apply(ctx context.Context, changes []Change) (*Report, error) {
	for _, c := range changes {
		if e.absPath(c.Path) == e.cfg.ConfigFile() {
			e.logger.Info("configuration changed, full rebuild")
			return e.pass(ctx, nil, true)
		}
	}
	return e.pass(ctx, changes, false)
}

func (e *Engine) pass(ctx context.Context, changes []Change, full bool) (*Report, error) {
	start := time.Now()
	report := &Report{PassID: uuid.NewString(), Full: full}

	changed := sets.New[graph.ProducerID]()
	renderSet := sets.New[graph.OutputID]()
	deleteSet := sets.New[graph.OutputID]()

	// Collecting
	if full {
		// a full rebuild treats every layout as changed too, so it must
		// render through a freshly loaded registry
		e.reloadLayouts(report)
		e.collectFull(renderSet, deleteSet, report)
	} else {
		e.collect(changes, changed, renderSet, deleteSet, report)
		// Resolving: one-hop lookup; layout fan-out was already expanded
		// into changed during collection.
		renderSet.AddAll(e.graph.Affected(changed))
	}
	for out := range deleteSet {
		renderSet.Delete(out)
	}

	for out := range deleteSet {
		if err := e.writer.Remove(string(out)); err != nil {
			report.Failed = append(report.Failed, OutputError{Output: out, Err: err})
			continue
		}
		e.graph.Forget(out)
		report.Deleted++
	}

	// Rendering
	if err := e.renderOutputs(ctx, renderSet, report); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	e.recorder.ObservePassDuration(report.Duration)
	e.recorder.AddOutputResult(metrics.OutputRendered, report.Rendered)
	e.recorder.AddOutputResult(metrics.OutputUnchanged, report.Unchanged)
	e.recorder.AddOutputResult(metrics.OutputFailed, len(report.Failed))
	e.recorder.AddOutputResult(metrics.OutputDeleted, report.Deleted)
	e.recorder.IncPassOutcome(report.Outcome())
	e.saveSnapshot()
	return report, nil
}

// collectFull rebuilds the site model from scratch: every loadable item is
// scheduled for rendering, graph entries with no backing source are
// scheduled for deletion, and the static tree is recopied wholesale.
func (e *Engine) collectFull(renderSet sets.Set[graph.OutputID], deleteSet sets.Set[graph.OutputID], report *Report) {
	e.items = make(map[content.ID]*content.Item)
	e.outputs = make(map[content.ID]graph.OutputID)

	items, errs := e.loader.LoadAll()
	report.LoadErrors = append(report.LoadErrors, errs...)
	for _, it := range items {
		out := graph.OutputID(it.OutputPath())
		e.items[it.ID] = it
		e.outputs[it.ID] = out
		renderSet.Add(out)
	}

	for _, out := range e.graph.Outputs() {
		if !renderSet.Has(out) {
			deleteSet.Add(out)
		}
	}

	if err := output.CopyDir(e.cfg.StaticDir(), e.cfg.OutputDir()); err != nil {
		report.LoadErrors = append(report.LoadErrors, fmt.Errorf("copy static assets: %w", err))
	}
}

// collect maps one change batch onto invalidated producers, outputs that
// must render regardless of the graph (added or moved items), and outputs
// to delete.
func (e *Engine) collect(changes []Change, changed sets.Set[graph.ProducerID], renderSet sets.Set[graph.OutputID], deleteSet sets.Set[graph.OutputID], report *Report) {
	layoutChanges := sets.New[layout.ID]()
	postsTouched := false

	for _, c := range changes {
		path := e.absPath(c.Path)
		switch {
		case e.isLayoutPath(path):
			layoutChanges.Add(layout.ID(strings.TrimSuffix(filepath.Base(path), ".html")))

		case e.isStaticPath(path):
			e.applyAssetChange(path, c.Op, report)

		default:
			if _, ok := e.loader.Classify(path); !ok {
				continue
			}
			postsTouched = e.collectContentChange(path, c.Op, changed, renderSet, deleteSet, report) || postsTouched
		}
	}

	if postsTouched {
		changed.Add(graph.Aggregate(render.AggregateAllPosts))
	}
	if layoutChanges.Len() > 0 {
		e.collectLayoutChanges(layoutChanges, changed, report)
	}
}

// collectContentChange reloads or forgets one content item and reports
// whether the post collection was touched.
func (e *Engine) collectContentChange(path string, op ChangeOp, changed sets.Set[graph.ProducerID], renderSet sets.Set[graph.OutputID], deleteSet sets.Set[graph.OutputID], report *Report) bool {
	id := e.loader.ID(path)

	if op == OpRemoved {
		it, ok := e.items[id]
		if !ok {
			return false
		}
		delete(e.items, id)
		if out, ok := e.outputs[id]; ok {
			deleteSet.Add(out)
			delete(e.outputs, id)
		}
		changed.Add(graph.Content(string(id)))
		return it.Kind == content.KindPost
	}

	it, err := e.loader.LoadFile(path)
	if err != nil {
		// The item keeps its previous in-memory state and on-disk output;
		// only the error is reported.
		report.LoadErrors = append(report.LoadErrors, err)
		return false
	}

	old := e.items[id]
	e.items[id] = it
	newOut := graph.OutputID(it.OutputPath())
	if oldOut, ok := e.outputs[id]; ok && oldOut != newOut {
		// date or url edit moved the destination
		deleteSet.Add(oldOut)
	}
	e.outputs[id] = newOut
	renderSet.Add(newOut)
	changed.Add(graph.Content(string(id)))
	return it.Kind == content.KindPost || (old != nil && old.Kind == content.KindPost)
}

// collectLayoutChanges reloads the layout registry and expands every
// changed layout over the inheritance relation, ancestor to descendant,
// against both the old and the new registry so that re-parenting
// invalidates both sides.
func (e *Engine) collectLayoutChanges(layoutChanges sets.Set[layout.ID], changed sets.Set[graph.ProducerID], report *Report) {
	old := e.reloadLayouts(report)

	for id := range layoutChanges {
		changed.Add(graph.Layout(string(id)))
		for _, d := range old.Descendants(id) {
			changed.Add(graph.Layout(string(d)))
		}
		for _, d := range e.layouts.Descendants(id) {
			changed.Add(graph.Layout(string(d)))
		}
	}
}

// reloadLayouts swaps in a freshly loaded layout registry and renderer,
// returning the previous registry so callers can expand inheritance over
// both sides of the swap. An unreadable layout root keeps the old
// registry in place and reports the error.
func (e *Engine) reloadLayouts(report *Report) *layout.Registry {
	old := e.layouts
	fresh, err := layout.LoadDir(e.cfg.LayoutsDir())
	if err != nil {
		report.LoadErrors = append(report.LoadErrors, err)
		return old
	}
	e.layouts = fresh
	e.renderer = render.New(fresh)
	for _, verr := range fresh.Validate() {
		e.logger.Warn("broken layout chain", "error", verr)
	}
	return old
}

// applyAssetChange mirrors one static file into the output tree. Assets
// are an unconditional copy outside dependency tracking.
func (e *Engine) applyAssetChange(path string, op ChangeOp, report *Report) {
	rel, err := filepath.Rel(e.cfg.StaticDir(), path)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	if op == OpRemoved {
		if err := e.writer.Remove(rel); err != nil {
			report.Failed = append(report.Failed, OutputError{Output: graph.OutputID(rel), Err: err})
		}
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		report.LoadErrors = append(report.LoadErrors, fmt.Errorf("read asset %s: %w", rel, err))
		return
	}
	if _, _, err := e.writer.Write(rel, data, ""); err != nil {
		report.Failed = append(report.Failed, OutputError{Output: graph.OutputID(rel), Err: err})
		return
	}
	report.Assets++
}

type renderTask struct {
	out  graph.OutputID
	item *content.Item
}

// renderOutputs renders the resolved output set. The all_posts snapshot is
// computed once, before any worker starts, and shared read-only. Outputs
// that depend only on directly-changed content render before outputs that
// read aggregates; within a phase order is unspecified.
func (e *Engine) renderOutputs(ctx context.Context, renderSet sets.Set[graph.OutputID], report *Report) error {
	if renderSet.Len() == 0 {
		return nil
	}

	byOutput := make(map[graph.OutputID]*content.Item, len(e.outputs))
	for id, out := range e.outputs {
		byOutput[out] = e.items[id]
	}

	site := render.NewSite(e.cfg.Title, e.cfg.BaseURL, e.cfg.Vars, render.PostRefs(e.sortedPosts()))
	agg := graph.Aggregate(render.AggregateAllPosts)

	var direct, aggregated []renderTask
	for out := range renderSet {
		it, ok := byOutput[out]
		if !ok {
			// graph entry with no backing item, e.g. restored from a stale
			// snapshot
			if err := e.writer.Remove(string(out)); err == nil {
				e.graph.Forget(out)
				report.Deleted++
			}
			continue
		}
		t := renderTask{out: out, item: it}
		if e.graph.DependsOn(out, agg) {
			aggregated = append(aggregated, t)
		} else {
			direct = append(direct, t)
		}
	}

	if err := e.renderPhase(ctx, direct, site, report); err != nil {
		return err
	}
	return e.renderPhase(ctx, aggregated, site, report)
}

// renderPhase fans tasks out over a bounded worker pool. Each output is
// owned by exactly one worker for the duration of its render; a failed
// output is reported and the phase continues.
func (e *Engine) renderPhase(ctx context.Context, tasks []renderTask, site *render.Site, report *Report) error {
	if len(tasks) == 0 {
		return nil
	}

	concurrency := e.cfg.Workers
	if concurrency > len(tasks) {
		concurrency = len(tasks)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	taskCh := make(chan renderTask)
	var wg sync.WaitGroup
	var mu sync.Mutex

	worker := func() {
		defer wg.Done()
		for t := range taskCh {
			select {
			case <-ctx.Done():
				return
			default:
			}
			res, err := e.renderOne(t.out, t.item, site)
			mu.Lock()
			switch {
			case err != nil:
				report.Failed = append(report.Failed, OutputError{Output: t.out, Err: err})
			case res == output.Written:
				report.Rendered++
			default:
				report.Unchanged++
			}
			mu.Unlock()
		}
	}

	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker()
	}
	for _, t := range tasks {
		select {
		case <-ctx.Done():
			close(taskCh)
			wg.Wait()
			return ctx.Err()
		case taskCh <- t:
		}
	}
	close(taskCh)
	wg.Wait()
	return nil
}

// renderOne renders a single output and commits its freshly observed edge
// set. On any failure the pass is abandoned: the previous on-disk content,
// edges and hash all stay in place.
func (e *Engine) renderOne(out graph.OutputID, it *content.Item, site *render.Site) (output.Result, error) {
	pass := e.graph.BeginPass(out)
	tracked := site.Tracked(func(name string) {
		pass.Record(graph.Aggregate(name))
	})

	html, chain, err := e.renderer.Render(it, tracked)
	if err != nil {
		return 0, err
	}
	pass.Record(graph.Content(string(it.ID)))
	for _, id := range chain {
		pass.Record(graph.Layout(string(id)))
	}

	res, hash, err := e.writer.Write(string(out), html, e.graph.Hash(out))
	if err != nil {
		return 0, err
	}
	pass.Commit(hash)
	return res, nil
}

func (e *Engine) absPath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(e.cfg.Root, path)
}

func (e *Engine) isLayoutPath(path string) bool {
	return underDir(e.cfg.LayoutsDir(), path) && filepath.Ext(path) == ".html"
}

func (e *Engine) isStaticPath(path string) bool {
	return underDir(e.cfg.StaticDir(), path)
}

func underDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
