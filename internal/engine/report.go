package engine

import (
	"time"

	"git.home.luguber.info/inful/kalamos/internal/graph"
)

// OutputError pairs a failed output with its render or write error.
type OutputError struct {
	Output graph.OutputID
	Err    error
}

// Report summarizes one build pass for the CLI/log layer.
type Report struct {
	PassID    string
	Full      bool
	Rendered  int
	Unchanged int
	Deleted   int
	Assets    int
	Failed    []OutputError
	// LoadErrors covers inputs that could not be parsed this pass:
	// broken content files and layout reload failures. Each is scoped to
	// its item; the pass itself continues.
	LoadErrors []error
	Duration   time.Duration
}

// Outcome classifies the pass for metrics: success, partial (some outputs
// failed or failed to load) or failed (nothing rendered, failures present).
func (r *Report) Outcome() string {
	failures := len(r.Failed) + len(r.LoadErrors)
	switch {
	case failures == 0:
		return "success"
	case r.Rendered == 0 && r.Unchanged == 0 && r.Deleted == 0:
		return "failed"
	default:
		return "partial"
	}
}
