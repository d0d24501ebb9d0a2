// Package metrics provides observability hooks for build passes.
//
// Components receive a Recorder by injection and default to NoopRecorder,
// so no call site needs a nil check and serve mode can swap in the
// Prometheus implementation without code changes.
package metrics

import "time"

// OutputResult enumerates per-output outcomes within a pass.
type OutputResult string

const (
	OutputRendered  OutputResult = "rendered"
	OutputUnchanged OutputResult = "unchanged"
	OutputFailed    OutputResult = "failed"
	OutputDeleted   OutputResult = "deleted"
)

// Recorder defines the build observability surface. Implementations must
// be safe for concurrent use; render workers report output results in
// parallel.
type Recorder interface {
	ObservePassDuration(d time.Duration)
	AddOutputResult(result OutputResult, n int)
	IncPassOutcome(outcome string) // outcome: success|partial|failed
	SetQueuedChanges(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are
// not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePassDuration(time.Duration) {}
func (NoopRecorder) AddOutputResult(OutputResult, int) {}
func (NoopRecorder) IncPassOutcome(string)             {}
func (NoopRecorder) SetQueuedChanges(int)              {}
