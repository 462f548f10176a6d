package freq

import (
	"fmt"
	"time"

	"github.com/ardnew/lospdisk/losp"
	"github.com/ardnew/lospdisk/pkg"
)

// NoSignalLine is sent to the sink when an edge pair carries no reference
// count.
const NoSignalLine = "no signal"

// Result is one published estimate.
type Result struct {
	Freq           float64 // Hz
	FreqRMS        float64 // Hz
	FreqAccuracy   float64 // percent
	Period         float64 // seconds
	PeriodRMS      float64 // seconds
	PeriodAccuracy float64 // percent
	Min            float64
	Max            float64
	Samples        int
	Total          uint64
	Target         float64 // percent, below TargetDisabled when absent
	Time           time.Time
}

// String formats the result as a status line: absolute uncertainty in Hz
// without a target, percent accuracy with one.
func (r *Result) String() string {
	if r.Target < TargetDisabled {
		return fmt.Sprintf("f = %.6f Hz ± %.6f Hz", r.Freq, r.FreqRMS)
	}
	return fmt.Sprintf("f = %.6f Hz ± %.4f %%", r.Freq, r.PeriodAccuracy)
}

// Batch summarizes one Process call.
type Batch struct {
	Edges    int     // new edges in the snapshot
	Samples  int     // edge pairs folded into the accumulator
	NoSignal bool    // batch aborted on a zero reference delta
	Result   *Result // non-nil if a result was published
}

// Engine turns telemetry snapshots into a running frequency estimate. An
// Engine is owned by one goroutine and is not safe for concurrent use.
type Engine struct {
	cfg     Config
	acc     Accumulator
	lastFix uint32
}

// New creates an engine.
func New(opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{cfg: cfg}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Accumulator returns a copy of the current statistics.
func (e *Engine) Accumulator() Accumulator { return e.acc }

// Process folds the edges that arrived since the previous snapshot into the
// accumulator and publishes a result when the publication policy allows.
func (e *Engine) Process(pb *losp.PhaseBuffer) Batch {
	now := e.cfg.Clock()
	if e.acc.Deadline.IsZero() {
		e.acc.OldAvg = e.acc.FreqAvg
		e.acc.Deadline = now.Add(e.cfg.Interval)
	}

	k := e.newEdges(pb)
	b := Batch{Edges: k}

	valid := len(pb.Edges)
	for i := max(valid-k, 1); i < valid; i++ {
		prev, cur := pb.Edges[i-1], pb.Edges[i]
		m := cur.Ticks - prev.Ticks
		n := pb.RefDelta(prev, cur)
		if n == 0 || m == 0 || pb.SysClockHz == 0 {
			e.noSignal(i)
			b.NoSignal = true
			return b
		}
		e.acc.Add(float64(pb.SysClockHz) * float64(m) / float64(n))
		b.Samples++
	}

	if e.due(now) {
		b.Result = e.publish(now)
	}
	return b
}

// newEdges returns how many edges of pb are new, and records its fix count.
func (e *Engine) newEdges(pb *losp.PhaseBuffer) int {
	k := int(pb.FixCount - e.lastFix)
	if k < 0 {
		k = len(pb.Edges)
	}
	if pb.MaxCount > 0 {
		k = min(k, int(pb.MaxCount))
	}
	e.lastFix = pb.FixCount
	return min(k, len(pb.Edges))
}

func (e *Engine) noSignal(edge int) {
	e.acc.ResetInterval()
	e.acc.NoSignal++
	pkg.LogInfo(pkg.ComponentStats, "no signal", "edge", edge, "events", e.acc.NoSignal)
	e.emit(NoSignalLine)
}

func (e *Engine) due(now time.Time) bool {
	if e.acc.Count == 0 {
		return false
	}
	if !e.cfg.TargetEnabled() {
		return !now.Before(e.acc.Deadline)
	}
	return e.acc.Count >= MinSamples(e.cfg.TargetAccuracy) &&
		e.acc.PeriodAccuracy() < e.cfg.TargetAccuracy
}

func (e *Engine) publish(now time.Time) *Result {
	a := &e.acc
	r := &Result{
		Freq:           a.FreqAvg,
		FreqRMS:        a.FreqRMS(),
		FreqAccuracy:   a.FreqAccuracy(),
		Period:         a.PeriodAvg,
		PeriodRMS:      a.PeriodRMS(),
		PeriodAccuracy: a.PeriodAccuracy(),
		Min:            a.MinF,
		Max:            a.MaxF,
		Samples:        a.Count,
		Total:          a.Total,
		Target:         e.cfg.TargetAccuracy,
		Time:           now,
	}

	a.OldAvg = a.FreqAvg
	a.Publications++
	a.ResetInterval()
	a.Deadline = a.Deadline.Add(e.cfg.Interval)
	if !a.Deadline.After(now) {
		a.Deadline = now.Add(e.cfg.Interval)
	}

	pkg.LogDebug(pkg.ComponentStats, "published",
		"freq", r.Freq,
		"rms", r.FreqRMS,
		"accuracy", r.PeriodAccuracy,
		"samples", r.Samples)
	e.emit(r.String())
	return r
}

// Flush publishes whatever the current interval holds. Returns nil if it
// holds no samples.
func (e *Engine) Flush() *Result {
	if e.acc.Count == 0 {
		return nil
	}
	now := e.cfg.Clock()
	if e.acc.Deadline.IsZero() {
		e.acc.Deadline = now
	}
	return e.publish(now)
}

// Reset clears all statistics and the fix counter baseline.
func (e *Engine) Reset() {
	e.acc.Reset()
	e.lastFix = 0
}

func (e *Engine) emit(line string) {
	if e.cfg.Sink != nil {
		e.cfg.Sink(line)
	}
}
