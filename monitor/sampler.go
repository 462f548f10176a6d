package monitor

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ardnew/lospdisk/freq"
	"github.com/ardnew/lospdisk/losp"
	"github.com/ardnew/lospdisk/pkg"
)

// Source supplies telemetry snapshots. *losp.Client satisfies it.
type Source interface {
	PhaseBuffer(ctx context.Context) (*losp.PhaseBuffer, error)
}

// Stats counts the activity of a run.
type Stats struct {
	Session  uuid.UUID
	Polls    int
	Errors   int
	Samples  int
	NoSignal int
	Results  int
	Last     *freq.Result
}

// Sampler is the single worker feeding a frequency engine from a Source.
// The engine must not be used elsewhere while Run executes.
type Sampler struct {
	src Source
	eng *freq.Engine
	cfg Config

	mu    sync.Mutex
	stats Stats
}

// New creates a sampler.
func New(src Source, eng *freq.Engine, opts ...Option) *Sampler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Sampler{src: src, eng: eng, cfg: cfg}
}

// Stats returns a snapshot of the counters of the current or last run.
func (s *Sampler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run polls the source until ctx is done, MaxPolls is reached or too many
// consecutive polls fail. Cancellation is observed between polls; a poll in
// flight always completes. The engine is flushed before Run returns.
//
// Run returns nil when stopped by ctx or MaxPolls, and the last poll error
// when the error tolerance is exhausted.
func (s *Sampler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.stats = Stats{Session: uuid.New()}
	session := s.stats.Session
	s.mu.Unlock()

	log := pkg.Logger(pkg.ComponentMonitor).With("session", session.String())
	log.Info("sampling started", "rate", s.cfg.Rate, "max_errors", s.cfg.MaxConsecutiveErrors)

	limit := rate.Inf
	if s.cfg.Rate > 0 && !math.IsInf(s.cfg.Rate, 1) {
		limit = rate.Limit(s.cfg.Rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	defer func() {
		if r := s.eng.Flush(); r != nil {
			s.record(func(st *Stats) { st.Results++; st.Last = r })
		}
		st := s.Stats()
		log.Info("sampling stopped", "polls", st.Polls, "errors", st.Errors, "results", st.Results)
	}()

	consecutive := 0
	for polls := 0; s.cfg.MaxPolls == 0 || polls < s.cfg.MaxPolls; polls++ {
		if ctx.Err() != nil {
			return nil
		}
		if err := limiter.Wait(ctx); err != nil {
			// Also returned when the next slot lies past the deadline.
			return nil
		}

		pb, err := s.src.PhaseBuffer(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			consecutive++
			s.record(func(st *Stats) { st.Polls++; st.Errors++ })
			log.Warn("poll failed", "consecutive", consecutive, "error", err)
			s.emit("error: " + err.Error())
			if consecutive >= s.cfg.MaxConsecutiveErrors {
				return fmt.Errorf("monitor: %d consecutive poll failures: %w", consecutive, err)
			}
			continue
		}
		consecutive = 0

		b := s.eng.Process(pb)
		s.record(func(st *Stats) {
			st.Polls++
			st.Samples += b.Samples
			if b.NoSignal {
				st.NoSignal++
			}
			if b.Result != nil {
				st.Results++
				st.Last = b.Result
			}
		})
		log.Debug("poll", "edges", b.Edges, "samples", b.Samples, "no_signal", b.NoSignal)
	}
	return nil
}

func (s *Sampler) record(fn func(*Stats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.stats)
}

func (s *Sampler) emit(line string) {
	if s.cfg.Sink != nil {
		s.cfg.Sink(line)
	}
}
