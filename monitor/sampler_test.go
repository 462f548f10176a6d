package monitor_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ardnew/lospdisk/freq"
	"github.com/ardnew/lospdisk/host/class/msc"
	"github.com/ardnew/lospdisk/losp"
	"github.com/ardnew/lospdisk/losp/lospsim"
	"github.com/ardnew/lospdisk/monitor"
)

// scriptSource returns snapshots or errors from fn, counting calls.
type scriptSource struct {
	calls int
	fn    func(call int) (*losp.PhaseBuffer, error)
}

func (s *scriptSource) PhaseBuffer(context.Context) (*losp.PhaseBuffer, error) {
	s.calls++
	return s.fn(s.calls)
}

// snapshot returns a buffer of count edges of a 1 kHz signal ending at fix.
func snapshot(fix uint32, count int) *losp.PhaseBuffer {
	pb := &losp.PhaseBuffer{Type: losp.StructPhase, MaxCount: 64, FixCount: fix, SysClockHz: 1000000}
	for i := 0; i < count; i++ {
		n := fix - uint32(count-1-i)
		pb.Edges = append(pb.Edges, losp.Edge{Ticks: 10 * n, Ref: 10000 * n})
	}
	return pb
}

func TestSampler_Simulated(t *testing.T) {
	dev, _ := lospsim.NewDisk(lospsim.WithEdges(8, 32))
	disk, err := msc.Open(dev, dev.Endpoints())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer disk.Close()

	var lines []string
	eng := freq.New(freq.WithInterval(time.Hour), freq.WithSink(func(s string) { lines = append(lines, s) }))
	s := monitor.New(losp.New(disk), eng, monitor.WithRate(0), monitor.WithMaxPolls(5))

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	st := s.Stats()
	if st.Polls != 5 || st.Errors != 0 {
		t.Errorf("polls = %d, errors = %d, want 5, 0", st.Polls, st.Errors)
	}
	if st.Samples != 7+4*8 {
		t.Errorf("samples = %d, want %d", st.Samples, 7+4*8)
	}
	if st.Results != 1 || st.Last == nil {
		t.Fatalf("results = %d, want the final flush", st.Results)
	}
	if math.Abs(st.Last.Freq-1000) > 1e-6 {
		t.Errorf("frequency = %v, want 1000", st.Last.Freq)
	}
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "f = 1000.000000 Hz") {
		t.Errorf("sink lines = %q", lines)
	}
}

func TestSampler_ErrorTolerance(t *testing.T) {
	boom := errors.New("transfer timeout")
	src := &scriptSource{fn: func(int) (*losp.PhaseBuffer, error) { return nil, boom }}
	var lines []string
	s := monitor.New(src, freq.New(), monitor.WithRate(0),
		monitor.WithSink(func(l string) { lines = append(lines, l) }))

	err := s.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want %v", err, boom)
	}
	if src.calls != monitor.DefaultMaxConsecutiveErrors {
		t.Errorf("polls = %d, want %d", src.calls, monitor.DefaultMaxConsecutiveErrors)
	}
	if len(lines) != monitor.DefaultMaxConsecutiveErrors || !strings.HasPrefix(lines[0], "error: ") {
		t.Errorf("sink lines = %q", lines)
	}
}

func TestSampler_ErrorsResetOnSuccess(t *testing.T) {
	boom := errors.New("stale answer")
	src := &scriptSource{fn: func(call int) (*losp.PhaseBuffer, error) {
		if call%3 != 0 {
			return nil, boom
		}
		return snapshot(uint32(8*call), 8), nil
	}}
	s := monitor.New(src, freq.New(), monitor.WithRate(0), monitor.WithMaxConsecutiveErrors(3), monitor.WithMaxPolls(9))

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if st := s.Stats(); st.Polls != 9 || st.Errors != 6 {
		t.Errorf("polls = %d, errors = %d, want 9, 6", st.Polls, st.Errors)
	}
}

func TestSampler_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &scriptSource{fn: func(call int) (*losp.PhaseBuffer, error) {
		if call == 3 {
			cancel()
		}
		return snapshot(uint32(8*call), 8), nil
	}}
	eng := freq.New(freq.WithInterval(time.Hour))
	s := monitor.New(src, eng, monitor.WithRate(0))

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	// The poll in flight at cancellation completes and is processed.
	if st := s.Stats(); st.Polls != 3 || st.Results != 1 {
		t.Errorf("polls = %d, results = %d, want 3, 1", st.Polls, st.Results)
	}
	if eng.Accumulator().Count != 0 {
		t.Error("engine not flushed on exit")
	}
}

func TestSampler_NoSignal(t *testing.T) {
	src := &scriptSource{fn: func(call int) (*losp.PhaseBuffer, error) {
		pb := snapshot(uint32(8*call), 8)
		if call == 2 {
			pb.Edges[4].Ref = pb.Edges[3].Ref
		}
		return pb, nil
	}}
	s := monitor.New(src, freq.New(freq.WithInterval(time.Hour)), monitor.WithRate(0), monitor.WithMaxPolls(3))

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if st := s.Stats(); st.NoSignal != 1 || st.Errors != 0 {
		t.Errorf("no signal = %d, errors = %d, want 1, 0", st.NoSignal, st.Errors)
	}
}

func TestSampler_Session(t *testing.T) {
	src := &scriptSource{fn: func(call int) (*losp.PhaseBuffer, error) { return snapshot(uint32(8*call), 8), nil }}
	s := monitor.New(src, freq.New(), monitor.WithRate(0), monitor.WithMaxPolls(1))

	s.Run(context.Background())
	first := s.Stats().Session
	s.Run(context.Background())
	second := s.Stats().Session

	if first == uuid.Nil || second == uuid.Nil || first == second {
		t.Errorf("sessions = %s, %s, want two distinct ids", first, second)
	}
}

func TestSampler_Rate(t *testing.T) {
	src := &scriptSource{fn: func(call int) (*losp.PhaseBuffer, error) { return snapshot(uint32(8*call), 8), nil }}
	s := monitor.New(src, freq.New(), monitor.WithRate(100), monitor.WithMaxPolls(5))

	start := time.Now()
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// One immediate poll, then one every 10 ms.
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("5 polls at 100 Hz took %v, want at least 40ms", elapsed)
	}
}
