package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ardnew/lospdisk/freq"
	"github.com/ardnew/lospdisk/host/class/msc"
	"github.com/ardnew/lospdisk/losp"
	"github.com/ardnew/lospdisk/losp/lospsim"
	"github.com/ardnew/lospdisk/monitor"
)

// measureFlags are shared by measure and simulate.
type measureFlags struct {
	duration time.Duration
	polls    int
	target   float64
	interval time.Duration
	rate     float64
	reset    bool
}

func (m *measureFlags) register(fs *pflag.FlagSet) {
	fs.DurationVar(&m.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	fs.IntVar(&m.polls, "polls", 0, "stop after this many polls (0 for no limit)")
	fs.Float64Var(&m.target, "target", 0, "target accuracy in percent (0 publishes every interval)")
	fs.DurationVar(&m.interval, "interval", freq.DefaultInterval, "publication interval")
	fs.Float64Var(&m.rate, "rate", monitor.DefaultRate, "polls per second (0 for no pacing)")
	fs.BoolVar(&m.reset, "reset", false, "reset the telemetry buffer before sampling")
}

// apply copies the flags the user set over the configuration.
func (m *measureFlags) apply(a *app, fs *pflag.FlagSet) error {
	if fs.Changed("target") {
		a.cfg.Stats.TargetAccuracy = m.target
	}
	if fs.Changed("interval") {
		a.cfg.Stats.Interval = m.interval
	}
	if fs.Changed("rate") {
		a.cfg.Monitor.Rate = m.rate
	}
	if m.polls < 0 || m.duration < 0 {
		return usageError("negative --polls or --duration")
	}
	return a.cfg.Validate()
}

func (a *app) measureCommand() *cobra.Command {
	var m measureFlags
	cmd := &cobra.Command{
		Use:   "measure",
		Short: "Estimate the signal frequency from instrument telemetry",
		Long: `Poll the instrument telemetry buffer and print a running frequency
estimate. Without --target a line is printed every --interval; with a
target a line is printed once the period accuracy falls below it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := m.apply(a, cmd.Flags()); err != nil {
				return err
			}
			return a.withDevice(func(dev *device) error {
				return a.measure(cmd, dev, &m)
			})
		},
	}
	m.register(cmd.Flags())
	return cmd
}

func (a *app) simulateCommand() *cobra.Command {
	var (
		m       measureFlags
		sysclk  uint32
		ticks   uint32
		ref     uint32
		jitter  uint32
		dropout int
		busy    int
		edges   int
		layout  string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Measure a simulated instrument",
		Long: `Run measure against an in-process instrument whose signal frequency is
sysclk*ticks/ref Hz.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := m.apply(a, cmd.Flags()); err != nil {
				return err
			}
			var st losp.StructType
			switch strings.ToLower(layout) {
			case "v1":
				st = losp.StructPhaseV1
			case "", "current":
				st = losp.StructPhase
			default:
				return usageError("layout %q", layout)
			}
			disk, inst := lospsim.NewDisk(
				lospsim.WithSectors(a.cfg.LOSP.CommandLBA, a.cfg.LOSP.AnswerLBA),
				lospsim.WithBusyPolls(busy),
				lospsim.WithLayout(st),
				lospsim.WithSignal(sysclk, ticks, ref),
				lospsim.WithJitter(jitter),
				lospsim.WithDropout(dropout),
				lospsim.WithEdges(edges, 0),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "simulated signal: %.6f Hz\n", inst.Frequency())
			return a.measure(cmd, &device{
				Name:      "simulator",
				Conn:      disk,
				Endpoints: disk.Endpoints(),
			}, &m)
		},
	}
	m.register(cmd.Flags())
	fs := cmd.Flags()
	fs.Uint32Var(&sysclk, "sysclk", 1000000, "instrument clock in Hz")
	fs.Uint32Var(&ticks, "ticks", 10, "clock ticks per edge")
	fs.Uint32Var(&ref, "ref", 10000, "reference counts per edge")
	fs.Uint32Var(&jitter, "jitter", 0, "alternating tick jitter per edge")
	fs.IntVar(&dropout, "dropout", 0, "drop the reference count of every n-th edge")
	fs.IntVar(&busy, "busy", 0, "BUSY answers before every real answer")
	fs.IntVar(&edges, "edges", 8, "edges latched per poll")
	fs.StringVar(&layout, "layout", "current", "telemetry layout: v1 or current")
	return cmd
}

// measure runs a sampler against dev and prints its results and a summary.
func (a *app) measure(cmd *cobra.Command, dev *device, m *measureFlags) error {
	ctx := cmd.Context()
	if m.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.duration)
		defer cancel()
	}

	sink := printer(cmd)
	return diskSession(ctx, a.cfg, dev, func(ctx context.Context, disk *msc.Disk) error {
		client := losp.New(disk, lospOptions(a.cfg)...)
		if m.reset {
			if err := client.ResetPhaseBuffer(ctx); err != nil {
				return err
			}
		}

		s := monitor.New(client, freq.New(freqOptions(a.cfg, sink)...), monitorOptions(a.cfg, m.polls, sink)...)
		err := s.Run(ctx)

		st := s.Stats()
		cmd.PrintErrf("session %s: %d polls, %d samples, %d results, %d no signal, %d errors\n",
			st.Session, st.Polls, st.Samples, st.Results, st.NoSignal, st.Errors)
		return err
	})
}
