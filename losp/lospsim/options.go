package lospsim

import "github.com/ardnew/lospdisk/losp"

// Config holds the simulated instrument configuration.
type Config struct {
	// CommandLBA and AnswerLBA are the tunnel sectors.
	CommandLBA uint32
	AnswerLBA  uint32

	// BusyPolls is the number of BUSY answers returned before each real
	// answer.
	BusyPolls int

	// Version is returned by GET_VERSION.
	Version string

	// DataSize is the size of the READ_DATA/WRITE_DATA area. The half-open
	// range [LockedFrom, LockedTo) of it answers LOCKED.
	DataSize   int
	LockedFrom int
	LockedTo   int

	// Layout selects the telemetry record variant.
	Layout losp.StructType

	// Signal generator. Each edge advances the tick counter by
	// TicksPerEdge (alternately plus and minus Jitter) and the reference
	// counter by RefPerEdge. Every DropoutEvery-th edge repeats the
	// previous reference count.
	SysClockHz   uint32
	TicksPerEdge uint32
	RefPerEdge   uint32
	Jitter       uint32
	DropoutEvery int

	// EdgesPerPoll new edges are latched before every GET_PHASE_BUFFER;
	// the buffer keeps the newest MaxCount.
	EdgesPerPoll int
	MaxCount     int
}

func defaultConfig() Config {
	return Config{
		CommandLBA:   losp.DefaultCommandLBA,
		AnswerLBA:    losp.DefaultAnswerLBA,
		Version:      "1.0.0",
		DataSize:     4096,
		Layout:       losp.StructPhase,
		SysClockHz:   1000000,
		TicksPerEdge: 10,
		RefPerEdge:   10000,
		EdgesPerPoll: 8,
		MaxCount:     32,
	}
}

// Option is a functional option for configuring an Instrument.
type Option func(*Config)

// WithSectors sets the command and answer LBAs.
func WithSectors(command, answer uint32) Option {
	return func(c *Config) {
		c.CommandLBA = command
		c.AnswerLBA = answer
	}
}

// WithBusyPolls sets the number of BUSY answers before each real answer.
func WithBusyPolls(n int) Option {
	return func(c *Config) {
		c.BusyPolls = max(n, 0)
	}
}

// WithVersion sets the firmware version string.
func WithVersion(v string) Option {
	return func(c *Config) {
		c.Version = v
	}
}

// WithDataArea sets the data area size and its locked range.
func WithDataArea(size, lockedFrom, lockedTo int) Option {
	return func(c *Config) {
		c.DataSize = size
		c.LockedFrom = lockedFrom
		c.LockedTo = lockedTo
	}
}

// WithLayout selects the telemetry record variant.
func WithLayout(t losp.StructType) Option {
	return func(c *Config) {
		c.Layout = t
	}
}

// WithSignal sets the clock and per-edge counter deltas. The resulting
// frequency is sysClockHz*ticks/ref.
func WithSignal(sysClockHz, ticks, ref uint32) Option {
	return func(c *Config) {
		c.SysClockHz = sysClockHz
		c.TicksPerEdge = ticks
		c.RefPerEdge = ref
	}
}

// WithJitter alternately adds and subtracts j ticks per edge.
func WithJitter(j uint32) Option {
	return func(c *Config) {
		c.Jitter = j
	}
}

// WithDropout makes every n-th edge carry no reference count.
func WithDropout(n int) Option {
	return func(c *Config) {
		c.DropoutEvery = n
	}
}

// WithEdges sets the edges latched per poll and the buffer depth.
func WithEdges(perPoll, maxCount int) Option {
	return func(c *Config) {
		if perPoll > 0 {
			c.EdgesPerPoll = perPoll
		}
		if maxCount > 0 {
			c.MaxCount = maxCount
		}
	}
}
