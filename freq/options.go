package freq

import "time"

// Engine defaults.
const (
	DefaultInterval = time.Second
	MinInterval     = 10 * time.Millisecond

	// TargetDisabled is the accuracy threshold below which a target is
	// treated as absent.
	TargetDisabled = 1e-99

	// Epsilon guards the RMS against cancellation near zero.
	Epsilon = 1e-11
)

// Config holds the engine configuration.
type Config struct {
	// TargetAccuracy is the period accuracy in percent at which a result is
	// published. Values below TargetDisabled publish on the interval
	// deadline instead.
	TargetAccuracy float64

	// Interval advances the publication deadline.
	Interval time.Duration

	// Clock returns the current time.
	Clock func() time.Time

	// Sink receives every status line. May be nil.
	Sink func(string)
}

func defaultConfig() Config {
	return Config{
		Interval: DefaultInterval,
		Clock:    time.Now,
	}
}

// TargetEnabled reports whether a target accuracy is set.
func (c Config) TargetEnabled() bool { return c.TargetAccuracy >= TargetDisabled }

// Option is a functional option for configuring an Engine.
type Option func(*Config)

// WithTargetAccuracy sets the target period accuracy in percent.
//
// Example:
//
//	eng := freq.New(freq.WithTargetAccuracy(0.01))
func WithTargetAccuracy(pct float64) Option {
	return func(c *Config) {
		c.TargetAccuracy = pct
	}
}

// WithInterval sets the publication interval. Intervals shorter than
// MinInterval are raised to it.
func WithInterval(d time.Duration) Option {
	return func(c *Config) {
		c.Interval = max(d, MinInterval)
	}
}

// WithClock replaces the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	}
}

// WithSink sets the status line receiver.
func WithSink(sink func(string)) Option {
	return func(c *Config) {
		c.Sink = sink
	}
}
