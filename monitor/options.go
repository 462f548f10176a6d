package monitor

// Sampler defaults.
const (
	DefaultRate                 = 10 // polls per second
	DefaultMaxConsecutiveErrors = 5
)

// Config holds the sampler configuration.
type Config struct {
	// Rate is the poll rate in Hz. Zero or less polls without pacing.
	Rate float64

	// MaxConsecutiveErrors failed polls in a row stop the run.
	MaxConsecutiveErrors int

	// MaxPolls stops the run after that many polls. Zero means unlimited.
	MaxPolls int

	// Sink receives error status lines. May be nil.
	Sink func(string)
}

func defaultConfig() Config {
	return Config{
		Rate:                 DefaultRate,
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
	}
}

// Option is a functional option for configuring a Sampler.
type Option func(*Config)

// WithRate sets the poll rate in Hz.
func WithRate(hz float64) Option {
	return func(c *Config) {
		c.Rate = hz
	}
}

// WithMaxConsecutiveErrors sets the number of failed polls in a row that
// ends a run.
func WithMaxConsecutiveErrors(n int) Option {
	return func(c *Config) {
		c.MaxConsecutiveErrors = max(n, 1)
	}
}

// WithMaxPolls bounds the number of polls of a run.
func WithMaxPolls(n int) Option {
	return func(c *Config) {
		c.MaxPolls = max(n, 0)
	}
}

// WithSink sets the receiver of error status lines.
func WithSink(sink func(string)) Option {
	return func(c *Config) {
		c.Sink = sink
	}
}
