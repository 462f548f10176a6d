package losp

// Config holds the tunnel configuration.
type Config struct {
	// CommandLBA is the sector each command record is written to.
	CommandLBA uint32

	// AnswerLBA is the sector polled for the answer record.
	AnswerLBA uint32

	// MaxAttempts bounds the answer poll loop.
	MaxAttempts int
}

func defaultConfig() Config {
	return Config{
		CommandLBA:  DefaultCommandLBA,
		AnswerLBA:   DefaultAnswerLBA,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Option is a functional option for configuring a Client.
type Option func(*Config)

// WithSectors sets the command and answer LBAs.
func WithSectors(command, answer uint32) Option {
	return func(c *Config) {
		c.CommandLBA = command
		c.AnswerLBA = answer
	}
}

// WithMaxAttempts sets the answer poll ceiling. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}
