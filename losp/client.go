package losp

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/coreos/go-semver/semver"

	"github.com/ardnew/lospdisk/pkg"
)

// BlockDevice is the sector interface the tunnel runs over. *msc.Disk
// satisfies it.
type BlockDevice interface {
	BlockSize(ctx context.Context) (uint32, error)
	Read10(ctx context.Context, lba uint32, count int) ([]byte, error)
	Write10(ctx context.Context, lba uint32, data []byte) error
}

// Client exchanges command and answer records with the instrument through
// the two reserved sectors of a BlockDevice. Exchanges are serialized.
type Client struct {
	dev BlockDevice
	cfg Config
	mu  sync.Mutex

	lastCode     CommandCode
	lastWire     uint32 // wire code of the last command written
	lastAttempts int
}

// New creates a tunnel client over dev.
func New(dev BlockDevice, opts ...Option) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{dev: dev, cfg: cfg}
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.cfg }

// LastCode returns the code of the last command written.
func (c *Client) LastCode() CommandCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCode
}

// LastAttempts returns the number of answer polls made by the last
// GetAnswer.
func (c *Client) LastAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAttempts
}

// Exec writes cmd, padded to one block, to the command sector.
func (c *Client) Exec(ctx context.Context, cmd *Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exec(ctx, cmd)
}

func (c *Client) exec(ctx context.Context, cmd *Command) error {
	bs, err := c.dev.BlockSize(ctx)
	if err != nil {
		return fmt.Errorf("losp exec %s: %w", cmd.Code, err)
	}
	buf, err := cmd.Encode(int(bs))
	if err != nil {
		return fmt.Errorf("losp exec: %w: %w", err, pkg.ErrInvalidParameter)
	}

	pkg.LogDebug(pkg.ComponentLOSP, "exec",
		"code", cmd.Code,
		"offset", cmd.Offset,
		"in", len(cmd.Payload),
		"out", cmd.OutLen,
		"lba", c.cfg.CommandLBA)

	if err := c.dev.Write10(ctx, c.cfg.CommandLBA, buf); err != nil {
		pkg.LogWarn(pkg.ComponentLOSP, "command write failed", "code", cmd.Code, "error", err)
		return fmt.Errorf("losp exec %s: %w", cmd.Code, err)
	}
	c.lastCode = cmd.Code
	c.lastWire = wireCommand(cmd.Code, cmd.RawCode)
	return nil
}

// GetAnswer polls the answer sector, unconditionally once and then while
// the instrument reports BUSY, up to the attempt ceiling. The answer must
// echo expected and carry OK; anything else is a *ProtocolError. When
// expected is CmdUnknown the echo must match the raw code of the last
// unrecognized command written.
func (c *Client) GetAnswer(ctx context.Context, expected CommandCode) (*Answer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	want := expected.Wire()
	if expected == CmdUnknown && c.lastCode == CmdUnknown {
		want = c.lastWire
	}
	return c.getAnswer(ctx, want)
}

// getAnswer polls for the answer to the command whose wire code is want.
// Echoes are compared by wire value so unrecognized codes stay distinct.
func (c *Client) getAnswer(ctx context.Context, want uint32) (*Answer, error) {
	expected, _ := decodeCommand(want)
	var ans Answer
	attempts, last, err := WhileBusy(c.cfg.MaxAttempts).Do(ctx, func(int) (ReturnCode, error) {
		sector, err := c.dev.Read10(ctx, c.cfg.AnswerLBA, 1)
		if err != nil {
			return ReturnUnknown, err
		}
		if err := ParseAnswer(sector, &ans); err != nil {
			return ReturnUnknown, err
		}
		return ans.Return, nil
	})
	c.lastAttempts = attempts

	perr := &ProtocolError{
		Op:       "answer",
		Code:     expected,
		Echo:     ans.Code,
		Return:   last,
		Attempts: attempts,
	}
	switch {
	case err != nil:
		if !isMalformed(err) {
			return nil, fmt.Errorf("losp answer %s (attempt %d): %w", expected, attempts, err)
		}
		perr.Err = err
	case last == ReturnNotData:
		perr.Err = ErrNoData
	case last == ReturnBusy:
		perr.Err = ErrBusyExhausted
	case wireCommand(ans.Code, ans.RawCode) != want:
		perr.Err = ErrStaleAnswer
	case last != ReturnOK:
		raw := last.Wire()
		if last == ReturnUnknown {
			raw = ans.RawReturn
		}
		perr.Err = &AnswerError{Return: last, Raw: raw}
	default:
		pkg.LogDebug(pkg.ComponentLOSP, "answer",
			"code", ans.Code,
			"attempts", attempts,
			"out", len(ans.Payload))
		return &ans, nil
	}

	pkg.LogWarn(pkg.ComponentLOSP, "answer rejected", "error", perr)
	return nil, perr
}

// Call writes cmd and waits for its answer.
func (c *Client) Call(ctx context.Context, cmd *Command) (*Answer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.exec(ctx, cmd); err != nil {
		return nil, err
	}
	return c.getAnswer(ctx, wireCommand(cmd.Code, cmd.RawCode))
}

// maxPayload returns the largest payload that fits in one record. Block
// sizes whose payload room overflows the u16 length fields are rejected.
func (c *Client) maxPayload(ctx context.Context) (int, error) {
	bs, err := c.dev.BlockSize(ctx)
	if err != nil {
		return 0, err
	}
	n := int(bs) - max(CommandHeaderSize, AnswerHeaderSize)
	if n <= 0 || n > MaxPayload {
		return 0, fmt.Errorf("losp: block size %d: %w", bs, pkg.ErrInvalidParameter)
	}
	return n, nil
}

// Nop exchanges an empty command, confirming the tunnel is alive.
func (c *Client) Nop(ctx context.Context) error {
	_, err := c.Call(ctx, &Command{Code: CmdNop})
	return err
}

// VersionString returns the raw firmware version string.
func (c *Client) VersionString(ctx context.Context) (string, error) {
	n, err := c.maxPayload(ctx)
	if err != nil {
		return "", err
	}
	ans, err := c.Call(ctx, &Command{Code: CmdGetVersion, OutLen: uint16(n)})
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(ans.Payload, 0); i >= 0 {
		return string(ans.Payload[:i]), nil
	}
	return string(ans.Payload), nil
}

// Version returns the firmware version. A missing patch (or minor) number
// is read as zero.
func (c *Client) Version(ctx context.Context) (*semver.Version, error) {
	s, err := c.VersionString(ctx)
	if err != nil {
		return nil, err
	}
	return ParseVersion(s)
}

// ParseVersion parses a firmware version string such as "v1.4" or
// "2.0.1-rc1".
func ParseVersion(s string) (*semver.Version, error) {
	v := strings.TrimPrefix(strings.TrimSpace(s), "v")
	core, rest, _ := strings.Cut(v, "-")
	for strings.Count(core, ".") < 2 {
		core += ".0"
	}
	if rest != "" {
		core += "-" + rest
	}
	ver, err := semver.NewVersion(core)
	if err != nil {
		return nil, fmt.Errorf("firmware version %q: %w: %w", s, err, ErrMalformed)
	}
	return ver, nil
}

// ReadData reads n bytes of the instrument data area at offset.
func (c *Client) ReadData(ctx context.Context, offset uint32, n int) ([]byte, error) {
	limit, err := c.maxPayload(ctx)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n > limit {
		return nil, fmt.Errorf("losp read data: length %d not in 1..%d: %w", n, limit, pkg.ErrInvalidParameter)
	}
	ans, err := c.Call(ctx, &Command{Code: CmdReadData, Offset: offset, OutLen: uint16(n)})
	if err != nil {
		return nil, err
	}
	if len(ans.Payload) < n {
		return nil, &ProtocolError{Op: "read data", Code: CmdReadData, Echo: ans.Code, Return: ans.Return,
			Attempts: c.LastAttempts(),
			Err:      fmt.Errorf("got %d of %d bytes: %w", len(ans.Payload), n, ErrMalformed)}
	}
	return ans.Payload[:n], nil
}

// WriteData writes data to the instrument data area at offset.
func (c *Client) WriteData(ctx context.Context, offset uint32, data []byte) error {
	limit, err := c.maxPayload(ctx)
	if err != nil {
		return err
	}
	if len(data) == 0 || len(data) > limit {
		return fmt.Errorf("losp write data: length %d not in 1..%d: %w", len(data), limit, pkg.ErrInvalidParameter)
	}
	_, err = c.Call(ctx, &Command{Code: CmdWriteData, Offset: offset, Payload: data})
	return err
}

// PhaseBuffer fetches and decodes the current telemetry snapshot.
func (c *Client) PhaseBuffer(ctx context.Context) (*PhaseBuffer, error) {
	n, err := c.maxPayload(ctx)
	if err != nil {
		return nil, err
	}
	ans, err := c.Call(ctx, &Command{Code: CmdGetPhaseBuffer, OutLen: uint16(n)})
	if err != nil {
		return nil, err
	}
	var pb PhaseBuffer
	if err := ParsePhaseBuffer(ans.Payload, &pb); err != nil {
		return nil, &ProtocolError{Op: "phase buffer", Code: CmdGetPhaseBuffer, Echo: ans.Code,
			Return: ans.Return, Attempts: c.LastAttempts(), Err: err}
	}
	return &pb, nil
}

// ResetPhaseBuffer clears the instrument edge buffer and fix counter.
func (c *Client) ResetPhaseBuffer(ctx context.Context) error {
	_, err := c.Call(ctx, &Command{Code: CmdResetPhaseBuffer})
	return err
}
