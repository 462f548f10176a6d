package losp

import (
	"errors"
	"fmt"

	"github.com/ardnew/lospdisk/pkg"
)

// Protocol failure causes, wrapped by ProtocolError.
var (
	ErrNoData        = errors.New("instrument produced no data")
	ErrBusyExhausted = errors.New("instrument still busy at attempt ceiling")
	ErrStaleAnswer   = errors.New("answer echoes a different command")
	ErrMalformed     = errors.New("malformed record")
)

// AnswerError reports an answer whose return code is not OK.
type AnswerError struct {
	Return ReturnCode
	Raw    uint32
}

func (e *AnswerError) Error() string {
	return fmt.Sprintf("instrument returned %s (0x%X)", e.Return, e.Raw)
}

// ProtocolError describes a failed LOSP exchange. Err is one of the
// sentinels above or an *AnswerError.
type ProtocolError struct {
	Op       string
	Code     CommandCode // command that was expected
	Echo     CommandCode // command echoed by the answer
	Return   ReturnCode
	Attempts int
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("losp %s %s: return=%s echo=%s after %d attempts: %v",
		e.Op, e.Code, e.Return, e.Echo, e.Attempts, e.Err)
}

// Unwrap returns the cause.
func (e *ProtocolError) Unwrap() error { return e.Err }

// Is reports whether target is pkg.ErrProtocol.
func (e *ProtocolError) Is(target error) bool { return target == pkg.ErrProtocol }

func isMalformed(err error) bool { return errors.Is(err, ErrMalformed) }
