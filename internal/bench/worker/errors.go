package worker

import (
	"errors"
	"fmt"
)

// Op names the step of a request cycle that failed
type Op string

const (
	OpConnect Op = "connect"
	OpSend    Op = "send"
	OpReceive Op = "receive"
)

// errEmptyResponse is returned when the peer closes before sending any byte
var errEmptyResponse = errors.New("connection closed before any response bytes")

// IterationError aborts a single request cycle. The worker moves on to the next one.
type IterationError struct {
	Op        Op
	Iteration int
	Addr      string
	Err       error
}

func (e *IterationError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("iteration %d: %s: %v", e.Iteration, e.Op, e.Err)
	}
	return fmt.Sprintf("iteration %d: %s %s: %v", e.Iteration, e.Op, e.Addr, e.Err)
}

func (e *IterationError) Unwrap() error {
	return e.Err
}

func isOp(err error, op Op) bool {
	var iterErr *IterationError
	return errors.As(err, &iterErr) && iterErr.Op == op
}

// IsConnectionError reports whether err is a failed connect
func IsConnectionError(err error) bool { return isOp(err, OpConnect) }

// IsSendError reports whether err is a failed request write
func IsSendError(err error) bool { return isOp(err, OpSend) }

// IsReceiveError reports whether err is a failed or empty response read
func IsReceiveError(err error) bool { return isOp(err, OpReceive) }
