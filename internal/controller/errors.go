package controller

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by any operation that needs the serial
// link while no connection is open.
var ErrNotConnected = errors.New("device not connected")

// ConnectionError wraps a failed connect attempt or a write on a dying
// link. The reconnect supervisor retries these; they never crash the
// process.
type ConnectionError struct {
	Port string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %v", e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CommandError reports a terminal ERR reply or a reply timeout. It is
// surfaced synchronously to whoever issued the command.
type CommandError struct {
	Cmd     string
	Code    string
	Message string
	Timeout bool
}

func (e *CommandError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("command %q: no reply within timeout", e.Cmd)
	}
	return fmt.Sprintf("command %q: device error %s: %s", e.Cmd, e.Code, e.Message)
}

// ValidationError rejects bad input before any I/O happens.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// SafetyInterlockError refuses a pump/dosing command while the protect
// flag is set and the low-level switch reads low. Never downgraded.
type SafetyInterlockError struct {
	Op string
}

func (e *SafetyInterlockError) Error() string {
	return fmt.Sprintf("%s refused: water level low and protect mode active", e.Op)
}
