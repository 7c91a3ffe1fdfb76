// Package errors provides the error taxonomy shared by the ServerQuery
// engine, the transports and the CLI.
//
// These types carry structured context (operation, address, status code,
// retryability) so callers can use errors.As instead of matching strings.
package errors

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrBadGreeting      = errors.New("server did not identify as a ServerQuery endpoint")
	ErrNoHandler        = errors.New("no notification handler registered")
	ErrTimeout          = errors.New("operation timed out")
	ErrConnectionLost   = errors.New("connection lost")
	ErrTunnelClosed     = errors.New("tunnel is closed")
	ErrAuthFailed       = errors.New("authentication failed")
)

// ── Caller errors ────────────────────────────────────────────────────

// ArgumentError reports caller input that violates a precondition.  It
// is always raised before any I/O happens.
type ArgumentError struct {
	Op      string
	Message string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: invalid argument: %s", e.Op, e.Message)
}

// StateError reports an operation attempted in the wrong session state,
// e.g. executing a command on a closed session.
type StateError struct {
	Op  string
	Err error
}

func (e *StateError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *StateError) Unwrap() error { return e.Err }

// ── Connection errors ────────────────────────────────────────────────

// ConnectionError represents a failure while establishing a session:
// dialing, the greeting, or the banner drain.
type ConnectionError struct {
	Op        string // "dial", "greeting", "banner", "open"
	Addr      string
	Err       error
	Retryable bool
}

func (e *ConnectionError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError reports that no line arrived within the read timeout.
// It matches [ErrTimeout] with errors.Is.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no response within %s", e.Op, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ConnectionLostError reports that the peer closed or reset the
// connection.  It matches [ErrConnectionLost] with errors.Is.
type ConnectionLostError struct {
	Op  string
	Err error
}

func (e *ConnectionLostError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: connection lost", e.Op)
	}
	return fmt.Sprintf("%s: connection lost: %v", e.Op, e.Err)
}

func (e *ConnectionLostError) Unwrap() error { return e.Err }

func (e *ConnectionLostError) Is(target error) bool { return target == ErrConnectionLost }

// ── Protocol errors ──────────────────────────────────────────────────

// ProtocolError is a non-zero status returned by the server for a
// command.  FailedPermID is -1 when the server did not name one.
type ProtocolError struct {
	Op           string
	Code         int
	Message      string
	ExtraMessage string
	FailedPermID int
}

func (e *ProtocolError) Error() string {
	s := fmt.Sprintf("serverquery error %d @ %s: %s", e.Code, e.Op, e.Message)
	if e.ExtraMessage != "" {
		s += " - " + e.ExtraMessage
	}
	if e.FailedPermID != -1 {
		s += fmt.Sprintf(" - permission id: %d", e.FailedPermID)
	}
	return s
}

// ParseError reports a response that could not be decoded into the
// expected structure.
type ParseError struct {
	Op    string
	Field string // missing or malformed field, if any
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	msg := e.Op + ": parse"
	if e.Field != "" {
		msg += " " + e.Field
	}
	if e.Value != "" {
		msg += fmt.Sprintf(" %q", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// ── Transport / configuration errors ─────────────────────────────────

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "forward"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a ConnectionError, detecting retryability from the
// underlying error.
func Wrap(op, addr string, err error) *ConnectionError {
	return &ConnectionError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// NotConnected returns a StateError wrapping [ErrNotConnected].
func NotConnected(op string) *StateError {
	return &StateError{Op: op, Err: ErrNotConnected}
}

// Argument returns an ArgumentError with a formatted message.
func Argument(op, format string, args ...interface{}) *ArgumentError {
	return &ArgumentError{Op: op, Message: fmt.Sprintf(format, args...)}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying by the caller.
// Server-side status errors and caller mistakes never are; dropped
// connections and temporary dial failures are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	if errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrTimeout) {
		return true
	}
	return classifyRetryable(err)
}

// IsFatal reports whether err left the session closed.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrTimeout)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return true
		}
		return opErr.Timeout()
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
