package serverquery

import qerr "ts3query/internal/errors"

// Error types returned by a Session.  They are aliases so callers can
// use errors.As without importing an internal package.
type (
	ArgumentError       = qerr.ArgumentError
	StateError          = qerr.StateError
	ConnectionError     = qerr.ConnectionError
	TimeoutError        = qerr.TimeoutError
	ConnectionLostError = qerr.ConnectionLostError
	ProtocolError       = qerr.ProtocolError
	ParseError          = qerr.ParseError
)

var (
	ErrNotConnected     = qerr.ErrNotConnected
	ErrAlreadyConnected = qerr.ErrAlreadyConnected
	ErrBadGreeting      = qerr.ErrBadGreeting
	ErrNoHandler        = qerr.ErrNoHandler
	ErrTimeout          = qerr.ErrTimeout
	ErrConnectionLost   = qerr.ErrConnectionLost
)
