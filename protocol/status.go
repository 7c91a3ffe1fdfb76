package protocol

import (
	"fmt"
	"strconv"
	"strings"

	qerr "ts3query/internal/errors"
)

// Line prefixes fixed by the protocol.
const (
	// Greeting is the first line a ServerQuery endpoint sends.
	Greeting = "TS3"
	// TerminatorPrefix starts the status line that ends every response.
	TerminatorPrefix = "error "
	// NotifyPrefix starts every unsolicited event line.
	NotifyPrefix = "notify"
)

// Status is the decoded terminator line of a response.
type Status struct {
	Code         int
	Message      string
	ExtraMessage string
	FailedPermID int // -1 when absent
}

// OK reports whether the command succeeded.
func (s Status) OK() bool { return s.Code == 0 }

// IsTerminator reports whether line ends a response.
func IsTerminator(line string) bool {
	return strings.HasPrefix(line, TerminatorPrefix)
}

// IsNotification reports whether line is an unsolicited event.
func IsNotification(line string) bool {
	return strings.HasPrefix(line, NotifyPrefix)
}

// ParseStatus decodes a terminator line such as
// "error id=1025 msg=chan\snot\sfound".
func ParseStatus(line string) (Status, error) {
	if !IsTerminator(line) {
		return Status{}, &qerr.ParseError{Op: "status", Value: line, Err: fmt.Errorf("missing %q prefix", TerminatorPrefix)}
	}
	rec := ParseRecord(strings.TrimPrefix(line, TerminatorPrefix))

	raw, ok := rec["id"]
	if !ok {
		return Status{}, &qerr.ParseError{Op: "status", Field: "id", Err: fmt.Errorf("missing")}
	}
	code, err := strconv.Atoi(raw)
	if err != nil {
		return Status{}, &qerr.ParseError{Op: "status", Field: "id", Value: raw, Err: err}
	}

	st := Status{
		Code:         code,
		Message:      rec["msg"],
		ExtraMessage: rec["extra_msg"],
		FailedPermID: -1,
	}
	// A malformed permission id is not worth failing the whole response.
	if v, ok := rec["failed_permid"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			st.FailedPermID = n
		}
	}
	return st, nil
}

// SplitNotification separates an event line into its type tag and the
// decoded attributes.  ok is false for lines that are not notifications.
// A tag with no attributes yields a nil Record.
func SplitNotification(line string) (event string, data Record, ok bool) {
	if !IsNotification(line) {
		return "", nil, false
	}
	event, rest, _ := strings.Cut(line, " ")
	return event, ParseRecord(rest), true
}
