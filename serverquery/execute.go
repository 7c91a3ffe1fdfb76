package serverquery

import (
	"context"
	"strings"

	qerr "ts3query/internal/errors"
	"ts3query/protocol"
)

// Commands that move the session between servers or channels.  They
// go through SelectServer, MoveClient(s) and DeleteChannel so the
// cached identity stays correct.
var reserved = []struct{ prefix, use string }{
	{"use ", "SelectServer"},
	{"clientmove ", "MoveClient"},
	{"channeldelete ", "DeleteChannel"},
}

// Execute sends one raw command line and returns the server's
// response.  A non-zero status is not an error here; check
// [Response.OK] or [Response.Err].
//
// Cancelling ctx while the command waits for the lock returns ctx.Err()
// and leaves the session untouched.  Cancelling it after the command
// was written closes the session, since the rest of the response can
// no longer be told apart from the next one.
func (s *Session) Execute(ctx context.Context, command string) (*Response, error) {
	const op = "execute"

	if strings.TrimSpace(command) == "" {
		return nil, qerr.Argument(op, "empty command")
	}
	if strings.ContainsAny(command, "\r\n") {
		return nil, qerr.Argument(op, "command contains a line break")
	}
	for _, r := range reserved {
		if strings.HasPrefix(command, r.prefix) {
			return nil, qerr.Argument(op, "%q must be sent with %s", strings.TrimSpace(r.prefix), r.use)
		}
	}
	if !s.IsConnected() {
		return nil, qerr.NotConnected(op)
	}

	var resp *Response
	err := s.exclusive(ctx, op, func(l *link) error {
		var err error
		resp, err = s.roundTrip(ctx, l, command)
		return err
	})
	return resp, err
}

// roundTrip writes command and collects lines up to its terminator.
// Notifications met on the way are dispatched, not returned.
func (s *Session) roundTrip(ctx context.Context, l *link, command string) (*Response, error) {
	op := verb(command)
	s.log.Debug("-> %s", redact(command))

	if err := s.writeLine(l, op, command); err != nil {
		return nil, err
	}
	s.stats.CommandSent()

	var body []string
	for {
		line, err := s.readLine(ctx, l, op)
		if err != nil {
			return nil, err
		}
		switch {
		case protocol.IsNotification(line):
			s.intercept(l, line)
		case protocol.IsTerminator(line):
			st, err := protocol.ParseStatus(line)
			if err != nil {
				s.stats.CommandFailed()
				return nil, err
			}
			if st.OK() {
				s.trackRegistration(l, command)
			} else {
				s.stats.CommandFailed()
				s.log.Verbose("%s: error %d %s", op, st.Code, st.Message)
			}
			return newResponse(st, body), nil
		default:
			body = append(body, line)
		}
	}
}

// call is roundTrip plus the status check.
func (s *Session) call(ctx context.Context, l *link, cmd *protocol.Command) (*Response, error) {
	resp, err := s.roundTrip(ctx, l, cmd.String())
	if err != nil {
		return nil, err
	}
	if err := resp.Err(cmd.Name()); err != nil {
		return resp, err
	}
	return resp, nil
}

func verb(command string) string {
	name, _, _ := strings.Cut(command, " ")
	return name
}

// redact hides login credentials in debug output.
func redact(command string) string {
	if verb(command) == "login" {
		return "login <redacted>"
	}
	return command
}
