package serverquery

import (
	"context"
	"sort"
	"strings"

	qerr "ts3query/internal/errors"
	"ts3query/protocol"
)

// Event categories known at the time of writing.  Servers may accept
// others; RegisterEvents does not check.
const (
	EventServer      = "server"
	EventChannel     = "channel"
	EventTextServer  = "textserver"
	EventTextChannel = "textchannel"
	EventTextPrivate = "textprivate"
)

// Notification is one pushed event.  Event is the full tag, e.g.
// "notifycliententerview"; Data is nil when the line had no fields.
type Notification struct {
	Event string
	Data  protocol.Record
}

// Handler receives notifications.  Calls happen on worker goroutines,
// possibly concurrently and in no particular order.
type Handler interface {
	HandleNotification(Notification)
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(Notification)

func (f HandlerFunc) HandleNotification(n Notification) { f(n) }

type registration struct {
	event   string
	channel int
}

// SetNotificationHandler installs h, replacing any previous handler.
func (s *Session) SetNotificationHandler(h Handler) {
	s.stateMu.Lock()
	s.handler = h
	s.stateMu.Unlock()
}

// ClearNotificationHandler removes the handler.  If events are still
// registered on a live connection they are unregistered first.
func (s *Session) ClearNotificationHandler(ctx context.Context) error {
	var err error
	if s.hasRegistrations() && s.IsConnected() {
		err = s.UnregisterEvents(ctx)
	}
	s.stateMu.Lock()
	s.handler = nil
	s.stateMu.Unlock()
	return err
}

// RegisterEvents subscribes to an event category.  channelID is only
// sent for [EventChannel], where 0 means every channel.  The category
// is passed through as given; the server decides whether it exists.
func (s *Session) RegisterEvents(ctx context.Context, event string, channelID int) error {
	const op = "servernotifyregister"

	if strings.TrimSpace(event) == "" {
		return qerr.Argument(op, "empty event")
	}

	s.stateMu.RLock()
	h := s.handler
	s.stateMu.RUnlock()
	if h == nil {
		return &StateError{Op: op, Err: ErrNoHandler}
	}
	if !s.IsConnected() {
		return qerr.NotConnected(op)
	}

	cmd := protocol.NewCommand(op).Arg("event", event)
	if event == EventChannel {
		cmd.Arg("id", channelID)
	}

	return s.exclusive(ctx, op, func(l *link) error {
		if _, err := s.call(ctx, l, cmd); err != nil {
			return err
		}
		s.log.Verbose("registered for %s events", event)
		return nil
	})
}

// UnregisterEvents drops every registration.
func (s *Session) UnregisterEvents(ctx context.Context) error {
	const op = "servernotifyunregister"
	if !s.IsConnected() {
		return qerr.NotConnected(op)
	}
	return s.exclusive(ctx, op, func(l *link) error {
		_, err := s.call(ctx, l, protocol.NewCommand(op))
		return err
	})
}

// trackRegistration keeps the active set in step with register and
// unregister commands that the server accepted, whichever API sent
// them.  It runs with the execution lock held.
func (s *Session) trackRegistration(l *link, command string) {
	name, args, _ := strings.Cut(command, " ")
	switch strings.ToLower(name) {
	case "servernotifyregister":
		rec := protocol.ParseRecord(args)
		event := rec["event"]
		if event == "" {
			return
		}
		reg := registration{event: event}
		if id, err := rec.Int("id"); err == nil {
			reg.channel = id
		}
		s.onLink(l, func() { s.events[reg] = struct{}{} })
	case "servernotifyunregister":
		s.onLink(l, func() { s.events = make(map[registration]struct{}) })
	}
}

// Registrations returns the active event categories.
func (s *Session) Registrations() []string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	out := make([]string, 0, len(s.events))
	for r := range s.events {
		out = append(out, r.event)
	}
	sort.Strings(out)
	return out
}

func (s *Session) hasRegistrations() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return len(s.events) > 0
}
