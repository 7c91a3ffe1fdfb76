package serverquery

import (
	"context"
	"errors"

	qerr "ts3query/internal/errors"
	"ts3query/protocol"
)

// Identity is where the server says this session currently is.  Fields
// are -1 until known.
type Identity struct {
	ServerID        int
	ClientID        int
	ChannelID       int
	ChannelPassword string
}

var unknownIdentity = Identity{ServerID: -1, ClientID: -1, ChannelID: -1}

// Identity returns a consistent snapshot of the cached identity.
func (s *Session) Identity() Identity {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.identity
}

func (s *Session) ServerID() int  { return s.Identity().ServerID }
func (s *Session) ClientID() int  { return s.Identity().ClientID }
func (s *Session) ChannelID() int { return s.Identity().ChannelID }

// setIdentity stores id unless the session was closed since l was
// current.
func (s *Session) setIdentity(l *link, id Identity) bool {
	return s.onLink(l, func() { s.identity = id })
}

// Refresh re-reads the identity with whoami.
func (s *Session) Refresh(ctx context.Context) error {
	return s.exclusive(ctx, "whoami", func(l *link) error {
		return s.refresh(ctx, l)
	})
}

func (s *Session) refresh(ctx context.Context, l *link) error {
	resp, err := s.call(ctx, l, protocol.NewCommand("whoami"))
	if err != nil {
		return err
	}
	rec := resp.Record()
	if rec == nil {
		return &ParseError{Op: "whoami", Err: errors.New("empty response")}
	}

	var id Identity
	for _, f := range []struct {
		key string
		dst *int
	}{
		{"virtualserver_id", &id.ServerID},
		{"client_id", &id.ClientID},
		{"client_channel_id", &id.ChannelID},
	} {
		n, err := rec.Int(f.key)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Op = "whoami"
			}
			return err
		}
		*f.dst = n
	}

	if !s.setIdentity(l, id) {
		return &ConnectionLostError{Op: "whoami", Err: ErrNotConnected}
	}
	s.log.Debug("identity: server=%d client=%d channel=%d", id.ServerID, id.ClientID, id.ChannelID)
	return nil
}

// Login authenticates and refreshes the identity.
func (s *Session) Login(ctx context.Context, user, password string) error {
	const op = "login"
	if user == "" {
		return qerr.Argument(op, "empty user name")
	}
	return s.exclusive(ctx, op, func(l *link) error {
		cmd := protocol.NewCommand("login").Value(user).Value(password)
		if _, err := s.call(ctx, l, cmd); err != nil {
			return err
		}
		return s.refresh(ctx, l)
	})
}

// SelectServer switches to the virtual server with the given id.
func (s *Session) SelectServer(ctx context.Context, sid int) error {
	return s.use(ctx, protocol.NewCommand("use").Arg("sid", sid))
}

// SelectServerByPort switches to the virtual server listening on the
// given voice port.
func (s *Session) SelectServerByPort(ctx context.Context, port int) error {
	if port < 1 || port > 65535 {
		return qerr.Argument("use", "port %d out of range", port)
	}
	return s.use(ctx, protocol.NewCommand("use").Arg("port", port))
}

func (s *Session) use(ctx context.Context, cmd *protocol.Command) error {
	return s.exclusive(ctx, "use", func(l *link) error {
		return s.useLocked(ctx, l, cmd)
	})
}

func (s *Session) useLocked(ctx context.Context, l *link, cmd *protocol.Command) error {
	if _, err := s.call(ctx, l, cmd); err != nil {
		return err
	}
	return s.refresh(ctx, l)
}

// MoveClient moves a client into channel cid.  password may be empty.
func (s *Session) MoveClient(ctx context.Context, clid, cid int, password string) error {
	return s.MoveClients(ctx, []int{clid}, cid, password)
}

// MoveClients moves several clients into channel cid with one command.
func (s *Session) MoveClients(ctx context.Context, clids []int, cid int, password string) error {
	if len(clids) == 0 {
		return qerr.Argument("clientmove", "no clients given")
	}
	return s.exclusive(ctx, "clientmove", func(l *link) error {
		return s.moveLocked(ctx, l, clids, cid, password)
	})
}

func (s *Session) moveLocked(ctx context.Context, l *link, clids []int, cid int, password string) error {
	cmd := protocol.NewCommand("clientmove").
		Group("clid", clids...).
		Arg("cid", cid).
		ArgIf(password != "", "cpw", password)
	if _, err := s.call(ctx, l, cmd); err != nil {
		return err
	}

	id := s.Identity()
	for _, clid := range clids {
		if clid == id.ClientID {
			id.ChannelID = cid
			id.ChannelPassword = password
			s.setIdentity(l, id)
			break
		}
	}
	return nil
}

// DeleteChannel deletes channel cid.  Deleting the session's own
// channel needs force and triggers a refresh.
func (s *Session) DeleteChannel(ctx context.Context, cid int, force bool) error {
	return s.exclusive(ctx, "channeldelete", func(l *link) error {
		cmd := protocol.NewCommand("channeldelete").Arg("cid", cid).Arg("force", force)
		if _, err := s.call(ctx, l, cmd); err != nil {
			return err
		}
		if cid == s.ChannelID() {
			return s.refresh(ctx, l)
		}
		return nil
	})
}
