package serverquery

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	qerr "ts3query/internal/errors"
	"ts3query/protocol"
)

var errEmptyBody = errors.New("server sent no data")

// ListKind selects one of the server's list commands.
type ListKind int

const (
	ListClients ListKind = iota + 1
	ListChannels
	ListServers
	ListServerGroups
	ListClientDB
	ListPermissions
	ListBans
	ListComplaints
)

type listSpec struct {
	command string
	flags   []string // accepted "-flag" options
	params  []string // accepted "key=<int>" options
}

var lists = map[ListKind]listSpec{
	ListClients:      {"clientlist", []string{"-uid", "-away", "-voice", "-times", "-groups", "-info", "-icon", "-country"}, nil},
	ListChannels:     {"channellist", []string{"-topic", "-flags", "-voice", "-limits", "-icon"}, nil},
	ListServers:      {"serverlist", []string{"-uid", "-all", "-short", "-onlyoffline"}, nil},
	ListServerGroups: {"servergrouplist", nil, nil},
	ListClientDB:     {"clientdblist", []string{"-count"}, []string{"start", "duration"}},
	ListPermissions:  {"permissionlist", nil, nil},
	ListBans:         {"banlist", nil, nil},
	ListComplaints:   {"complainlist", nil, []string{"tcldbid"}},
}

// ParseListKind maps a command name such as "clientlist" to its kind.
func ParseListKind(command string) (ListKind, bool) {
	for k, spec := range lists {
		if spec.command == command {
			return k, true
		}
	}
	return 0, false
}

func (k ListKind) String() string {
	if spec, ok := lists[k]; ok {
		return spec.command
	}
	return "ListKind(" + strconv.Itoa(int(k)) + ")"
}

// List runs a list command.  Each filter is either one of the kind's
// flags (e.g. "-away") or one of its numeric parameters (e.g.
// "start=50"); anything else is rejected before sending.
func (s *Session) List(ctx context.Context, kind ListKind, filters ...string) ([]protocol.Record, error) {
	spec, ok := lists[kind]
	if !ok {
		return nil, qerr.Argument("list", "unknown list kind %d", int(kind))
	}

	cmd := protocol.NewCommand(spec.command)
	for _, f := range filters {
		if err := spec.apply(cmd, f); err != nil {
			return nil, err
		}
	}
	return s.records(ctx, cmd)
}

func (spec listSpec) apply(cmd *protocol.Command, filter string) error {
	if strings.HasPrefix(filter, "-") {
		for _, fl := range spec.flags {
			if strings.EqualFold(filter, fl) {
				cmd.Flag(fl)
				return nil
			}
		}
		return qerr.Argument(spec.command, "unsupported option %q", filter)
	}

	key, value, found := strings.Cut(filter, "=")
	if found {
		for _, p := range spec.params {
			if key != p {
				continue
			}
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return qerr.Argument(spec.command, "%s must be a non-negative integer, got %q", key, value)
			}
			cmd.Arg(key, n)
			return nil
		}
	}
	return qerr.Argument(spec.command, "unsupported option %q", filter)
}

// InfoKind selects serverinfo, channelinfo or clientinfo.
type InfoKind int

const (
	InfoServer InfoKind = iota + 1
	InfoChannel
	InfoClient
)

// Info returns the detail record for the current virtual server or for
// one channel or client.  id is ignored for InfoServer.
func (s *Session) Info(ctx context.Context, kind InfoKind, id int) (protocol.Record, error) {
	var cmd *protocol.Command
	switch kind {
	case InfoServer:
		cmd = protocol.NewCommand("serverinfo")
	case InfoChannel:
		cmd = protocol.NewCommand("channelinfo").Arg("cid", id)
	case InfoClient:
		cmd = protocol.NewCommand("clientinfo").Arg("clid", id)
	default:
		return nil, qerr.Argument("info", "unknown info kind %d", int(kind))
	}
	return s.record(ctx, cmd)
}

// PermListKind selects whose permissions PermissionList returns.
type PermListKind int

const (
	PermsChannel     PermListKind = iota + 1 // target is a channel id
	PermsClient                              // target is a client database id
	PermsServerGroup                         // target is a server group id
)

// PermissionList returns the permissions assigned to a channel, client
// or server group.
func (s *Session) PermissionList(ctx context.Context, kind PermListKind, target int) ([]protocol.Record, error) {
	var cmd *protocol.Command
	switch kind {
	case PermsChannel:
		cmd = protocol.NewCommand("channelpermlist").Arg("cid", target)
	case PermsClient:
		cmd = protocol.NewCommand("clientpermlist").Arg("cldbid", target)
	case PermsServerGroup:
		cmd = protocol.NewCommand("servergrouppermlist").Arg("sgid", target)
	default:
		return nil, qerr.Argument("permlist", "unknown permission list kind %d", int(kind))
	}
	return s.records(ctx, cmd)
}

// PermissionInfo looks up a permission by id in the server's
// permission list.  It returns nil if no such permission exists.
func (s *Session) PermissionInfo(ctx context.Context, permID int) (protocol.Record, error) {
	perms, err := s.List(ctx, ListPermissions)
	if err != nil {
		return nil, err
	}
	for _, p := range perms {
		if !p.Has("permid") {
			continue
		}
		id, err := p.Int("permid")
		if err != nil {
			return nil, err
		}
		if id == permID {
			return p, nil
		}
	}
	return nil, nil
}

// Comparator orders log entries relative to a timestamp.
type Comparator string

const (
	Before Comparator = "<"
	At     Comparator = "="
	After  Comparator = ">"
)

// LogEntries returns up to limit (1..500) log lines.  When since is
// non-zero only entries matching cmp relative to it are returned.
func (s *Session) LogEntries(ctx context.Context, limit int, cmp Comparator, since time.Time) ([]protocol.Record, error) {
	const op = "logview"
	if limit < 1 || limit > 500 {
		return nil, qerr.Argument(op, "limit must be between 1 and 500, got %d", limit)
	}

	cmd := protocol.NewCommand(op).Arg("limitcount", limit)
	if !since.IsZero() {
		switch cmp {
		case Before, At, After:
		default:
			return nil, qerr.Argument(op, "unknown comparator %q", string(cmp))
		}
		cmd.Arg("comparator", string(cmp)).Arg("timestamp", since.Unix())
	}
	return s.records(ctx, cmd)
}

// TextTarget is the targetmode of a text message.
type TextTarget int

const (
	TargetClient  TextTarget = 1
	TargetChannel TextTarget = 2
	TargetServer  TextTarget = 3
	TargetGlobal  TextTarget = 4 // every virtual server, sent with gm
)

// SendTextMessage sends msg to a client, channel, virtual server or to
// every server.  Channel and server messages can only be sent to where
// the session is, so it moves there first and back afterwards, all
// under one hold of the execution lock.  channelPassword is used when
// joining the target channel.
func (s *Session) SendTextMessage(ctx context.Context, target TextTarget, targetID int, msg, channelPassword string) error {
	const op = "sendtextmessage"
	if msg == "" {
		return qerr.Argument(op, "empty message")
	}
	if target < TargetClient || target > TargetGlobal {
		return qerr.Argument(op, "unknown target mode %d", int(target))
	}

	return s.exclusive(ctx, op, func(l *link) error {
		send := protocol.NewCommand(op).Arg("targetmode", int(target))

		switch target {
		case TargetGlobal:
			_, err := s.call(ctx, l, protocol.NewCommand("gm").Arg("msg", msg))
			return err

		case TargetClient:
			_, err := s.call(ctx, l, send.Arg("target", targetID).Arg("msg", msg))
			return err

		case TargetChannel:
			from := s.Identity()
			if targetID == from.ChannelID {
				_, err := s.call(ctx, l, send.Arg("msg", msg))
				return err
			}
			self := []int{from.ClientID}
			if err := s.moveLocked(ctx, l, self, targetID, channelPassword); err != nil {
				return err
			}
			_, err := s.call(ctx, l, send.Arg("msg", msg))
			if l != s.current() {
				return err
			}
			return errors.Join(err, s.moveLocked(ctx, l, self, from.ChannelID, from.ChannelPassword))

		default: // TargetServer
			from := s.Identity()
			if targetID == from.ServerID {
				_, err := s.call(ctx, l, send.Arg("msg", msg))
				return err
			}
			if err := s.useLocked(ctx, l, protocol.NewCommand("use").Arg("sid", targetID)); err != nil {
				return err
			}
			_, err := s.call(ctx, l, send.Arg("msg", msg))
			if l != s.current() {
				return err
			}
			return errors.Join(err, s.useLocked(ctx, l, protocol.NewCommand("use").Arg("sid", from.ServerID)))
		}
	})
}

// Poke shows msg in a popup on the client's screen.
func (s *Session) Poke(ctx context.Context, clid int, msg string) error {
	_, err := s.run(ctx, protocol.NewCommand("clientpoke").Arg("clid", clid).Arg("msg", msg))
	return err
}

// Kick removes a client from its channel, or from the server when
// onlyChannel is false.
func (s *Session) Kick(ctx context.Context, clid int, onlyChannel bool, reason string) error {
	reasonID := 5
	if onlyChannel {
		reasonID = 4
	}
	cmd := protocol.NewCommand("clientkick").
		Arg("clid", clid).
		Arg("reasonid", reasonID).
		ArgIf(reason != "", "reasonmsg", reason)
	_, err := s.run(ctx, cmd)
	return err
}

// ComplainAdd files a complaint against a client database id.
func (s *Session) ComplainAdd(ctx context.Context, targetDBID int, msg string) error {
	if msg == "" {
		return qerr.Argument("complainadd", "empty message")
	}
	_, err := s.run(ctx, protocol.NewCommand("complainadd").Arg("tcldbid", targetDBID).Arg("message", msg))
	return err
}

// ComplainDelete removes the complaint fromDBID filed against targetDBID.
func (s *Session) ComplainDelete(ctx context.Context, targetDBID, fromDBID int) error {
	_, err := s.run(ctx, protocol.NewCommand("complaindel").Arg("tcldbid", targetDBID).Arg("fcldbid", fromDBID))
	return err
}

// SetDisplayName changes the nickname other clients see for this
// session.  Names shorter than three characters are rejected.
func (s *Session) SetDisplayName(ctx context.Context, name string) error {
	if utf8.RuneCountInString(name) < 3 {
		return qerr.Argument("clientupdate", "display name %q is shorter than 3 characters", name)
	}
	_, err := s.run(ctx, protocol.NewCommand("clientupdate").Arg("client_nickname", name))
	return err
}

// run sends a built command under the lock and checks its status.
func (s *Session) run(ctx context.Context, cmd *protocol.Command) (*Response, error) {
	var resp *Response
	err := s.exclusive(ctx, cmd.Name(), func(l *link) error {
		var err error
		resp, err = s.call(ctx, l, cmd)
		return err
	})
	return resp, err
}

func (s *Session) records(ctx context.Context, cmd *protocol.Command) ([]protocol.Record, error) {
	resp, err := s.run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	recs := resp.Records()
	if len(recs) == 0 {
		return nil, &ParseError{Op: cmd.Name(), Err: errEmptyBody}
	}
	return recs, nil
}

func (s *Session) record(ctx context.Context, cmd *protocol.Command) (protocol.Record, error) {
	resp, err := s.run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	rec := resp.Record()
	if rec == nil {
		return nil, &ParseError{Op: cmd.Name(), Err: errEmptyBody}
	}
	return rec, nil
}
