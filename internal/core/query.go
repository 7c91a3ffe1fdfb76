package core

import (
	"context"
	"errors"
	"strconv"
	"strings"

	qerr "ts3query/internal/errors"
	"ts3query/protocol"
	"ts3query/serverquery"
	"ts3query/util"
)

// Target describes where a mode connects and how it prepares the
// session before doing its work.
type Target struct {
	Host       string
	Port       int
	User       string
	Password   string
	ServerID   int
	ServerPort int
	Nickname   string
}

// prepare opens sess and runs login, server selection and nickname in
// that order.  The session is closed again if any step fails.
func prepare(ctx context.Context, sess *serverquery.Session, t Target, logger *util.Logger) error {
	logger.Verbose("connecting to %s", util.FormatAddr(t.Host, t.Port))
	if err := sess.Open(ctx, t.Host, t.Port); err != nil {
		return err
	}

	err := func() error {
		if t.User != "" {
			logger.Verbose("logging in as %s", t.User)
			if err := sess.Login(ctx, t.User, t.Password); err != nil {
				return err
			}
		}
		switch {
		case t.ServerID > 0:
			if err := sess.SelectServer(ctx, t.ServerID); err != nil {
				return err
			}
		case t.ServerPort > 0:
			if err := sess.SelectServerByPort(ctx, t.ServerPort); err != nil {
				return err
			}
		}
		if t.Nickname != "" {
			if err := sess.SetDisplayName(ctx, t.Nickname); err != nil {
				return err
			}
		}
		return nil
	}()
	if err != nil {
		return errors.Join(err, sess.Close())
	}

	id := sess.Identity()
	logger.Verbose("ready: sid=%d clid=%d cid=%d", id.ServerID, id.ClientID, id.ChannelID)
	return nil
}

// okResponse stands in for commands the session runs through its
// tracker, which report success as a nil error.
func okResponse() *serverquery.Response {
	return &serverquery.Response{Message: "ok", FailedPermID: -1}
}

// runLine executes one user-typed command.  Commands that change the
// tracked identity are routed through the session's typed operations;
// everything else goes to Execute.  A non-zero status is returned as a
// *ProtocolError alongside the response.
func runLine(ctx context.Context, sess *serverquery.Session, line string) (*serverquery.Response, error) {
	line = strings.TrimSpace(line)
	name, rest, _ := strings.Cut(line, " ")

	var err error
	switch strings.ToLower(name) {
	case "use":
		err = routeUse(ctx, sess, rest)
	case "clientmove":
		err = routeMove(ctx, sess, rest)
	case "channeldelete":
		err = routeDelete(ctx, sess, rest)
	default:
		resp, err := sess.Execute(ctx, line)
		if err != nil {
			return nil, err
		}
		return resp, resp.Err(name)
	}
	if err != nil {
		return nil, err
	}
	return okResponse(), nil
}

func routeUse(ctx context.Context, sess *serverquery.Session, args string) error {
	rec := protocol.ParseRecord(args)
	if rec.Has("port") {
		port, err := rec.Int("port")
		if err != nil {
			return qerr.Argument("use", "port must be a number")
		}
		return sess.SelectServerByPort(ctx, port)
	}
	if rec.Has("sid") {
		sid, err := rec.Int("sid")
		if err != nil {
			return qerr.Argument("use", "sid must be a number")
		}
		return sess.SelectServer(ctx, sid)
	}
	// "use 1" is accepted as shorthand for "use sid=1".
	if keys := rec.Keys(); len(keys) == 1 && rec[keys[0]] == "" {
		if sid, err := strconv.Atoi(keys[0]); err == nil {
			return sess.SelectServer(ctx, sid)
		}
	}
	return qerr.Argument("use", "expected sid=<id> or port=<port>")
}

func routeMove(ctx context.Context, sess *serverquery.Session, args string) error {
	var (
		clids    []int
		cid      = -1
		password string
	)
	for _, rec := range protocol.ParseRecordList(args) {
		if rec.Has("clid") {
			clid, err := rec.Int("clid")
			if err != nil {
				return qerr.Argument("clientmove", "clid must be a number")
			}
			clids = append(clids, clid)
		}
		if rec.Has("cid") {
			n, err := rec.Int("cid")
			if err != nil {
				return qerr.Argument("clientmove", "cid must be a number")
			}
			cid = n
		}
		if v, ok := rec["cpw"]; ok {
			password = v
		}
	}
	if len(clids) == 0 || cid < 0 {
		return qerr.Argument("clientmove", "expected clid=<id>[|clid=<id>...] cid=<id>")
	}
	return sess.MoveClients(ctx, clids, cid, password)
}

func routeDelete(ctx context.Context, sess *serverquery.Session, args string) error {
	rec := protocol.ParseRecord(args)
	cid, err := rec.Int("cid")
	if err != nil {
		return qerr.Argument("channeldelete", "expected cid=<id> [force=1]")
	}
	return sess.DeleteChannel(ctx, cid, rec.Bool("force"))
}
