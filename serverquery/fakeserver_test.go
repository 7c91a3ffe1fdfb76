package serverquery

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"ts3query/protocol"
)

const okLine = "error id=0 msg=ok"

// fakeServer speaks just enough ServerQuery for the session tests.  It
// serves one connection at a time and remembers every command line.
type fakeServer struct {
	t  *testing.T
	ln net.Listener

	greeting string
	banner   []string

	mu       sync.Mutex
	conn     net.Conn
	handlers map[string]func(args string) []string
	received []string
	overlaps int
	sid      int
	clid     int
	cid      int

	writeMu sync.Mutex
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeServer{
		t:        t,
		ln:       ln,
		greeting: "TS3",
		banner: []string{
			"Welcome to the TeamSpeak 3 ServerQuery interface, type \"help\" for a list of commands.",
		},
		handlers: make(map[string]func(string) []string),
		clid:     5,
		cid:      1,
	}
	go f.serve()
	t.Cleanup(func() {
		ln.Close()
		f.mu.Lock()
		if f.conn != nil {
			f.conn.Close()
		}
		f.mu.Unlock()
	})
	return f
}

func (f *fakeServer) port() int { return f.ln.Addr().(*net.TCPAddr).Port }

// on installs a reply script for a command verb.  The returned lines
// are written in order; return nil to never answer.
func (f *fakeServer) on(verb string, h func(args string) []string) {
	f.mu.Lock()
	f.handlers[verb] = h
	f.mu.Unlock()
}

func (f *fakeServer) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		go f.handle(conn)
	}
}

type arrival struct {
	line string
	at   time.Time
}

func (f *fakeServer) handle(conn net.Conn) {
	defer conn.Close()

	f.write(conn, f.greeting)
	for _, b := range f.banner {
		f.write(conn, b)
	}

	// Stamp arrival times on a separate goroutine so pipelined
	// commands are detectable.
	lines := make(chan arrival, 64)
	go func() {
		defer close(lines)
		br := bufio.NewReader(conn)
		for {
			raw, err := br.ReadString('\n')
			if err != nil {
				return
			}
			lines <- arrival{strings.TrimRight(raw, "\r\n"), time.Now()}
		}
	}()

	var lastReply time.Time
	for a := range lines {
		f.mu.Lock()
		f.received = append(f.received, a.line)
		if a.at.Before(lastReply) {
			f.overlaps++
		}
		f.mu.Unlock()

		if a.line == "quit" {
			return
		}
		reply := f.respond(a.line)
		if reply == nil {
			continue
		}
		for _, l := range reply {
			f.write(conn, l)
		}
		lastReply = time.Now()
	}
}

func (f *fakeServer) write(conn net.Conn, line string) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	conn.Write([]byte(line + "\n\r")) //nolint:errcheck
}

// push writes an unsolicited line to the current connection.
func (f *fakeServer) push(line string) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn != nil {
		f.write(conn, line)
	}
}

// drop closes the current connection from the server side.
func (f *fakeServer) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
	}
}

func (f *fakeServer) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func (f *fakeServer) count(verb string) int {
	n := 0
	for _, c := range f.commands() {
		if c == verb || strings.HasPrefix(c, verb+" ") {
			n++
		}
	}
	return n
}

func (f *fakeServer) overlapCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlaps
}

func (f *fakeServer) respond(line string) []string {
	verb, args, _ := strings.Cut(line, " ")
	rec := protocol.ParseRecord(args)

	f.mu.Lock()
	h := f.handlers[verb]
	f.mu.Unlock()
	if h != nil {
		return h(args)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch verb {
	case "whoami":
		return []string{
			fmt.Sprintf("virtualserver_status=online virtualserver_id=%d client_id=%d client_channel_id=%d client_nickname=serveradmin",
				f.sid, f.clid, f.cid),
			okLine,
		}
	case "login", "servernotifyregister", "servernotifyunregister", "clientupdate":
		return []string{okLine}
	case "use":
		switch {
		case rec.Has("sid"):
			sid, _ := strconv.Atoi(rec["sid"])
			if sid == 99 {
				return []string{`error id=1024 msg=invalid\sserverID`}
			}
			f.sid = sid
		case rec.Has("port"):
			port, _ := strconv.Atoi(rec["port"])
			f.sid = port - 9986
		}
		f.cid = 1
		return []string{okLine}
	case "clientmove":
		cid, _ := strconv.Atoi(rec["cid"])
		for _, group := range strings.Split(args, "|") {
			r := protocol.ParseRecord(group)
			if r["clid"] == strconv.Itoa(f.clid) {
				f.cid = cid
			}
		}
		return []string{okLine}
	case "channeldelete":
		if rec["cid"] == strconv.Itoa(f.cid) {
			f.cid = 1
		}
		return []string{okLine}
	case "version":
		return []string{"version=3.13.7 build=1655727713 platform=Linux", okLine}
	}
	return []string{`error id=256 msg=command\snot\sfound`}
}

func testOptions() Options {
	return Options{
		ReadTimeout:   2 * time.Second,
		BannerTimeout: 50 * time.Millisecond,
		PollInterval:  20 * time.Millisecond,
	}
}

// openSession connects a new session to f and closes it at cleanup.
func openSession(t *testing.T, f *fakeServer, opts Options) *Session {
	t.Helper()
	s := New(opts)
	if err := s.Open(context.Background(), "127.0.0.1", f.port()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// collector is a Handler that records everything it receives.
type collector struct {
	mu     sync.Mutex
	events []Notification
}

func (c *collector) HandleNotification(n Notification) {
	c.mu.Lock()
	c.events = append(c.events, n)
	c.mu.Unlock()
}

func (c *collector) received() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.events...)
}

func (c *collector) has(event string) bool {
	for _, n := range c.received() {
		if n.Event == event {
			return true
		}
	}
	return false
}
