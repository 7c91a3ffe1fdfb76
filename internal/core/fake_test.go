package core

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"ts3query/internal/metrics"
	"ts3query/serverquery"
	"ts3query/util"
)

const okLine = "error id=0 msg=ok"

// queryServer is a scripted ServerQuery endpoint.  Every accepted
// connection gets the greeting; commands are answered from replies or
// with a plain ok.
type queryServer struct {
	ln net.Listener

	mu       sync.Mutex
	conn     net.Conn
	accepted int
	replies  map[string][]string
	received []string
}

func newQueryServer(t *testing.T) *queryServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &queryServer{
		ln: ln,
		replies: map[string][]string{
			"whoami": {"virtualserver_status=online virtualserver_id=1 client_id=5 client_channel_id=1", okLine},
		},
	}
	go s.serve()
	t.Cleanup(func() {
		ln.Close()
		s.drop()
	})
	return s
}

func (s *queryServer) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

// reply scripts the answer to a verb.  The last line must be the
// terminator.
func (s *queryServer) reply(verb string, lines ...string) {
	s.mu.Lock()
	s.replies[verb] = lines
	s.mu.Unlock()
}

func (s *queryServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.accepted++
		s.mu.Unlock()
		go s.handle(conn)
	}
}

func (s *queryServer) handle(conn net.Conn) {
	defer conn.Close()
	conn.Write([]byte("TS3\n\rWelcome to the TeamSpeak 3 ServerQuery interface.\n\r")) //nolint:errcheck

	br := bufio.NewReader(conn)
	for {
		raw, err := br.ReadString('\n')
		if err != nil {
			return
		}
		line := strings.TrimRight(raw, "\r\n")
		verb, _, _ := strings.Cut(line, " ")

		s.mu.Lock()
		s.received = append(s.received, line)
		out, ok := s.replies[verb]
		s.mu.Unlock()

		if verb == "quit" {
			return
		}
		if !ok {
			out = []string{okLine}
		}
		for _, l := range out {
			conn.Write([]byte(l + "\n\r")) //nolint:errcheck
		}
	}
}

func (s *queryServer) push(line string) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Write([]byte(line + "\n\r")) //nolint:errcheck
	}
}

func (s *queryServer) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *queryServer) connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *queryServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// sent reports whether line was received verbatim.
func (s *queryServer) sent(line string) bool {
	for _, c := range s.commands() {
		if c == line {
			return true
		}
	}
	return false
}

func (s *queryServer) count(verb string) int {
	n := 0
	for _, c := range s.commands() {
		if c == verb || strings.HasPrefix(c, verb+" ") {
			n++
		}
	}
	return n
}

func (s *queryServer) target() Target {
	return Target{Host: "127.0.0.1", Port: s.port()}
}

func newTestSession(stats *metrics.Collector) *serverquery.Session {
	return serverquery.New(serverquery.Options{
		ReadTimeout:   2 * time.Second,
		BannerTimeout: 50 * time.Millisecond,
		PollInterval:  20 * time.Millisecond,
		Logger:        util.NopLogger(),
		Metrics:       stats,
	})
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}
