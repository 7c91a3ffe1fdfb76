package serverquery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	qerr "ts3query/internal/errors"
	"ts3query/internal/metrics"
	"ts3query/internal/transport"
	"ts3query/protocol"
	"ts3query/util"
)

// Defaults applied by New for zero Options fields.
const (
	DefaultReadTimeout     = 10 * time.Second
	DefaultBannerTimeout   = 500 * time.Millisecond
	DefaultDialTimeout     = 30 * time.Second
	DefaultPollInterval    = 200 * time.Millisecond
	DefaultDispatchWorkers = 4

	lineBuffer = 64
)

// Options tunes a Session.  The zero value is usable.
type Options struct {
	// ReadTimeout bounds the wait for each line of a response.
	ReadTimeout time.Duration

	// BannerTimeout bounds the wait for each welcome line after the
	// greeting.  The first wait that expires ends the banner.
	BannerTimeout time.Duration

	// DialTimeout is used by the default TCP dialer.
	DialTimeout time.Duration

	// PollInterval is how often the idle poller checks for pushed
	// notifications while events are registered.
	PollInterval time.Duration

	// DispatchWorkers bounds how many handler calls run at once.
	// Events beyond that wait in an unbounded queue.
	DispatchWorkers int

	// Dialer opens the connection.  Defaults to a plain TCP dialer.
	Dialer transport.Dialer

	Logger  *util.Logger
	Metrics *metrics.Collector
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.BannerTimeout <= 0 {
		o.BannerTimeout = DefaultBannerTimeout
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.DispatchWorkers <= 0 {
		o.DispatchWorkers = DefaultDispatchWorkers
	}
	if o.Dialer == nil {
		o.Dialer = &transport.TCPDialer{Timeout: o.DialTimeout}
	}
	if o.Logger == nil {
		o.Logger = util.NopLogger()
	}
	return o
}

// link is everything that lives exactly as long as one connection.
type link struct {
	conn     net.Conn
	addr     string
	reader   *lineReader
	mux      *dispatcher
	stopPoll chan struct{}
}

// Session is a single ServerQuery connection.  All methods are safe for
// concurrent use.
type Session struct {
	id    string
	opts  Options
	log   *util.Logger
	stats *metrics.Collector

	// exec is the execution lock: a one-slot semaphore so acquisition
	// can honour a context and the poller can try-acquire.
	exec chan struct{}

	mu      sync.Mutex // guards link and opening
	link    *link
	opening bool

	writeMu sync.Mutex

	stateMu  sync.RWMutex // guards identity, handler and events
	identity Identity
	handler  Handler
	events   map[registration]struct{}
}

// New creates a disconnected session.
func New(opts Options) *Session {
	opts = opts.withDefaults()
	id := uuid.NewString()
	return &Session{
		id:       id,
		opts:     opts,
		log:      opts.Logger.With("session", id[:8]),
		stats:    opts.Metrics,
		exec:     make(chan struct{}, 1),
		identity: unknownIdentity,
		events:   make(map[registration]struct{}),
	}
}

// ID returns the random identifier attached to this session's logs.
func (s *Session) ID() string { return s.id }

// Stats returns the metrics collector, which may be nil.
func (s *Session) Stats() *metrics.Collector { return s.stats }

// Open dials host:port, checks the greeting and skips the welcome
// banner.  It fails if the session is already connected or opening.
func (s *Session) Open(ctx context.Context, host string, port int) error {
	addr := util.FormatAddr(host, port)

	if l := s.current(); l != nil && !l.reader.alive() {
		s.teardown(l) //nolint:errcheck
	}

	s.mu.Lock()
	if s.link != nil || s.opening {
		s.mu.Unlock()
		return &ConnectionError{Op: "open", Addr: addr, Err: ErrAlreadyConnected}
	}
	s.opening = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.opening = false
		s.mu.Unlock()
	}()

	s.log.Verbose("connecting to %s", addr)
	conn, err := s.opts.Dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		s.stats.RecordError(err.Error())
		return qerr.Wrap("dial", addr, err)
	}

	reader := newLineReader(conn, lineBuffer)
	if err := s.handshake(ctx, reader, addr); err != nil {
		reader.halt()
		conn.Close()
		s.stats.RecordError(err.Error())
		return err
	}

	l := &link{
		conn:     conn,
		addr:     addr,
		reader:   reader,
		mux:      newDispatcher(s.opts.DispatchWorkers, s.log, s.stats),
		stopPoll: make(chan struct{}),
	}

	s.mu.Lock()
	s.link = l
	s.stateMu.Lock()
	s.identity = unknownIdentity
	s.events = make(map[registration]struct{})
	s.stateMu.Unlock()
	s.mu.Unlock()

	go s.poll(l)

	s.stats.ConnectionOpened()
	s.log.Info("connected to %s", addr)
	return nil
}

func (s *Session) handshake(ctx context.Context, r *lineReader, addr string) error {
	greeting, err := r.next(ctx, s.opts.ReadTimeout)
	if err != nil {
		if errors.Is(err, errReadTimeout) {
			err = &TimeoutError{Op: "greeting", After: s.opts.ReadTimeout}
		}
		return qerr.Wrap("greeting", addr, err)
	}
	if greeting != protocol.Greeting {
		return &ConnectionError{
			Op:   "greeting",
			Addr: addr,
			Err:  fmt.Errorf("%w: got %q", ErrBadGreeting, greeting),
		}
	}

	// The welcome banner has no terminator; it ends when the server
	// goes quiet.
	for {
		line, err := r.next(ctx, s.opts.BannerTimeout)
		if errors.Is(err, errReadTimeout) {
			return nil
		}
		if err != nil {
			return qerr.Wrap("banner", addr, err)
		}
		s.log.Debug("banner: %s", line)
	}
}

// IsConnected reports whether the connection exists and its reader
// is still running.
func (s *Session) IsConnected() bool {
	l := s.current()
	return l != nil && l.reader.alive()
}

// Close sends quit, closes the connection and resets the cached
// identity and event registrations.  It never waits for a running
// command; that command fails with a ConnectionLostError instead.
// Closing a closed session is a no-op.
func (s *Session) Close() error {
	return s.teardown(nil)
}

// teardown closes the session if its current link is l (or any link
// when l is nil).  A command that failed on a link that has since been
// replaced must not close the new one.
func (s *Session) teardown(l *link) error {
	s.mu.Lock()
	cur := s.link
	if cur == nil || (l != nil && cur != l) {
		s.mu.Unlock()
		return nil
	}
	s.link = nil
	s.stateMu.Lock()
	s.identity = unknownIdentity
	s.events = make(map[registration]struct{})
	s.stateMu.Unlock()
	s.mu.Unlock()

	close(cur.stopPoll)
	cur.mux.stop()

	var errs []error
	if s.writeMu.TryLock() {
		if _, err := io.WriteString(cur.conn, "quit\n"); err != nil && !isClosedConn(err) {
			errs = append(errs, fmt.Errorf("quit: %w", err))
		}
		s.writeMu.Unlock()
	}
	cur.reader.halt()
	if err := cur.conn.Close(); err != nil && !isClosedConn(err) {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}

	s.stats.ConnectionClosed()
	s.log.Verbose("disconnected from %s", cur.addr)
	return errors.Join(errs...)
}

func (s *Session) current() *link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

// onLink applies fn to the session state only while l is still the
// current link, so a result read from a connection that has since been
// closed cannot overwrite the reset state.  Lock order is mu, then
// stateMu.
func (s *Session) onLink(l *link, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link != l {
		return false
	}
	s.stateMu.Lock()
	fn()
	s.stateMu.Unlock()
	return true
}

// ── execution lock ───────────────────────────────────────────────────

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.exec <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) tryAcquire() bool {
	select {
	case s.exec <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Session) release() { <-s.exec }

// exclusive runs fn on the current link while holding the execution
// lock.  A link whose reader has stopped counts as disconnected, so no
// I/O is attempted on it.
func (s *Session) exclusive(ctx context.Context, op string, fn func(*link) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	l := s.current()
	if l == nil || !l.reader.alive() {
		return qerr.NotConnected(op)
	}
	return fn(l)
}

// ── line primitives (execution lock held) ────────────────────────────

func (s *Session) writeLine(l *link, op, line string) error {
	s.writeMu.Lock()
	_, err := io.WriteString(l.conn, line+"\n")
	s.writeMu.Unlock()
	if err != nil {
		return s.fail(l, &ConnectionLostError{Op: op, Err: err})
	}
	return nil
}

func (s *Session) readLine(ctx context.Context, l *link, op string) (string, error) {
	line, err := l.reader.next(ctx, s.opts.ReadTimeout)
	if err == nil {
		return line, nil
	}
	if errors.Is(err, errReadTimeout) {
		return "", s.fail(l, &TimeoutError{Op: op, After: s.opts.ReadTimeout})
	}
	if err == io.EOF {
		err = nil
	}
	return "", s.fail(l, &ConnectionLostError{Op: op, Err: err})
}

// fail closes the session after an unrecoverable I/O error and
// returns cause together with anything closing reported.
func (s *Session) fail(l *link, cause error) error {
	if s.current() != l {
		// Already closed by someone else.
		return cause
	}
	s.log.Warn("%v, closing session", cause)
	s.stats.RecordError(cause.Error())
	if err := s.teardown(l); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
