package serverquery

import (
	"fmt"
	"sync"
	"time"

	"ts3query/internal/metrics"
	"ts3query/protocol"
	"ts3query/util"
)

type delivery struct {
	handler Handler
	n       Notification
}

// dispatcher runs handlers off the read path on a fixed pool of
// workers.  Accepted events wait in an unbounded FIFO, so submit never
// blocks and nothing is dropped while a slow handler holds every
// worker.
type dispatcher struct {
	work  chan delivery
	wake  chan struct{}
	log   *util.Logger
	stats *metrics.Collector

	mu      sync.Mutex
	pending []delivery
	closed  bool
}

func newDispatcher(workers int, log *util.Logger, stats *metrics.Collector) *dispatcher {
	d := &dispatcher{
		work:  make(chan delivery),
		wake:  make(chan struct{}, 1),
		log:   log,
		stats: stats,
	}
	go d.pump()
	for i := 0; i < workers; i++ {
		go d.run()
	}
	return d
}

func (d *dispatcher) submit(h Handler, n Notification) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.pending = append(d.pending, delivery{h, n})
	d.stats.NotificationQueued()
	d.mu.Unlock()

	d.signal()
	return true
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// stop refuses further events.  Workers still deliver everything that
// was accepted and then exit; stop does not wait for them.
func (d *dispatcher) stop() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.signal()
}

// pump hands queued events to the workers in arrival order.
func (d *dispatcher) pump() {
	for {
		d.mu.Lock()
		if len(d.pending) == 0 {
			closed := d.closed
			d.pending = nil
			d.mu.Unlock()
			if closed {
				close(d.work)
				return
			}
			<-d.wake
			continue
		}
		dl := d.pending[0]
		d.pending[0] = delivery{}
		d.pending = d.pending[1:]
		d.mu.Unlock()

		d.work <- dl
		d.stats.NotificationDequeued()
	}
}

func (d *dispatcher) run() {
	for dl := range d.work {
		d.deliver(dl)
	}
}

func (d *dispatcher) deliver(dl delivery) {
	defer func() {
		if r := recover(); r != nil {
			d.stats.HandlerPanicked()
			d.stats.RecordError(fmt.Sprintf("handler panic: %v", r))
			d.log.Error("notification handler panicked on %s: %v", dl.n.Event, r)
		}
	}()
	dl.handler.HandleNotification(dl.n)
	d.stats.NotificationDispatched()
}

// intercept routes one notification line.  The handler is captured
// now, so a handler swapped later never sees this event.
func (s *Session) intercept(l *link, line string) {
	event, data, _ := protocol.SplitNotification(line)

	s.stateMu.RLock()
	h := s.handler
	s.stateMu.RUnlock()

	if h == nil {
		s.log.Debug("no handler, discarding %s", event)
		return
	}
	s.log.Debug("<- %s", event)
	l.mux.submit(h, Notification{Event: event, Data: data})
}

// poll drains pushed lines while the session is idle.  A pass only
// runs when events are registered and no command holds the lock.  When
// the connection drops it waits for the lock, flushes what was
// buffered and closes the session.
func (s *Session) poll(l *link) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopPoll:
			return
		case <-l.reader.done:
			select {
			case s.exec <- struct{}{}:
			case <-l.stopPoll:
				return
			}
			s.drain(l)
			s.release()
			return
		case <-ticker.C:
			if !s.hasRegistrations() || !s.tryAcquire() {
				continue
			}
			s.drain(l)
			s.release()
		}
	}
}

// drain consumes every buffered line without waiting.  The execution
// lock must be held.
func (s *Session) drain(l *link) {
	for {
		line, ok, err := l.reader.poll()
		if err != nil {
			s.fail(l, &ConnectionLostError{Op: "poll", Err: err}) //nolint:errcheck
			return
		}
		if !ok {
			return
		}
		if protocol.IsNotification(line) {
			s.intercept(l, line)
			continue
		}
		s.log.Debug("discarding stray line while idle: %s", line)
	}
}
