package core

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	qerr "ts3query/internal/errors"
	"ts3query/internal/metrics"
	"ts3query/internal/retry"
	"ts3query/serverquery"
	"ts3query/util"
)

const (
	defaultCheckInterval = 500 * time.Millisecond

	// The server drops idle query clients after ten minutes.
	defaultIdleRefresh = 3 * time.Minute
)

// WatchMode registers for events and prints every notification until
// the context is cancelled.  With Reconnect set, a lost connection is
// re-established through Backoff and the registrations are restored.
type WatchMode struct {
	Session *serverquery.Session
	Target  Target
	Events  []string
	Channel int
	Render  Renderer
	Logger  *util.Logger
	Metrics *metrics.Collector

	Reconnect bool
	Backoff   *retry.Backoff

	// CheckInterval is how often the connection state is sampled.
	CheckInterval time.Duration
	// IdleRefresh is the period of the whoami sent to keep the query
	// client from being dropped as idle.
	IdleRefresh time.Duration

	// Stdout defaults to os.Stdout when nil.
	Stdout io.Writer

	outMu sync.Mutex
}

func (m *WatchMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// HandleNotification renders n.  Workers may call it concurrently, so
// writes are serialised.
func (m *WatchMode) HandleNotification(n serverquery.Notification) {
	m.outMu.Lock()
	defer m.outMu.Unlock()
	if err := m.Render.Event(m.stdout(), n); err != nil {
		m.Logger.Warn("write event: %v", err)
	}
}

// Run blocks until ctx is cancelled or the connection is lost without
// Reconnect.  Cancellation is a clean exit.
func (m *WatchMode) Run(ctx context.Context) error {
	m.Session.SetNotificationHandler(m)
	defer func() {
		if cerr := m.Session.Close(); cerr != nil {
			m.Logger.Debug("close: %v", cerr)
		}
	}()

	if !m.Reconnect {
		if err := m.connect(ctx); err != nil {
			return err
		}
		return m.watch(ctx)
	}

	b := m.Backoff
	if b == nil {
		b = retry.DefaultBackoff()
	}
	if b.Retryable == nil {
		b.Retryable = qerr.IsRetryable
	}
	if b.OnRetry == nil {
		b.OnRetry = func(attempt int, err error, wait time.Duration) {
			m.Logger.Warn("attempt %d failed: %v (retrying in %s)", attempt, err, wait.Round(time.Millisecond))
		}
	}

	first := true
	for {
		err := b.Do(ctx, func(attempt int) error {
			if !first || attempt > 1 {
				m.Metrics.Reconnect()
			}
			return m.connect(ctx)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		first = false

		err = m.watch(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		m.Logger.Warn("%v, reconnecting", err)
	}
}

// connect prepares the session and restores every registration.
func (m *WatchMode) connect(ctx context.Context) error {
	if err := prepare(ctx, m.Session, m.Target, m.Logger); err != nil {
		return err
	}
	for _, ev := range m.Events {
		if err := m.Session.RegisterEvents(ctx, ev, m.Channel); err != nil {
			return errors.Join(err, m.Session.Close())
		}
	}
	m.Logger.Info("watching %v on %s", m.Session.Registrations(), util.FormatAddr(m.Target.Host, m.Target.Port))
	return nil
}

// watch returns nil when ctx is done and a ConnectionLostError when the
// session drops.
func (m *WatchMode) watch(ctx context.Context) error {
	check := m.CheckInterval
	if check <= 0 {
		check = defaultCheckInterval
	}
	idle := m.IdleRefresh
	if idle <= 0 {
		idle = defaultIdleRefresh
	}

	checkTicker := time.NewTicker(check)
	defer checkTicker.Stop()
	idleTicker := time.NewTicker(idle)
	defer idleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-checkTicker.C:
			if !m.Session.IsConnected() {
				return &qerr.ConnectionLostError{Op: "watch"}
			}
		case <-idleTicker.C:
			err := m.Session.Refresh(ctx)
			switch {
			case err == nil:
			case ctx.Err() != nil:
				return nil
			case qerr.IsFatal(err), errors.Is(err, qerr.ErrNotConnected):
				return &qerr.ConnectionLostError{Op: "watch", Err: err}
			default:
				m.Logger.Warn("refresh: %v", err)
			}
		}
	}
}
