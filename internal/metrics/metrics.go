// Package metrics provides lightweight, lock-free counters for a
// ServerQuery session: connections, commands, notifications and bytes.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one or more sessions.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	reconnects        atomic.Int64

	commandsTotal atomic.Int64
	commandErrors atomic.Int64

	notificationsDispatched atomic.Int64
	notificationBacklog     atomic.Int64
	notificationBacklogPeak atomic.Int64
	handlerPanics           atomic.Int64

	bytesIn     atomic.Int64
	bytesOut    atomic.Int64
	errorsTotal atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastCommand  time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// Reconnect records a reconnection after a dropped session.
func (c *Collector) Reconnect() {
	if c == nil {
		return
	}
	c.reconnects.Add(1)
}

// Reconnects returns the total reconnection count.
func (c *Collector) Reconnects() int64 {
	if c == nil {
		return 0
	}
	return c.reconnects.Load()
}

// ── Command metrics ──────────────────────────────────────────────────

// CommandSent records one command written to the server.
func (c *Collector) CommandSent() {
	if c == nil {
		return
	}
	c.commandsTotal.Add(1)
	c.mu.Lock()
	c.lastCommand = time.Now()
	c.mu.Unlock()
}

// CommandFailed records a command answered with a non-zero status.
func (c *Collector) CommandFailed() {
	if c == nil {
		return
	}
	c.commandErrors.Add(1)
}

// Commands returns the total number of commands sent.
func (c *Collector) Commands() int64 {
	if c == nil {
		return 0
	}
	return c.commandsTotal.Load()
}

// CommandErrors returns the number of commands with a non-zero status.
func (c *Collector) CommandErrors() int64 {
	if c == nil {
		return 0
	}
	return c.commandErrors.Load()
}

// ── Notification metrics ─────────────────────────────────────────────

// NotificationDispatched records an event handed to the dispatch pool.
func (c *Collector) NotificationDispatched() {
	if c == nil {
		return
	}
	c.notificationsDispatched.Add(1)
}

// NotificationQueued records an event waiting for a dispatch worker.
func (c *Collector) NotificationQueued() {
	if c == nil {
		return
	}
	n := c.notificationBacklog.Add(1)
	for {
		peak := c.notificationBacklogPeak.Load()
		if n <= peak || c.notificationBacklogPeak.CompareAndSwap(peak, n) {
			return
		}
	}
}

// NotificationDequeued records an event taken by a dispatch worker.
func (c *Collector) NotificationDequeued() {
	if c == nil {
		return
	}
	c.notificationBacklog.Add(-1)
}

// HandlerPanicked records a notification handler that panicked.
func (c *Collector) HandlerPanicked() {
	if c == nil {
		return
	}
	c.handlerPanics.Add(1)
}

// NotificationsDispatched returns the dispatched event count.
func (c *Collector) NotificationsDispatched() int64 {
	if c == nil {
		return 0
	}
	return c.notificationsDispatched.Load()
}

// NotificationBacklog returns the number of events waiting for a worker.
func (c *Collector) NotificationBacklog() int64 {
	if c == nil {
		return 0
	}
	return c.notificationBacklog.Load()
}

// NotificationBacklogPeak returns the largest backlog seen.
func (c *Collector) NotificationBacklogPeak() int64 {
	if c == nil {
		return 0
	}
	return c.notificationBacklogPeak.Load()
}

// HandlerPanics returns the number of recovered handler panics.
func (c *Collector) HandlerPanics() int64 {
	if c == nil {
		return 0
	}
	return c.handlerPanics.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the network.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the network.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime                  string `json:"uptime"`
	ConnectionsActive       int64  `json:"connections_active"`
	ConnectionsTotal        int64  `json:"connections_total"`
	Reconnects              int64  `json:"reconnects"`
	Commands                int64  `json:"commands"`
	CommandErrors           int64  `json:"command_errors"`
	NotificationsDispatched int64  `json:"notifications_dispatched"`
	NotificationBacklog     int64  `json:"notification_backlog"`
	NotificationBacklogPeak int64  `json:"notification_backlog_peak"`
	HandlerPanics           int64  `json:"handler_panics"`
	BytesIn                 int64  `json:"bytes_in"`
	BytesOut                int64  `json:"bytes_out"`
	ErrorsTotal             int64  `json:"errors_total"`
	LastCommand             string `json:"last_command,omitempty"`
	LastError               string `json:"last_error,omitempty"`
	LastErrorMessage        string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:                  time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive:       c.connectionsActive.Load(),
		ConnectionsTotal:        c.connectionsTotal.Load(),
		Reconnects:              c.reconnects.Load(),
		Commands:                c.commandsTotal.Load(),
		CommandErrors:           c.commandErrors.Load(),
		NotificationsDispatched: c.notificationsDispatched.Load(),
		NotificationBacklog:     c.notificationBacklog.Load(),
		NotificationBacklogPeak: c.notificationBacklogPeak.Load(),
		HandlerPanics:           c.handlerPanics.Load(),
		BytesIn:                 c.bytesIn.Load(),
		BytesOut:                c.bytesOut.Load(),
		ErrorsTotal:             c.errorsTotal.Load(),
	}
	if !c.lastCommand.IsZero() {
		s.LastCommand = c.lastCommand.Format(time.RFC3339)
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
