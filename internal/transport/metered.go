package transport

import (
	"context"
	"net"

	"ts3query/internal/metrics"
)

// MeteredDialer wraps another Dialer and reports traffic on every
// connection it opens to a metrics collector.
type MeteredDialer struct {
	Dialer
	Metrics *metrics.Collector
}

// Dial opens a connection through the wrapped dialer.
func (d *MeteredDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.Dialer.Dial(ctx, network, address)
	if err != nil || d.Metrics == nil {
		return conn, err
	}
	return &meteredConn{Conn: conn, m: d.Metrics}, nil
}

type meteredConn struct {
	net.Conn
	m *metrics.Collector
}

func (c *meteredConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.m.BytesReceived(int64(n))
	}
	return n, err
}

func (c *meteredConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if n > 0 {
		c.m.BytesSent(int64(n))
	}
	return n, err
}
