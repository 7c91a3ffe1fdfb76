// Package transport establishes the byte stream a query session runs
// over.  A session only needs a net.Conn; whether it came from a direct
// TCP dial or was forwarded through an SSH gateway is decided here.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH client).  Stateless dialers return nil.
	Close() error
}
