package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so CLI flags, the config file and
// environment loading agree on them.

const (
	// DefaultQueryPort is the ServerQuery raw (telnet) port.
	DefaultQueryPort = 10011

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultReadTimeout bounds the wait for each response line.
	DefaultReadTimeout = 10 * time.Second

	// DefaultBannerTimeout bounds each welcome line after the greeting.
	DefaultBannerTimeout = 500 * time.Millisecond

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultPollInterval is how often idle notifications are drained.
	DefaultPollInterval = 200 * time.Millisecond

	// DefaultKeepAlive is the SSH keepalive interval for tunnelled
	// watch sessions.
	DefaultKeepAlive = 30 * time.Second

	// DefaultMaxReconnectAttempts is how many times watch mode retries
	// after the connection drops.  Zero would mean forever.
	DefaultMaxReconnectAttempts = 10

	// DefaultMaxReconnectBackoff caps the exponential backoff between
	// reconnection attempts.
	DefaultMaxReconnectBackoff = 60 * time.Second

	// DefaultLogLimit is the number of entries "logview" shows.
	DefaultLogLimit = 100
)

// Output formats accepted by --output.
const (
	OutputAuto  = ""
	OutputTable = "table"
	OutputRaw   = "raw"
	OutputJSON  = "json"
)
