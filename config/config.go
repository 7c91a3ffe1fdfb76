// Package config defines the runtime configuration for ts3query and the
// loaders that fill it from a TOML file, the environment and flags.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	qerr "ts3query/internal/errors"
)

// Config holds every tuneable for one ts3query run.
type Config struct {
	// ── Connection ───────────────────────────────────────────────────
	Host          string
	Port          int
	LocalAddr     string
	ReadTimeout   time.Duration
	BannerTimeout time.Duration
	DialTimeout   time.Duration
	PollInterval  time.Duration

	// ── Login ────────────────────────────────────────────────────────
	User           string
	Password       string
	PasswordPrompt bool
	ServerID       int // 0 = don't select
	ServerPort     int // 0 = don't select
	Nickname       string

	// ── Mode ─────────────────────────────────────────────────────────
	Commands      []string
	Watch         bool
	Events        []string
	EventChannel  int
	Reconnect     bool
	MaxReconnects int

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string // raw user@host[:port] from --tunnel
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string
	KeepAlive      time.Duration

	// ── Output ───────────────────────────────────────────────────────
	Output  string
	Verbose int

	ConfigPath string
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Port:          DefaultQueryPort,
		ReadTimeout:   DefaultReadTimeout,
		BannerTimeout: DefaultBannerTimeout,
		DialTimeout:   DefaultConnTimeout,
		PollInterval:  DefaultPollInterval,
		MaxReconnects: DefaultMaxReconnectAttempts,
		TunnelPort:    DefaultSSHPort,
		KeepAlive:     DefaultKeepAlive,
		Verbose:       1,
	}
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q, expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses TunnelSpec into the tunnel fields.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &qerr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: err.Error()}
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// KnownEvents lists the values accepted by --event.
var KnownEvents = []string{"server", "channel", "textserver", "textchannel", "textprivate"}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Host == "" {
		return &qerr.ConfigError{
			Field:   "host",
			Message: "a server address is required",
			Hint:    "ts3query [flags] <host> [port] [command ...]",
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &qerr.ConfigError{Field: "port", Value: c.Port, Message: "must be between 1 and 65535"}
	}
	for _, d := range []struct {
		field string
		v     time.Duration
	}{
		{"timeout", c.ReadTimeout},
		{"banner-timeout", c.BannerTimeout},
		{"dial-timeout", c.DialTimeout},
		{"poll-interval", c.PollInterval},
	} {
		if d.v <= 0 {
			return &qerr.ConfigError{Field: d.field, Value: d.v, Message: "must be positive"}
		}
	}

	if c.ServerID != 0 && c.ServerPort != 0 {
		return &qerr.ConfigError{
			Field:   "sid",
			Value:   c.ServerID,
			Message: "--sid and --server-port are mutually exclusive",
		}
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return &qerr.ConfigError{Field: "server-port", Value: c.ServerPort, Message: "must be between 1 and 65535"}
	}
	if (c.Password != "" || c.PasswordPrompt) && c.User == "" {
		return &qerr.ConfigError{
			Field:   "user",
			Message: "a password was given without a login name",
			Hint:    "add --user serveradmin",
		}
	}
	if c.Nickname != "" && len([]rune(c.Nickname)) < 3 {
		return &qerr.ConfigError{Field: "nickname", Value: c.Nickname, Message: "must be at least 3 characters"}
	}

	if c.Watch {
		if len(c.Commands) > 0 {
			return &qerr.ConfigError{
				Field:   "watch",
				Message: "watch mode does not take commands",
				Hint:    "run the commands separately, or drop --watch",
			}
		}
		if len(c.Events) == 0 {
			return &qerr.ConfigError{
				Field:   "event",
				Message: "watch mode needs at least one event category",
				Hint:    "--event " + strings.Join(KnownEvents, ","),
			}
		}
	}
	for _, ev := range c.Events {
		if !knownEvent(ev) {
			return &qerr.ConfigError{
				Field:   "event",
				Value:   ev,
				Message: "unknown event category",
				Hint:    "one of " + strings.Join(KnownEvents, ", "),
			}
		}
	}
	if c.Reconnect && !c.Watch {
		return &qerr.ConfigError{Field: "reconnect", Message: "only applies to --watch"}
	}

	switch c.Output {
	case OutputAuto, OutputTable, OutputRaw, OutputJSON:
	default:
		return &qerr.ConfigError{Field: "output", Value: c.Output, Message: "unknown format", Hint: "table, raw or json"}
	}

	if c.TunnelEnabled && c.TunnelHost == "" {
		return &qerr.ConfigError{Field: "tunnel", Message: "tunnel host is required"}
	}
	if !c.TunnelEnabled && (c.SSHKeyPath != "" || c.SSHPassword || c.UseSSHAgent) {
		return &qerr.ConfigError{
			Field:   "tunnel",
			Message: "SSH options given without a tunnel",
			Hint:    "add --tunnel user@gateway",
		}
	}
	return nil
}

func knownEvent(ev string) bool {
	for _, k := range KnownEvents {
		if ev == k {
			return true
		}
	}
	return false
}
