package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors the TOML layout:
//
//	[server]
//	host = "ts.example.net"
//	port = 10011
//	timeout = "10s"
//
//	[login]
//	user = "serveradmin"
//	sid = 1
//
//	[watch]
//	events = ["server", "textprivate"]
//	reconnect = true
//
//	[tunnel]
//	spec = "ops@bastion:2222"
type fileConfig struct {
	Server struct {
		Host          string `toml:"host"`
		Port          int    `toml:"port"`
		LocalAddr     string `toml:"local_addr"`
		Timeout       string `toml:"timeout"`
		BannerTimeout string `toml:"banner_timeout"`
		DialTimeout   string `toml:"dial_timeout"`
		PollInterval  string `toml:"poll_interval"`
	} `toml:"server"`

	Login struct {
		User       string `toml:"user"`
		Password   string `toml:"password"`
		ServerID   int    `toml:"sid"`
		ServerPort int    `toml:"server_port"`
		Nickname   string `toml:"nickname"`
	} `toml:"login"`

	Watch struct {
		Events        []string `toml:"events"`
		Channel       int      `toml:"channel"`
		Reconnect     bool     `toml:"reconnect"`
		MaxReconnects *int     `toml:"max_reconnects"`
	} `toml:"watch"`

	Tunnel struct {
		Spec          string `toml:"spec"`
		Key           string `toml:"key"`
		Agent         bool   `toml:"agent"`
		StrictHostKey bool   `toml:"strict_hostkey"`
		KnownHosts    string `toml:"known_hosts"`
		KeepAlive     string `toml:"keepalive"`
	} `toml:"tunnel"`

	Output struct {
		Format  string `toml:"format"`
		Verbose int    `toml:"verbose"`
	} `toml:"output"`
}

// DefaultPath returns $XDG_CONFIG_HOME/ts3query/config.toml, falling
// back to ~/.config.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "ts3query", "config.toml")
}

// LoadFile overlays the TOML file at path onto cfg.  An empty path
// means [DefaultPath], which may be absent; an explicit path must
// exist.  It reports whether a file was read.
func LoadFile(cfg *Config, path string) (bool, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
		if path == "" {
			return false, nil
		}
	}
	path = expandHome(path)

	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var fc fileConfig
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return false, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := fc.apply(cfg); err != nil {
		return false, fmt.Errorf("config %s: %w", path, err)
	}
	return true, nil
}

func (fc *fileConfig) apply(cfg *Config) error {
	setString(&cfg.Host, fc.Server.Host)
	setInt(&cfg.Port, fc.Server.Port)
	setString(&cfg.LocalAddr, fc.Server.LocalAddr)
	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"server.timeout", fc.Server.Timeout, &cfg.ReadTimeout},
		{"server.banner_timeout", fc.Server.BannerTimeout, &cfg.BannerTimeout},
		{"server.dial_timeout", fc.Server.DialTimeout, &cfg.DialTimeout},
		{"server.poll_interval", fc.Server.PollInterval, &cfg.PollInterval},
		{"tunnel.keepalive", fc.Tunnel.KeepAlive, &cfg.KeepAlive},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}

	setString(&cfg.User, fc.Login.User)
	setString(&cfg.Password, fc.Login.Password)
	setInt(&cfg.ServerID, fc.Login.ServerID)
	setInt(&cfg.ServerPort, fc.Login.ServerPort)
	setString(&cfg.Nickname, fc.Login.Nickname)

	if len(fc.Watch.Events) > 0 {
		cfg.Events = fc.Watch.Events
	}
	setInt(&cfg.EventChannel, fc.Watch.Channel)
	cfg.Reconnect = cfg.Reconnect || fc.Watch.Reconnect
	if fc.Watch.MaxReconnects != nil {
		cfg.MaxReconnects = *fc.Watch.MaxReconnects
	}

	setString(&cfg.TunnelSpec, fc.Tunnel.Spec)
	setString(&cfg.SSHKeyPath, expandHome(fc.Tunnel.Key))
	cfg.UseSSHAgent = cfg.UseSSHAgent || fc.Tunnel.Agent
	cfg.StrictHostKey = cfg.StrictHostKey || fc.Tunnel.StrictHostKey
	setString(&cfg.KnownHostsPath, expandHome(fc.Tunnel.KnownHosts))

	setString(&cfg.Output, fc.Output.Format)
	setInt(&cfg.Verbose, fc.Output.Verbose)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}
