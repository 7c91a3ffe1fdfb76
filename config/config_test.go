package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	qerr "ts3query/internal/errors"
)

// ── ParseTunnelSpec ──────────────────────────────────────────────────

func TestParseTunnelSpec(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"full", "admin@bastion.example.com:2222", "admin", "bastion.example.com", 2222, false},
		{"no port", "root@gateway", "root", "gateway", 22, false},
		{"no user", "jump-host:2200", "", "jump-host", 2200, false},
		{"host only", "gateway.local", "", "gateway.local", 22, false},
		{"bad port", "user@host:999999", "", "", 0, true},
		{"empty", "", "", "", 0, true},
		{"colon only", ":", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, host, port, err := ParseTunnelSpec(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if user != tt.wantUser || host != tt.wantHost || port != tt.wantPort {
				t.Errorf("got (%q, %q, %d), want (%q, %q, %d)",
					user, host, port, tt.wantUser, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestApplyTunnelSpec(t *testing.T) {
	cfg := Default()
	cfg.TunnelSpec = "ops@bastion:2222"
	if err := cfg.ApplyTunnelSpec(); err != nil {
		t.Fatal(err)
	}
	if !cfg.TunnelEnabled || cfg.TunnelUser != "ops" || cfg.TunnelHost != "bastion" || cfg.TunnelPort != 2222 {
		t.Errorf("tunnel = %+v", cfg)
	}

	cfg = Default()
	cfg.TunnelSpec = "a@b:0x"
	var ce *qerr.ConfigError
	if err := cfg.ApplyTunnelSpec(); !errors.As(err, &ce) || ce.Field != "tunnel" {
		t.Errorf("err = %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Port != DefaultQueryPort || cfg.ReadTimeout != DefaultReadTimeout {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.BannerTimeout != 500*time.Millisecond || cfg.PollInterval != 200*time.Millisecond {
		t.Errorf("timing defaults = %v / %v", cfg.BannerTimeout, cfg.PollInterval)
	}
}

func TestValidate(t *testing.T) {
	valid := func(mod func(*Config)) *Config {
		c := Default()
		c.Host = "ts.example.net"
		mod(c)
		return c
	}

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string // substring; empty means valid
	}{
		{"minimal", valid(func(*Config) {}), ""},
		{"no host", valid(func(c *Config) { c.Host = "" }), "server address is required"},
		{"bad port", valid(func(c *Config) { c.Port = 70000 }), "--port=70000"},
		{"zero timeout", valid(func(c *Config) { c.ReadTimeout = 0 }), "--timeout"},
		{"sid and port", valid(func(c *Config) { c.ServerID = 1; c.ServerPort = 9987 }), "mutually exclusive"},
		{"password no user", valid(func(c *Config) { c.Password = "x" }), "hint: add --user"},
		{"short nickname", valid(func(c *Config) { c.Nickname = "ab" }), "at least 3"},
		{"watch no events", valid(func(c *Config) { c.Watch = true }), "at least one event"},
		{"watch with commands", valid(func(c *Config) {
			c.Watch = true
			c.Events = []string{"server"}
			c.Commands = []string{"whoami"}
		}), "does not take commands"},
		{"watch ok", valid(func(c *Config) { c.Watch = true; c.Events = []string{"server", "textprivate"} }), ""},
		{"unknown event", valid(func(c *Config) { c.Watch = true; c.Events = []string{"voice"} }), "unknown event"},
		{"reconnect without watch", valid(func(c *Config) { c.Reconnect = true }), "only applies to --watch"},
		{"bad output", valid(func(c *Config) { c.Output = "xml" }), "unknown format"},
		{"json output", valid(func(c *Config) { c.Output = OutputJSON }), ""},
		{"ssh key without tunnel", valid(func(c *Config) { c.SSHKeyPath = "~/.ssh/id" }), "without a tunnel"},
		{"tunnel", valid(func(c *Config) { c.TunnelEnabled = true; c.TunnelHost = "gw"; c.UseSSHAgent = true }), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ce *qerr.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *ConfigError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}
