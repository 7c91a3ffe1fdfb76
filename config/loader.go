package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Config file  (file.go)
//   4. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the TS3QUERY_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  Call it before flag parsing so
// that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("TS3QUERY_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("TS3QUERY_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := envDuration("TS3QUERY_TIMEOUT"); v > 0 {
		cfg.ReadTimeout = v
	}
	if v := envDuration("TS3QUERY_DIAL_TIMEOUT"); v > 0 {
		cfg.DialTimeout = v
	}

	// Login
	if v := os.Getenv("TS3QUERY_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("TS3QUERY_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := envInt("TS3QUERY_SID"); v > 0 {
		cfg.ServerID = v
	}
	if v := os.Getenv("TS3QUERY_NICKNAME"); v != "" {
		cfg.Nickname = v
	}

	// SSH tunnel
	if v := os.Getenv("TS3QUERY_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("TS3QUERY_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("TS3QUERY_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("TS3QUERY_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("TS3QUERY_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("TS3QUERY_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Watch
	if v := os.Getenv("TS3QUERY_EVENTS"); v != "" {
		cfg.Events = splitList(v)
	}
	if envBool("TS3QUERY_RECONNECT") {
		cfg.Reconnect = true
	}

	// Output
	if v := os.Getenv("TS3QUERY_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := envInt("TS3QUERY_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

// envDuration accepts Go durations ("1500ms") or plain seconds ("10").
func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
