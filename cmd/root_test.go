package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"ts3query/config"
	qerr "ts3query/internal/errors"
)

// isolate keeps the user's config file and TS3QUERY_* variables out of
// a test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, kv := range os.Environ() {
		if k, _, _ := strings.Cut(kv, "="); strings.HasPrefix(k, "TS3QUERY_") {
			t.Setenv(k, "")
		}
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := run(ctx, args, &out, &errOut)
	return out.String(), errOut.String(), err
}

// TestExecute_Version verifies --version prints a version string.
func TestExecute_Version(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, "--version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "ts3query ") {
		t.Errorf("output = %q", out)
	}
}

// TestExecute_Help verifies --help (and no args) returns without error.
func TestExecute_Help(t *testing.T) {
	isolate(t)
	for _, args := range [][]string{{"--help"}, {}} {
		name := "no-args"
		if len(args) > 0 {
			name = args[0]
		}
		t.Run(name, func(t *testing.T) {
			_, errOut, err := execute(t, args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(errOut, "Usage:") || !strings.Contains(errOut, "--watch") {
				t.Errorf("usage = %q", errOut)
			}
		})
	}
}

// TestExecute_DryRun verifies --dry-run validates and exits cleanly.
func TestExecute_DryRun(t *testing.T) {
	isolate(t)
	out, _, err := execute(t, "--dry-run", "-u", "serveradmin", "--password", "x", "ts.example.net", "10022", "version", "clientlist -uid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"ts.example.net:10022", "exec (2 commands)", "serveradmin"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// TestExecute_DryRunInvalid verifies --dry-run still catches bad configs.
func TestExecute_DryRunInvalid(t *testing.T) {
	isolate(t)
	tests := []struct {
		name  string
		args  []string
		field string
	}{
		{"no host", []string{"--dry-run", "-u", "x"}, "host"},
		{"watch without events", []string{"--dry-run", "--watch", "ts.example.net"}, "event"},
		{"unknown event", []string{"--dry-run", "--watch", "-E", "voice", "ts.example.net"}, "event"},
		{"sid and port", []string{"--dry-run", "--sid", "1", "--server-port", "9987", "ts.example.net"}, "sid"},
		{"bad tunnel", []string{"--dry-run", "-T", "a@b:x", "ts.example.net"}, "tunnel"},
		{"ssh key no tunnel", []string{"--dry-run", "--ssh-key", "id", "ts.example.net"}, "tunnel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			var ce *qerr.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

// TestExecute_InvalidFlags verifies unknown flags produce an error.
func TestExecute_InvalidFlags(t *testing.T) {
	isolate(t)
	if _, _, err := execute(t, "--nonexistent-flag"); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestExecute_Precedence(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "ts3query.toml")
	body := "[server]\nhost = \"file.example.net\"\nport = 10001\n\n[login]\nuser = \"fileuser\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	// file only
	out, _, err := execute(t, "--config", path, "--dry-run")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "file.example.net:10001") || !strings.Contains(out, "fileuser") {
		t.Errorf("file values not applied:\n%s", out)
	}

	// env beats file
	t.Setenv("TS3QUERY_PORT", "10002")
	out, _, err = execute(t, "--config="+path, "--dry-run")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "file.example.net:10002") {
		t.Errorf("env did not override file:\n%s", out)
	}

	// flags beat env
	out, _, err = execute(t, "--config", path, "--dry-run", "-p", "10003", "-u", "flaguser")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "file.example.net:10003") || !strings.Contains(out, "flaguser") {
		t.Errorf("flags did not override env:\n%s", out)
	}
}

func TestExecute_MissingConfigFile(t *testing.T) {
	isolate(t)
	if _, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.toml"), "host"); err == nil {
		t.Fatal("expected error for missing --config file")
	}
}

func TestPreScanConfigPath(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"host"}, ""},
		{[]string{"--config", "a.toml", "host"}, "a.toml"},
		{[]string{"-v", "--config=b.toml"}, "b.toml"},
		{[]string{"--config"}, ""},
		{[]string{"--", "--config", "c.toml"}, ""},
	}
	for _, tt := range tests {
		if got := preScanConfigPath(tt.args); got != tt.want {
			t.Errorf("preScanConfigPath(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestParsePositional(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantHost string
		wantPort int
		wantCmds []string
		wantErr  bool
	}{
		{"host only", []string{"ts.example.net"}, "ts.example.net", 10011, nil, false},
		{"host port", []string{"ts.example.net", "10022"}, "ts.example.net", 10022, nil, false},
		{"host:port", []string{"ts.example.net:10033", "version"}, "ts.example.net", 10033, []string{"version"}, false},
		{"commands", []string{"10.0.0.1", "version", "whoami"}, "10.0.0.1", 10011, []string{"version", "whoami"}, false},
		{"ipv6", []string{"[::1]:10044"}, "::1", 10044, nil, false},
		{"bad port", []string{"host:99999"}, "", 0, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			err := parsePositional(cfg, tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Host != tt.wantHost || cfg.Port != tt.wantPort {
				t.Errorf("addr = %s:%d", cfg.Host, cfg.Port)
			}
			if strings.Join(cfg.Commands, ";") != strings.Join(tt.wantCmds, ";") {
				t.Errorf("commands = %q", cfg.Commands)
			}
		})
	}
}

// serveQuery answers every command with ok, and version with a body.
func serveQuery(t *testing.T) (port int, received func() []string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	lines := make(chan string, 64)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("TS3\n\rWelcome\n\r")) //nolint:errcheck
		br := bufio.NewReader(conn)
		for {
			raw, err := br.ReadString('\n')
			if err != nil {
				return
			}
			line := strings.TrimRight(raw, "\r\n")
			lines <- line
			switch {
			case line == "quit":
				return
			case line == "version":
				conn.Write([]byte("version=3.13.7 build=1 platform=Linux\n\r")) //nolint:errcheck
			case line == "whoami":
				conn.Write([]byte("virtualserver_id=1 client_id=3 client_channel_id=1\n\r")) //nolint:errcheck
			}
			conn.Write([]byte("error id=0 msg=ok\n\r")) //nolint:errcheck
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port, func() []string {
		var out []string
		for {
			select {
			case l := <-lines:
				out = append(out, l)
			default:
				return out
			}
		}
	}
}

func TestExecute_RunsCommands(t *testing.T) {
	isolate(t)
	port, received := serveQuery(t)

	out, _, err := execute(t, "-o", "raw", "--banner-timeout", "50ms", "-u", "serveradmin", "--password", "pw",
		"127.0.0.1", strconv.Itoa(port), "version")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "version=3.13.7") {
		t.Errorf("output = %q", out)
	}

	got := strings.Join(received(), ";")
	for _, want := range []string{"login serveradmin pw", "version"} {
		if !strings.Contains(got, want) {
			t.Errorf("server did not receive %q: %s", want, got)
		}
	}
}

func TestExecute_PasswordPrompt(t *testing.T) {
	isolate(t)
	port, received := serveQuery(t)

	prev := passwordPrompt
	defer func() { passwordPrompt = prev }()
	var asked string
	passwordPrompt = func(prompt string) ([]byte, error) {
		asked = prompt
		return []byte("typed"), nil
	}

	if _, _, err := execute(t, "--banner-timeout", "50ms", "-u", "admin", "-P", "127.0.0.1:"+strconv.Itoa(port), "version"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(asked, "admin") {
		t.Errorf("prompt = %q", asked)
	}
	if got := strings.Join(received(), ";"); !strings.Contains(got, "login admin typed") {
		t.Errorf("commands = %s", got)
	}
}
