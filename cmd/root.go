// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"ts3query/config"
	"ts3query/internal/core"
	"ts3query/internal/metrics"
	"ts3query/tunnel"
	"ts3query/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X ts3query/cmd.version=1.1.0"
var version = "1.0.0" //nolint:gochecknoglobals

// passwordPrompt reads the query password for --password-prompt.
var passwordPrompt tunnel.Prompter = tunnel.TerminalPrompt //nolint:gochecknoglobals

// Execute parses args and runs the selected mode against the process
// streams.
func Execute(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	// Settings are layered: defaults, config file, environment, flags.
	// Flags are registered with the merged values as their defaults, so
	// only flags that were actually given override them.
	cfg := config.Default()
	cfg.ConfigPath = preScanConfigPath(args)
	if _, err := config.LoadFile(cfg, cfg.ConfigPath); err != nil {
		return err
	}
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("ts3query", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)

	// ── connection ───────────────────────────────────────────────
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "ServerQuery port")
	fs.StringVarP(&cfg.LocalAddr, "source", "s", cfg.LocalAddr, "Local source address")
	fs.DurationVarP(&cfg.ReadTimeout, "timeout", "w", cfg.ReadTimeout, "Per-line response timeout")
	fs.DurationVar(&cfg.BannerTimeout, "banner-timeout", cfg.BannerTimeout, "Wait for each welcome banner line")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Connect timeout")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Idle notification poll interval")

	// ── login ────────────────────────────────────────────────────
	fs.StringVarP(&cfg.User, "user", "u", cfg.User, "Query login name")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "Query login password")
	fs.BoolVarP(&cfg.PasswordPrompt, "password-prompt", "P", cfg.PasswordPrompt, "Prompt for the query password")
	fs.IntVar(&cfg.ServerID, "sid", cfg.ServerID, "Select virtual server by id")
	fs.IntVar(&cfg.ServerPort, "server-port", cfg.ServerPort, "Select virtual server by voice port")
	fs.StringVarP(&cfg.Nickname, "nickname", "N", cfg.Nickname, "Display name of the query client")

	// ── mode ─────────────────────────────────────────────────────
	var commands []string
	fs.StringArrayVarP(&commands, "command", "c", nil, "Command to run (repeatable)")
	fs.BoolVar(&cfg.Watch, "watch", cfg.Watch, "Print notifications until interrupted")
	fs.StringSliceVarP(&cfg.Events, "event", "E", cfg.Events, "Event categories to watch: "+strings.Join(config.KnownEvents, ","))
	fs.IntVar(&cfg.EventChannel, "event-channel", cfg.EventChannel, "Channel id for channel events (0 = all)")
	fs.BoolVar(&cfg.Reconnect, "reconnect", cfg.Reconnect, "Reconnect with backoff when the connection drops")
	fs.IntVar(&cfg.MaxReconnects, "max-reconnects", cfg.MaxReconnects, "Reconnect attempts before giving up (0 = unlimited)")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "SSH tunnel via [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	fs.DurationVar(&cfg.KeepAlive, "keepalive", cfg.KeepAlive, "Keepalive interval for the connection or SSH gateway (0 = off)")

	// ── output ───────────────────────────────────────────────────
	fs.StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: table, raw or json (default: table on a terminal)")
	var verbosity int
	var quiet bool
	fs.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "Only print errors")

	var configPath string
	fs.StringVar(&configPath, "config", cfg.ConfigPath, "Config file (default: "+config.DefaultPath()+")")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")

	fs.Usage = func() { printUsage(stderr, fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch {
	case quiet:
		cfg.Verbose = 0
	case verbosity > 0:
		cfg.Verbose = int(util.LogNormal) + verbosity
	}

	if showHelp || len(args) == 0 {
		printUsage(stderr, fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "ts3query %s\n", version)
		return nil
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}
	cfg.Commands = append(commands, cfg.Commands...)

	if err := cfg.ApplyTunnelSpec(); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if dryRun {
		printConfig(stdout, cfg)
		return nil
	}

	if cfg.PasswordPrompt && cfg.Password == "" {
		pass, err := passwordPrompt(fmt.Sprintf("Password for %s: ", cfg.User))
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		cfg.Password = string(pass)
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	logger.SetOutput(stderr)
	stats := metrics.New()

	mode, err := core.Build(cfg, logger, stats, stdout)
	if err != nil {
		return err
	}
	err = mode.Run(ctx)
	logger.Debug("stats: %s", stats.JSON())
	return err
}

// ── helpers ──────────────────────────────────────────────────────────

// preScanConfigPath finds --config before the full flag set exists so
// the file can seed the flag defaults.
func preScanConfigPath(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// parsePositional reads <host> [port] [command ...].  host may carry
// its own port as host:port.  A bare number after the host is the
// port; anything else starts the command list.
func parsePositional(cfg *config.Config, remaining []string) error {
	if len(remaining) == 0 {
		return nil // Validate reports a missing host
	}

	host, port, err := util.SplitAddr(remaining[0], cfg.Port)
	if err != nil {
		return fmt.Errorf("address: %w", err)
	}
	cfg.Host = host
	cfg.Port = port
	remaining = remaining[1:]

	if len(remaining) > 0 {
		if p, err := strconv.Atoi(remaining[0]); err == nil {
			cfg.Port = p
			remaining = remaining[1:]
		}
	}
	cfg.Commands = remaining
	return nil
}

func printConfig(w io.Writer, cfg *config.Config) {
	mode := "shell"
	switch {
	case cfg.Watch:
		mode = "watch " + strings.Join(cfg.Events, ",")
	case len(cfg.Commands) > 0:
		mode = fmt.Sprintf("exec (%d commands)", len(cfg.Commands))
	}
	fmt.Fprintf(w, "server:  %s\n", util.FormatAddr(cfg.Host, cfg.Port))
	fmt.Fprintf(w, "mode:    %s\n", mode)
	if cfg.User != "" {
		fmt.Fprintf(w, "login:   %s\n", cfg.User)
	}
	if cfg.TunnelEnabled {
		fmt.Fprintf(w, "tunnel:  %s@%s\n", cfg.TunnelUser, util.FormatAddr(cfg.TunnelHost, cfg.TunnelPort))
	}
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, `ts3query – TeamSpeak 3 ServerQuery client v%s

Usage:
  ts3query [options] <host> [port]                    Interactive (commands on stdin)
  ts3query [options] <host> [port] <command> ...      Run commands
  ts3query --watch -E server,textprivate <host>       Print notifications
  ts3query -T user@gateway <host> ...                 Through an SSH gateway

Options:
`, version)
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintf(w, `
Examples:
  ts3query -u serveradmin -P --sid 1 ts.example.net clientlist
  ts3query ts.example.net 10011 version "channellist -topic"
  echo "serverinfo" | ts3query -o json -u serveradmin -P ts.example.net
  ts3query --watch -E textprivate --reconnect -u bot -P ts.example.net
`)
}
