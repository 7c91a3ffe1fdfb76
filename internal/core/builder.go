package core

import (
	"context"
	"io"
	"os"

	"ts3query/config"
	"ts3query/internal/metrics"
	"ts3query/internal/retry"
	"ts3query/internal/transport"
	"ts3query/serverquery"
	"ts3query/tunnel"
	"ts3query/util"
)

// Build constructs the Mode selected by cfg.  stats receives the
// session's counters; out is where results are rendered.
func Build(cfg *config.Config, logger *util.Logger, stats *metrics.Collector, out io.Writer) (Mode, error) {
	render, err := NewRenderer(cfg.Output, out)
	if err != nil {
		return nil, err
	}

	dialer := buildDialer(cfg, logger, stats)
	sess := serverquery.New(serverquery.Options{
		ReadTimeout:   cfg.ReadTimeout,
		BannerTimeout: cfg.BannerTimeout,
		DialTimeout:   cfg.DialTimeout,
		PollInterval:  cfg.PollInterval,
		Dialer:        dialer,
		Logger:        logger,
		Metrics:       stats,
	})
	target := Target{
		Host:       cfg.Host,
		Port:       cfg.Port,
		User:       cfg.User,
		Password:   cfg.Password,
		ServerID:   cfg.ServerID,
		ServerPort: cfg.ServerPort,
		Nickname:   cfg.Nickname,
	}

	var mode Mode
	switch {
	case cfg.Watch:
		mode = &WatchMode{
			Session:   sess,
			Target:    target,
			Events:    cfg.Events,
			Channel:   cfg.EventChannel,
			Render:    render,
			Logger:    logger,
			Metrics:   stats,
			Reconnect: cfg.Reconnect,
			Backoff:   buildBackoff(cfg),
			Stdout:    out,
		}
	case len(cfg.Commands) > 0:
		mode = &ExecMode{
			Session:  sess,
			Target:   target,
			Commands: cfg.Commands,
			Render:   render,
			Logger:   logger,
			Stdout:   out,
		}
	default:
		mode = &ShellMode{
			Session: sess,
			Target:  target,
			Render:  render,
			Logger:  logger,
			Stdout:  out,
		}
	}
	return &closingMode{Mode: mode, dialer: dialer}, nil
}

// closingMode releases the dialer (and with it any SSH client) after
// the wrapped mode returns.
type closingMode struct {
	Mode
	dialer transport.Dialer
}

func (m *closingMode) Run(ctx context.Context) error {
	defer m.dialer.Close()
	return m.Mode.Run(ctx)
}

// buildDialer creates the transport.Dialer for cfg, metered into stats.
func buildDialer(cfg *config.Config, logger *util.Logger, stats *metrics.Collector) transport.Dialer {
	var d transport.Dialer
	if cfg.TunnelEnabled {
		user := cfg.TunnelUser
		if user == "" {
			user = os.Getenv("USER")
		}
		d = transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          user,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.DialTimeout,
			KeepAlive:     cfg.KeepAlive,
		}, logger)
	} else {
		d = &transport.TCPDialer{
			Timeout:   cfg.DialTimeout,
			LocalAddr: cfg.LocalAddr,
			KeepAlive: cfg.KeepAlive,
		}
	}
	return &transport.MeteredDialer{Dialer: d, Metrics: stats}
}

func buildBackoff(cfg *config.Config) *retry.Backoff {
	b := retry.DefaultBackoff()
	b.MaxAttempts = cfg.MaxReconnects
	b.MaxDelay = config.DefaultMaxReconnectBackoff
	return b
}
