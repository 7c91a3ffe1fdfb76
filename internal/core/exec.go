package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"ts3query/serverquery"
	"ts3query/util"
)

// ExecMode connects, runs a fixed list of commands and renders each
// result.  It stops at the first failing command.
type ExecMode struct {
	Session  *serverquery.Session
	Target   Target
	Commands []string
	Render   Renderer
	Logger   *util.Logger

	// Stdout defaults to os.Stdout when nil.
	Stdout io.Writer
}

func (m *ExecMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run executes the commands in order.  The session is closed when Run
// returns.
func (m *ExecMode) Run(ctx context.Context) error {
	if err := prepare(ctx, m.Session, m.Target, m.Logger); err != nil {
		return err
	}
	defer func() {
		if cerr := m.Session.Close(); cerr != nil {
			m.Logger.Debug("close: %v", cerr)
		}
	}()

	for _, line := range m.Commands {
		m.Logger.Debug("exec: %s", line)
		resp, err := runLine(ctx, m.Session, line)
		if err != nil {
			var pe *serverquery.ProtocolError
			if errors.As(err, &pe) {
				return fmt.Errorf("%q failed: %w", line, err)
			}
			return err
		}
		if err := m.Render.Result(m.stdout(), line, resp); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}
