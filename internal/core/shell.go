package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	qerr "ts3query/internal/errors"
	"ts3query/serverquery"
	"ts3query/util"
)

// ShellMode reads commands from stdin one line at a time.  Server-side
// errors are printed and the loop continues; a lost connection ends it.
// Events registered with servernotifyregister are printed as they
// arrive.
type ShellMode struct {
	Session *serverquery.Session
	Target  Target
	Render  Renderer
	Logger  *util.Logger

	// Stdin/Stdout/Stderr default to the process streams when nil.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	outMu sync.Mutex
}

// HandleNotification prints n between command results.
func (m *ShellMode) HandleNotification(n serverquery.Notification) {
	m.outMu.Lock()
	defer m.outMu.Unlock()
	if err := m.Render.Event(m.stdout(), n); err != nil {
		m.Logger.Warn("write event: %v", err)
	}
}

func (m *ShellMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ShellMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

func (m *ShellMode) stderr() io.Writer {
	if m.Stderr != nil {
		return m.Stderr
	}
	return os.Stderr
}

// Run processes stdin until EOF, "quit", or a fatal session error.
func (m *ShellMode) Run(ctx context.Context) error {
	m.Session.SetNotificationHandler(m)
	if err := prepare(ctx, m.Session, m.Target, m.Logger); err != nil {
		return err
	}
	defer func() {
		if cerr := m.Session.Close(); cerr != nil {
			m.Logger.Debug("close: %v", cerr)
		}
	}()

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(m.stdin())
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				readErr <- ctx.Err()
				return
			case <-done:
				return
			}
		}
		readErr <- sc.Err()
	}()

	var failed int
	for {
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				if failed > 0 {
					return fmt.Errorf("%d command(s) failed", failed)
				}
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}

		resp, err := runLine(ctx, m.Session, line)
		if err != nil {
			if qerr.IsFatal(err) || errors.Is(err, qerr.ErrNotConnected) {
				return err
			}
			failed++
			fmt.Fprintf(m.stderr(), "error: %v\n", err)
			continue
		}
		m.outMu.Lock()
		err = m.Render.Result(m.stdout(), line, resp)
		m.outMu.Unlock()
		if err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
}
