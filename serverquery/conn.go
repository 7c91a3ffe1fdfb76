package serverquery

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

var (
	errReadTimeout   = errors.New("read timeout")
	errReaderStopped = errors.New("reader stopped")
)

// lineReader is the only goroutine that reads from a connection.  It
// frames the stream into lines and hands them over a bounded channel;
// consumers apply their own timeouts, so the transport never needs to
// support read deadlines.
type lineReader struct {
	lines chan string
	done  chan struct{} // closed when the goroutine exits
	stop  chan struct{}
	err   error // valid once done is closed

	stopOnce sync.Once
}

func newLineReader(r io.Reader, buffer int) *lineReader {
	lr := &lineReader{
		lines: make(chan string, buffer),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
	}
	go lr.run(bufio.NewReader(r))
	return lr
}

func (lr *lineReader) run(br *bufio.Reader) {
	defer close(lr.done)
	for {
		raw, err := br.ReadString('\n')
		// Servers terminate lines with "\n\r", so the \r of the previous
		// line shows up at the start of the next one.
		line := strings.TrimRight(strings.TrimLeft(raw, "\r"), "\r\n")
		if line != "" {
			select {
			case lr.lines <- line:
			case <-lr.stop:
				lr.err = errReaderStopped
				return
			}
		}
		if err != nil {
			lr.err = err
			return
		}
	}
}

// next waits up to timeout for a line.  Lines already buffered are
// returned even after the connection has failed.
func (lr *lineReader) next(ctx context.Context, timeout time.Duration) (string, error) {
	select {
	case line := <-lr.lines:
		return line, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line := <-lr.lines:
		return line, nil
	case <-lr.done:
		select {
		case line := <-lr.lines:
			return line, nil
		default:
			return "", lr.err
		}
	case <-timer.C:
		return "", errReadTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// poll returns a buffered line without waiting.  ok is false when
// nothing is buffered; err is set once the connection is gone and the
// buffer is empty.
func (lr *lineReader) poll() (line string, ok bool, err error) {
	select {
	case line := <-lr.lines:
		return line, true, nil
	default:
	}
	select {
	case <-lr.done:
		select {
		case line := <-lr.lines:
			return line, true, nil
		default:
			return "", false, lr.err
		}
	default:
		return "", false, nil
	}
}

// alive reports whether the reader goroutine is still running.
func (lr *lineReader) alive() bool {
	select {
	case <-lr.done:
		return false
	default:
		return true
	}
}

// halt asks the goroutine to exit.  It returns immediately; the
// goroutine leaves once its pending socket read fails, which closing
// the connection guarantees.
func (lr *lineReader) halt() {
	lr.stopOnce.Do(func() { close(lr.stop) })
}

// isClosedConn reports errors that just mean we closed the socket
// ourselves.
func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, errReaderStopped)
}
