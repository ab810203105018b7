// Package ingest reads the bridge's line-oriented JSON stream from a serial
// port (or a replayed capture) and hands decoded messages to the router.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
	"github.com/davideleoni90/TinysOSClassMonitoring/model"
)

const (
	ResultDecoded      = "decoded"
	ResultInvalid      = "invalid"
	ResultSubmitFailed = "submit_failed"
)

// maxLineSize bounds a single bridge line.
const maxLineSize = 64 * 1024

// Submitter accepts decoded messages. *router.Router satisfies it.
type Submitter interface {
	Submit(ctx context.Context, msg model.Message) error
}

// MetricsRecorder counts lines by outcome.
type MetricsRecorder interface {
	ObserveLine(result string)
}

// Option customises a Reader.
type Option func(*Reader)

// WithMetricsRecorder attaches a line counter.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(r *Reader) {
		r.metrics = m
	}
}

// Reader pumps lines from port into a Submitter.
type Reader struct {
	port    io.ReadCloser
	sink    Submitter
	log     logging.Logger
	metrics MetricsRecorder
}

// NewReader constructs a reader over port. The reader owns port and closes
// it when Run returns.
func NewReader(port io.ReadCloser, sink Submitter, log logging.Logger, opts ...Option) *Reader {
	if log == nil {
		log = logging.Noop()
	}
	r := &Reader{port: port, sink: sink, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads until ctx is done or the port reaches EOF. A clean EOF returns
// nil; cancellation returns ctx.Err().
func (r *Reader) Run(ctx context.Context) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.port)
		scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()
	// Closing the port unblocks the scanner goroutine.
	defer r.port.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil && !errors.Is(err, io.ErrClosedPipe) {
						return fmt.Errorf("scan serial input: %w", err)
					}
				default:
				}
				return nil
			}
			r.handleLine(ctx, line)
		}
	}
}

func (r *Reader) handleLine(ctx context.Context, line []byte) {
	msg, err := Decode(line)
	if err != nil {
		// Bridge chatter is expected; a broken JSON message is not.
		logFn := r.log.Debug
		event := "dropping bridge line"
		if errors.Is(err, ErrMissingOrigin) || bytes.HasPrefix(bytes.TrimSpace(line), []byte("{")) {
			logFn = r.log.Warn
			event = "dropping malformed message"
		}
		logFn(ctx, event,
			logging.Err(err),
			logging.String("line", string(line)),
		)
		r.observe(ResultInvalid)
		return
	}
	if err := r.sink.Submit(ctx, msg); err != nil {
		r.log.Warn(ctx, "message submit failed",
			logging.Int("origin", msg.Origin),
			logging.Err(err),
		)
		r.observe(ResultSubmitFailed)
		return
	}
	r.observe(ResultDecoded)
}

func (r *Reader) observe(result string) {
	if r.metrics != nil {
		r.metrics.ObserveLine(result)
	}
}
