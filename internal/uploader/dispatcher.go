package uploader

import (
	"context"
	"errors"
	"time"

	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
	"github.com/davideleoni90/TinysOSClassMonitoring/model"
)

const (
	DefaultQueueSize = 64
	DefaultMaxTries  = 3

	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

// ErrQueueFull is returned by Enqueue when the upload backlog is full.
var ErrQueueFull = errors.New("upload queue full")

// Uploader sends a single reading. *Client satisfies it.
type Uploader interface {
	Upload(ctx context.Context, r model.Reading) error
}

// MetricsRecorder observes upload outcomes and backlog.
type MetricsRecorder interface {
	ObserveUpload(result string)
	SetUploadQueueDepth(n int)
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize bounds the backlog of pending uploads.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithMaxTries sets how many times one reading is attempted.
func WithMaxTries(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxTries = n
		}
	}
}

// WithBackoff sets the pause between attempts.
func WithBackoff(b time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.backoff = b
	}
}

// WithMetricsRecorder attaches upload metrics.
func WithMetricsRecorder(m MetricsRecorder) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// Dispatcher decouples uploads from message handling: Accept enqueues
// without blocking and a single worker drains the queue.
type Dispatcher struct {
	up      Uploader
	log     logging.Logger
	metrics MetricsRecorder

	queueSize int
	maxTries  int
	backoff   time.Duration
	queue     chan model.Reading
}

// NewDispatcher constructs a dispatcher sending through up.
func NewDispatcher(up Uploader, log logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if log == nil {
		log = logging.Noop()
	}
	d := &Dispatcher{
		up:        up,
		log:       log,
		queueSize: DefaultQueueSize,
		maxTries:  DefaultMaxTries,
		backoff:   200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = make(chan model.Reading, d.queueSize)
	return d
}

// Enqueue schedules r for upload, returning ErrQueueFull instead of
// blocking.
func (d *Dispatcher) Enqueue(r model.Reading) error {
	select {
	case d.queue <- r:
		d.depth()
		return nil
	default:
		d.observe(ResultDropped)
		return ErrQueueFull
	}
}

// Accept implements router.ReadingSink. Dropped readings are logged.
func (d *Dispatcher) Accept(ctx context.Context, r model.Reading) {
	if err := d.Enqueue(r); err != nil {
		d.log.Warn(ctx, "reading upload dropped",
			logging.Int("mote_id", r.MoteID),
			logging.Err(err),
		)
	}
}

// Pending reports how many readings wait in the queue.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Run drains the queue until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-d.queue:
			d.depth()
			d.send(ctx, r)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, r model.Reading) {
	attempt := 0
	err := retryWithContext(ctx, d.maxTries, func(ctx context.Context) error {
		if attempt > 0 && d.backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.backoff):
			}
		}
		attempt++
		return d.up.Upload(ctx, r)
	})
	if err != nil {
		d.log.Warn(ctx, "reading upload failed",
			logging.Int("mote_id", r.MoteID),
			logging.Int("attempts", attempt),
			logging.Err(err),
		)
		d.observe(ResultFailed)
		return
	}
	d.log.Debug(ctx, "reading uploaded", logging.Int("mote_id", r.MoteID))
	d.observe(ResultOK)
}

func (d *Dispatcher) observe(result string) {
	if d.metrics != nil {
		d.metrics.ObserveUpload(result)
	}
}

func (d *Dispatcher) depth() {
	if d.metrics != nil {
		d.metrics.SetUploadQueueDepth(len(d.queue))
	}
}

// retryWithContext calls fn up to maxTries times until it succeeds or ctx
// is done. Context errors from fn end the loop immediately.
func retryWithContext(ctx context.Context, maxTries int, fn func(context.Context) error) error {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
