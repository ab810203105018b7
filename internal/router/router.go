// Package router turns decoded data messages into graph mutations. All
// mutations run on a single consumer goroutine fed by a queue, so the
// transport never touches the graph directly.
package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/davideleoni90/TinysOSClassMonitoring/internal/graph"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/observability"
	"github.com/davideleoni90/TinysOSClassMonitoring/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrMalformedMessage is returned for messages that cannot be applied.
// Nothing in the graph changes when it is returned.
var ErrMalformedMessage = errors.New("malformed message")

// DefaultQueueSize is the capacity of the ingest queue.
const DefaultQueueSize = 256

// Message results reported to the metrics recorder.
const (
	ResultApplied   = "applied"
	ResultMalformed = "malformed"
	ResultFailed    = "failed"
)

// ReadingSink receives the reading carried by every applied message. Sinks
// run on the consumer goroutine after the graph lock is released and must
// not block for long; they handle their own errors.
type ReadingSink interface {
	Accept(ctx context.Context, r model.Reading)
}

// Refresher is told that the graph changed and a redraw is due.
type Refresher interface {
	MarkDirty()
}

// MetricsRecorder observes message outcomes.
type MetricsRecorder interface {
	ObserveMessage(result string, elapsed time.Duration)
}

type sinkEntry struct {
	sink   ReadingSink
	accept func(model.Reading) bool
}

type envelope struct {
	ctx context.Context
	msg model.Message
}

// Option customises a Router.
type Option func(*Router)

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithReadingSink forwards every applied reading to sink.
func WithReadingSink(sink ReadingSink) Option {
	return func(r *Router) {
		r.sinks = append(r.sinks, sinkEntry{sink: sink})
	}
}

// WithUploadSink forwards readings produced by the given origin mote only.
func WithUploadSink(sink ReadingSink, origin int) Option {
	return func(r *Router) {
		r.sinks = append(r.sinks, sinkEntry{
			sink:   sink,
			accept: func(rd model.Reading) bool { return rd.MoteID == origin },
		})
	}
}

// WithRefresher attaches the redraw trigger.
func WithRefresher(f Refresher) Option {
	return func(r *Router) {
		r.refresher = f
	}
}

// WithMetricsRecorder attaches a recorder for message outcomes.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithClock overrides the time source used to stamp readings.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// Router applies messages to a GraphState.
type Router struct {
	state     *graph.GraphState
	log       logging.Logger
	queue     chan envelope
	queueSize int
	sinks     []sinkEntry
	refresher Refresher
	metrics   MetricsRecorder
	now       func() time.Time
}

// New builds a router for state.
func New(state *graph.GraphState, log logging.Logger, opts ...Option) *Router {
	if log == nil {
		log = logging.Noop()
	}
	r := &Router{
		state:     state,
		log:       log,
		queueSize: DefaultQueueSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.queue = make(chan envelope, r.queueSize)
	return r
}

// Submit enqueues msg for the consumer goroutine, blocking while the queue
// is full. A message_id is attached to ctx if absent.
func (r *Router) Submit(ctx context.Context, msg model.Message) error {
	ctx, _ = logging.EnsureMessageID(ctx)
	select {
	case r.queue <- envelope{ctx: context.WithoutCancel(ctx), msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes queued messages until ctx is cancelled. Failed messages are
// logged and skipped.
func (r *Router) Run(ctx context.Context) error {
	r.log.Info(ctx, "router started", logging.Int("queue_size", r.queueSize))
	for {
		select {
		case <-ctx.Done():
			r.log.Info(ctx, "router stopped", logging.Int("pending", len(r.queue)))
			return ctx.Err()
		case env := <-r.queue:
			_ = r.Apply(env.ctx, env.msg)
		}
	}
}

// Apply validates msg and, if well formed, applies it to the graph as one
// atomic update: the path is recorded, each hop is observed as a link and
// the reading is stored. Sinks and the refresher run afterwards.
func (r *Router) Apply(ctx context.Context, msg model.Message) (err error) {
	start := time.Now()
	ctx, log := logging.WithMessageLogger(ctx, r.log)
	ctx = logging.ContextWithLogger(ctx, log)
	ctx, span := observability.StartSpan(ctx, "router.Apply", "mote", strconv.Itoa(msg.Origin),
		attribute.Int("mviz.hopcount", msg.HopCount),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := Validate(msg); err != nil {
		log.Warn(ctx, "dropping malformed message", logging.Int("origin", msg.Origin), logging.Err(err))
		r.observe(ResultMalformed, start)
		return err
	}

	path := msg.Path[:msg.HopCount]
	hops := ExpandHops(msg, r.state.RootMote())
	reading := msg.Reading(r.now())

	err = r.state.Update(ctx, func(tx *graph.Tx) error {
		if err := pathObserved(tx, path); err != nil {
			return err
		}
		for _, h := range hops {
			linkObserved(tx, h)
		}
		tx.RecordReading(reading)
		return nil
	})
	if err != nil {
		log.Error(ctx, "applying message failed", logging.Int("origin", msg.Origin), logging.Err(err))
		r.observe(ResultFailed, start)
		return err
	}

	log.Debug(ctx, "message applied",
		logging.Int("origin", msg.Origin),
		logging.Int("hopcount", msg.HopCount),
		logging.Int("links", len(hops)),
	)
	r.observe(ResultApplied, start)
	r.refresh()
	r.forward(ctx, reading)
	return nil
}

// OnPathObserved records path (producer first, root excluded) as the
// current route of its producer.
func (r *Router) OnPathObserved(ctx context.Context, path []int) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty path", ErrMalformedMessage)
	}
	err := r.state.Update(ctx, func(tx *graph.Tx) error {
		return pathObserved(tx, path)
	})
	if err == nil {
		r.refresh()
	}
	return err
}

// OnLinkObserved records one hop: both endpoint motes exist afterwards,
// the host is placed next to the root on first contact, and the link
// source→target carries quality (mirrored onto target→source if present).
func (r *Router) OnLinkObserved(ctx context.Context, quality, source, target int, sourceIsProducer bool) error {
	err := r.state.Update(ctx, func(tx *graph.Tx) error {
		linkObserved(tx, Hop{Quality: quality, Source: source, Target: target, SourceIsProducer: sourceIsProducer})
		return nil
	})
	if err == nil {
		r.refresh()
	}
	return err
}

func pathObserved(tx *graph.Tx, path []int) error {
	tx.Mote(path[0], true)
	_, err := tx.UpsertPath(path)
	return err
}

func linkObserved(tx *graph.Tx, h Hop) {
	tx.Mote(h.Source, h.SourceIsProducer)
	target := tx.Mote(h.Target, false)
	if h.Target == tx.RootMote() && !tx.HostPlaced() {
		tx.PlaceHostNear(target.Position)
	}
	tx.Link(h.Source, h.Target)
	tx.SetLinkQuality(h.Source, h.Target, h.Quality, strconv.Itoa(h.Quality))
}

func (r *Router) refresh() {
	if r.refresher != nil {
		r.refresher.MarkDirty()
	}
}

func (r *Router) forward(ctx context.Context, reading model.Reading) {
	for _, s := range r.sinks {
		if s.accept != nil && !s.accept(reading) {
			continue
		}
		s.sink.Accept(ctx, reading)
	}
}

func (r *Router) observe(result string, start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveMessage(result, time.Since(start))
	}
}
