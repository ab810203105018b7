package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// GraphCollector bundles Prometheus metrics for the graph and the message
// pipeline feeding it, plus the gRPC surface.
type GraphCollector struct {
	gatherer prometheus.Gatherer

	Motes              prometheus.Gauge
	Links              prometheus.Gauge
	Paths              prometheus.Gauge
	PlacementFallbacks *prometheus.CounterVec
	GraphEvents        *prometheus.CounterVec

	Messages      *prometheus.CounterVec
	ApplyDuration prometheus.Histogram

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
}

// NewGraphCollector registers graph metrics against reg, defaulting to the
// global Prometheus registry when nil. Registering twice against the same
// registry reuses the existing collectors.
func NewGraphCollector(reg prometheus.Registerer) (*GraphCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &GraphCollector{gatherer: gatherer}
	var err error

	if c.Motes, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mviz_motes",
		Help: "Current number of motes drawn.",
	}), "mviz_motes"); err != nil {
		return nil, err
	}
	if c.Links, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mviz_links",
		Help: "Current number of directed links observed.",
	}), "mviz_links"); err != nil {
		return nil, err
	}
	if c.Paths, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mviz_paths",
		Help: "Current number of rows in the path table.",
	}), "mviz_paths"); err != nil {
		return nil, err
	}
	if c.PlacementFallbacks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mviz_placement_fallbacks_total",
		Help: "Placements that hit the attempt cap and may overlap, labeled by kind (mote or host).",
	}, []string{"kind"}), "mviz_placement_fallbacks_total"); err != nil {
		return nil, err
	}
	if c.GraphEvents, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mviz_graph_events_total",
		Help: "Registry changes, labeled by event (mote_created, mote_moved, path_created, path_updated, path_selected).",
	}, []string{"event"}), "mviz_graph_events_total"); err != nil {
		return nil, err
	}
	if c.Messages, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mviz_messages_total",
		Help: "Data messages handled by the router, labeled by result.",
	}, []string{"result"}), "mviz_messages_total"); err != nil {
		return nil, err
	}
	if c.ApplyDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mviz_message_apply_seconds",
		Help:    "Time spent validating and applying one data message.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}), "mviz_message_apply_seconds"); err != nil {
		return nil, err
	}
	if c.RPCRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mviz_grpc_requests_total",
		Help: "Handled gRPC requests, labeled by service, method, and status code.",
	}, []string{"service", "method", "code"}), "mviz_grpc_requests_total"); err != nil {
		return nil, err
	}
	if c.RPCDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mviz_grpc_request_duration_seconds",
		Help:    "gRPC request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"service", "method"}), "mviz_grpc_request_duration_seconds"); err != nil {
		return nil, err
	}
	return c, nil
}

// SetGraphCounts satisfies graph.GraphMetricsRecorder.
func (c *GraphCollector) SetGraphCounts(motes, links, paths int) {
	if c == nil {
		return
	}
	c.Motes.Set(float64(motes))
	c.Links.Set(float64(links))
	c.Paths.Set(float64(paths))
}

// IncPlacementFallback satisfies graph.GraphMetricsRecorder.
func (c *GraphCollector) IncPlacementFallback(kind string) {
	if c == nil {
		return
	}
	c.PlacementFallbacks.WithLabelValues(kind).Inc()
}

// ObserveGraphEvent satisfies graph.GraphMetricsRecorder.
func (c *GraphCollector) ObserveGraphEvent(event string) {
	if c == nil {
		return
	}
	c.GraphEvents.WithLabelValues(event).Inc()
}

// ObserveMessage satisfies router.MetricsRecorder.
func (c *GraphCollector) ObserveMessage(result string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Messages.WithLabelValues(result).Inc()
	c.ApplyDuration.Observe(elapsed.Seconds())
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *GraphCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *GraphCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and
// method components, returning "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if fullMethod == "" || len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

// register adds col to reg. If an equivalent collector is already
// registered, that one is returned instead.
func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	err := reg.Register(col)
	if err == nil {
		return col, nil
	}
	var zero T
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
		return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
	}
	return zero, err
}
