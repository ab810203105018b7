package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewGraphCollector(reg)
	if err != nil {
		t.Fatalf("NewGraphCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "OK")); got != 1 {
		t.Fatalf("mviz_grpc_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "mviz_grpc_request_duration_seconds", map[string]string{
		"service": "Health",
		"method":  "Check",
	}); count != 1 {
		t.Fatalf("mviz_grpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewGraphCollector(reg)
	if err != nil {
		t.Fatalf("NewGraphCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "NotFound")); got != 1 {
		t.Fatalf("error label = %v, want 1", got)
	}
}

func TestGraphCollectorRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewGraphCollector(reg)
	if err != nil {
		t.Fatalf("NewGraphCollector: %v", err)
	}

	collector.SetGraphCounts(3, 4, 2)
	collector.IncPlacementFallback("mote")
	collector.ObserveGraphEvent("path_created")
	collector.ObserveGraphEvent("path_created")
	collector.ObserveMessage("applied", 2*time.Millisecond)
	collector.ObserveMessage("applied", time.Millisecond)
	collector.ObserveMessage("malformed", 0)

	if got := testutil.ToFloat64(collector.Links); got != 4 {
		t.Fatalf("mviz_links = %v, want 4", got)
	}
	if got := testutil.ToFloat64(collector.PlacementFallbacks.WithLabelValues("mote")); got != 1 {
		t.Fatalf("mote fallbacks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.GraphEvents.WithLabelValues("path_created")); got != 2 {
		t.Fatalf("path_created events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Messages.WithLabelValues("applied")); got != 2 {
		t.Fatalf("applied messages = %v, want 2", got)
	}
	if count := histogramSampleCount(t, reg, "mviz_message_apply_seconds", nil); count != 3 {
		t.Fatalf("apply histogram sample_count = %d, want 3", count)
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewGraphCollector(reg)
	if err != nil {
		t.Fatalf("first NewGraphCollector: %v", err)
	}
	second, err := NewGraphCollector(reg)
	if err != nil {
		t.Fatalf("second NewGraphCollector: %v", err)
	}
	first.SetGraphCounts(1, 0, 0)
	if got := testutil.ToFloat64(second.Motes); got != 1 {
		t.Fatalf("second collector sees mviz_motes = %v, want 1", got)
	}
}

func TestPipelineCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("NewPipelineCollector: %v", err)
	}
	collector.ObserveLine("decoded")
	collector.ObserveUpload("dropped")
	collector.SetUploadQueueDepth(-3)
	collector.ObserveMeasuresFetch(20 * time.Millisecond)

	if got := testutil.ToFloat64(collector.IngestLines.WithLabelValues("decoded")); got != 1 {
		t.Fatalf("decoded lines = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Uploads.WithLabelValues("dropped")); got != 1 {
		t.Fatalf("dropped uploads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.UploadQueueDepth); got != 0 {
		t.Fatalf("queue depth = %v, want clamp to 0", got)
	}
	if count := histogramSampleCount(t, collector.Gatherer(), "mviz_measures_fetch_seconds", nil); count != 1 {
		t.Fatalf("fetch histogram sample_count = %d, want 1", count)
	}
}

func TestMetricsHandlerExposesGraphGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewGraphCollector(reg)
	if err != nil {
		t.Fatalf("NewGraphCollector: %v", err)
	}
	collector.SetGraphCounts(7, 8, 9)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, line := range []string{"mviz_motes 7", "mviz_links 8", "mviz_paths 9"} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected %q in /metrics output:\n%s", line, body)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	cases := map[string][2]string{
		"/grpc.health.v1.Health/Check": {"Health", "Check"},
		"Svc/Method":                   {"Svc", "Method"},
		"":                             {"unknown", "unknown"},
		"/nomethod":                    {"unknown", "unknown"},
	}
	for in, want := range cases {
		service, method := SplitMethod(in)
		if service != want[0] || method != want[1] {
			t.Fatalf("SplitMethod(%q) = %q, %q; want %q, %q", in, service, method, want[0], want[1])
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
