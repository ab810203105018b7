package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineCollector exposes metrics for the edges of the system: lines read
// from the serial bridge and readings relayed to the cloud store.
type PipelineCollector struct {
	gatherer prometheus.Gatherer

	IngestLines      *prometheus.CounterVec
	Uploads          *prometheus.CounterVec
	UploadQueueDepth prometheus.Gauge
	MeasuresFetch    prometheus.Histogram
}

// NewPipelineCollector registers pipeline metrics against reg.
func NewPipelineCollector(reg prometheus.Registerer) (*PipelineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &PipelineCollector{gatherer: gatherer}
	var err error

	if c.IngestLines, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mviz_ingest_lines_total",
		Help: "Lines read from the serial bridge, labeled by result (decoded, invalid, submit_failed).",
	}, []string{"result"}), "mviz_ingest_lines_total"); err != nil {
		return nil, err
	}
	if c.Uploads, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mviz_uploads_total",
		Help: "Readings relayed to the cloud store, labeled by result (ok, failed, dropped).",
	}, []string{"result"}), "mviz_uploads_total"); err != nil {
		return nil, err
	}
	if c.UploadQueueDepth, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mviz_upload_queue_depth",
		Help: "Readings waiting to be uploaded.",
	}), "mviz_upload_queue_depth"); err != nil {
		return nil, err
	}
	if c.MeasuresFetch, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mviz_measures_fetch_seconds",
		Help:    "Duration of measures table refreshes from the cloud store.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}), "mviz_measures_fetch_seconds"); err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *PipelineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveLine satisfies ingest.MetricsRecorder.
func (c *PipelineCollector) ObserveLine(result string) {
	if c == nil {
		return
	}
	c.IngestLines.WithLabelValues(result).Inc()
}

// ObserveUpload satisfies uploader.MetricsRecorder.
func (c *PipelineCollector) ObserveUpload(result string) {
	if c == nil {
		return
	}
	c.Uploads.WithLabelValues(result).Inc()
}

// SetUploadQueueDepth satisfies uploader.MetricsRecorder.
func (c *PipelineCollector) SetUploadQueueDepth(n int) {
	if c == nil {
		return
	}
	if n < 0 {
		n = 0
	}
	c.UploadQueueDepth.Set(float64(n))
}

// ObserveMeasuresFetch records how long a measures refresh took.
func (c *PipelineCollector) ObserveMeasuresFetch(d time.Duration) {
	if c == nil {
		return
	}
	c.MeasuresFetch.Observe(d.Seconds())
}
