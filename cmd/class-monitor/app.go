package main

import (
	"context"
	"errors"
	"io"

	"github.com/davideleoni90/TinysOSClassMonitoring/core"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/api"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/config"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/graph"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/ingest"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/observability"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/router"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/rpc"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/scene"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/store"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/uploader"
	"github.com/davideleoni90/TinysOSClassMonitoring/model"
	"github.com/davideleoni90/TinysOSClassMonitoring/timectrl"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// app holds every long-running component of the monitor.
type app struct {
	cfg config.Config
	log logging.Logger

	state    *graph.GraphState
	scene    *scene.Cache
	router   *router.Router
	reader   *ingest.Reader
	uploads  *uploader.Dispatcher
	measures *uploader.MeasuresTable
	history  *store.Store
	ticker   *timectrl.Controller
	http     *api.Server
	grpc     *rpc.Server
}

// newApp wires the components described by cfg. A nil reg uses the default
// Prometheus registry.
func newApp(cfg config.Config, log logging.Logger, reg prometheus.Registerer) (*app, error) {
	graphMetrics, err := observability.NewGraphCollector(reg)
	if err != nil {
		return nil, err
	}
	pipelineMetrics, err := observability.NewPipelineCollector(reg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	a.state = graph.NewGraphState(graph.Config{
		RootMote:             cfg.RootMote,
		Canvas:               core.Canvas{Width: cfg.Width, Height: cfg.Height},
		MoteFootprint:        model.Footprint{Width: cfg.MoteWidth, Height: cfg.MoteHeight},
		HostFootprint:        model.Footprint{Width: cfg.HostWidth, Height: cfg.HostHeight},
		MaxPlacementAttempts: cfg.PlacementMaxAttempts,
	}, log, graph.WithMetricsRecorder(graphMetrics))
	a.scene = scene.NewCache(a.state, log)

	routerOpts := []router.Option{
		router.WithRefresher(a.scene),
		router.WithMetricsRecorder(graphMetrics),
	}

	if cfg.DBPath != "" {
		if a.history, err = store.Open(cfg.DBPath, log); err != nil {
			return nil, err
		}
		routerOpts = append(routerOpts, router.WithReadingSink(a.history))
	}

	client := uploader.NewClient(uploader.Config{
		RequestURL:    cfg.ParseRequestURL,
		GetURL:        cfg.ParseGetURL,
		ApplicationID: cfg.ParseApplicationID,
		RESTAPIKey:    cfg.ParseRESTAPIKey,
	}, nil)
	if cfg.UploadEnabled() {
		a.uploads = uploader.NewDispatcher(client, log, uploader.WithMetricsRecorder(pipelineMetrics))
		routerOpts = append(routerOpts, router.WithUploadSink(a.uploads, cfg.UploadOrigin))
	}
	if cfg.MeasuresEnabled() {
		a.measures = uploader.NewMeasuresTable(client, cfg.MeasuresRows, log, pipelineMetrics)
	}

	a.router = router.New(a.state, log, routerOpts...)

	port, err := openPort(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.reader = ingest.NewReader(port, a.router, log, ingest.WithMetricsRecorder(pipelineMetrics))

	a.ticker = timectrl.NewController(cfg.RefreshInterval)
	a.ticker.AddListener(a.scene.Tick)
	if a.measures != nil {
		a.ticker.AddListener(a.measures.Tick)
	}

	deps := api.Deps{
		Graph:   a.state,
		Scene:   a.scene,
		Metrics: graphMetrics.Handler(),
	}
	if a.measures != nil {
		deps.Measures = a.measures
	}
	if a.history != nil {
		deps.Readings = a.history
	}
	a.http = api.New(deps, log)
	a.grpc = rpc.NewServer(log, rpc.WithUnaryInterceptor(graphMetrics.UnaryServerInterceptor()))
	return a, nil
}

// openPort prefers the serial device and falls back to replaying a capture.
func openPort(cfg config.Config) (io.ReadCloser, error) {
	if cfg.SerialPort != "" {
		return ingest.OpenSerial(cfg.SerialPort, ingest.PortOptions{BaudRate: cfg.BaudRate})
	}
	return ingest.OpenReplay(cfg.FixturesFile, cfg.ReplayInterval, true)
}

// Run starts every component and blocks until ctx is done or one of them
// fails.
func (a *app) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.router.Run(ctx) })
	g.Go(func() error {
		err := a.reader.Run(ctx)
		if err == nil {
			a.log.Info(ctx, "serial input reached end of stream")
		}
		return err
	})
	if a.uploads != nil {
		g.Go(func() error { return a.uploads.Run(ctx) })
	}
	g.Go(func() error { return a.ticker.Run(ctx) })
	g.Go(func() error { return a.http.ListenAndServe(ctx, a.cfg.HTTPAddr) })
	g.Go(func() error { return a.grpc.ListenAndServe(ctx, a.cfg.GRPCAddr) })

	a.grpc.SetServing(true)
	a.log.Info(ctx, "class monitor running",
		logging.Int("root_mote", a.cfg.RootMote),
		logging.String("http_addr", a.cfg.HTTPAddr),
		logging.String("grpc_addr", a.cfg.GRPCAddr),
		logging.Bool("uploads", a.uploads != nil),
		logging.Bool("history", a.history != nil),
	)

	err := g.Wait()
	a.grpc.SetServing(false)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases resources not tied to Run's context.
func (a *app) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log.Warn(context.Background(), "closing readings history failed", logging.Err(err))
		}
	}
}
