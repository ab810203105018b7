// Package api exposes the graph to operators over HTTP: the rendered scene,
// the paths table with row selection, mote moves, the measures table and
// the readings history.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/davideleoni90/TinysOSClassMonitoring/internal/graph"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/scene"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/store"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/uploader"
	"github.com/davideleoni90/TinysOSClassMonitoring/model"
	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const shutdownTimeout = 10 * time.Second

// CustomValidator plugs go-playground/validator into echo.
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// MeasuresSource serves the cached measures table.
type MeasuresSource interface {
	Rows() ([]uploader.Measure, time.Time)
}

// ReadingsSource serves the readings history.
type ReadingsSource interface {
	Latest(ctx context.Context, q store.Query) ([]model.Reading, error)
}

// Deps are the components the handlers read from. Measures, Readings and
// Metrics are optional.
type Deps struct {
	Graph    *graph.GraphState
	Scene    *scene.Cache
	Measures MeasuresSource
	Readings ReadingsSource
	Metrics  http.Handler
}

// Server is the operator HTTP surface.
type Server struct {
	echo *echo.Echo
	deps Deps
	log  logging.Logger
}

// New builds the echo instance and registers every route.
func New(deps Deps, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &CustomValidator{validator: validator.New()}
	e.Use(middleware.Recover())
	e.Use(requestLogger(log))

	s := &Server{echo: e, deps: deps, log: log}
	s.registerRoutes()
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "starting http server", logging.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.log.Error(ctx, "http server shutdown failed", logging.Err(err))
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics))
	}

	g := s.echo.Group("/api")
	g.GET("/scene", s.getScene)
	g.GET("/paths", s.getPaths)
	g.POST("/paths/:index/select", s.selectPath)
	g.GET("/motes", s.getMotes)
	g.POST("/motes/:id/move", s.moveMote)
	g.GET("/host", s.getHost)
	g.GET("/measures", s.getMeasures)
	g.GET("/readings", s.getReadings)
}

// requestLogger tags each request with an id and logs its outcome.
func requestLogger(log logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := req.Context()
			if id := req.Header.Get(echo.HeaderXRequestID); id != "" {
				ctx = logging.ContextWithRequestID(ctx, id)
			}
			ctx, reqLog := logging.WithRequestLogger(ctx, log)
			ctx = logging.ContextWithLogger(ctx, reqLog)
			c.SetRequest(req.WithContext(ctx))
			c.Response().Header().Set(echo.HeaderXRequestID, logging.RequestIDFromContext(ctx))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			reqLog.Debug(ctx, "http request",
				logging.String("method", req.Method),
				logging.String("path", c.Path()),
				logging.Int("status", c.Response().Status),
				logging.Any("duration", time.Since(start)),
			)
			return nil
		}
	}
}
