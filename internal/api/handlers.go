package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/davideleoni90/TinysOSClassMonitoring/internal/graph"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/store"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/uploader"
	"github.com/davideleoni90/TinysOSClassMonitoring/model"
	"github.com/labstack/echo/v4"
)

type messageResponse struct {
	Message string `json:"message"`
}

// PathRow is one row of the paths table.
type PathRow struct {
	Index    int         `json:"index"`
	Origin   int         `json:"origin"`
	Motes    []int       `json:"motes"`
	HopCount int         `json:"hopCount"`
	Color    string      `json:"color"`
	Selected bool        `json:"selected"`
	RGB      model.Color `json:"rgb"`
}

// MoteRow is one row of the motes table.
type MoteRow struct {
	ID         int            `json:"id"`
	X          int            `json:"x"`
	Y          int            `json:"y"`
	IsProducer bool           `json:"isProducer"`
	IsRoot     bool           `json:"isRoot"`
	Reading    *model.Reading `json:"reading,omitempty"`
}

type hostResponse struct {
	Placed    bool            `json:"placed"`
	Position  model.Position  `json:"position"`
	Footprint model.Footprint `json:"footprint"`
}

type measuresResponse struct {
	Rows      []uploader.Measure `json:"rows"`
	FetchedAt *time.Time         `json:"fetchedAt,omitempty"`
}

func (s *Server) getScene(c echo.Context) error {
	if s.deps.Scene == nil {
		return c.JSON(http.StatusServiceUnavailable, messageResponse{Message: "scene not available"})
	}
	return c.JSON(http.StatusOK, s.deps.Scene.Frame(c.Request().Context()))
}

func (s *Server) getPaths(c echo.Context) error {
	snap := s.deps.Graph.Snapshot()
	rows := make([]PathRow, 0, len(snap.Paths))
	for i, p := range snap.Paths {
		rows = append(rows, pathRow(i, p))
	}
	return c.JSON(http.StatusOK, rows)
}

func pathRow(i int, p model.Path) PathRow {
	return PathRow{
		Index:    i,
		Origin:   p.Origin,
		Motes:    p.Motes,
		HopCount: p.HopCount,
		Color:    p.Color.Hex(),
		Selected: p.Selected,
		RGB:      p.Color,
	}
}

func (s *Server) selectPath(c echo.Context) error {
	type selectParams struct {
		Index int `param:"index" validate:"min=0"`
	}

	params := new(selectParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}

	ctx := c.Request().Context()
	if err := s.deps.Graph.SelectPath(ctx, params.Index); err != nil {
		if errors.Is(err, graph.ErrPathIndexOutOfRange) {
			return c.JSON(http.StatusNotFound, messageResponse{Message: err.Error()})
		}
		logging.LoggerFromContext(ctx, s.log).Error(ctx, "path select failed", logging.Err(err))
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Internal server error"})
	}
	s.markDirty()

	snap := s.deps.Graph.Snapshot()
	path, _ := snap.SelectedPath()
	return c.JSON(http.StatusOK, pathRow(snap.Selected, path))
}

func (s *Server) getMotes(c echo.Context) error {
	snap := s.deps.Graph.Snapshot()
	rows := make([]MoteRow, 0, len(snap.Motes))
	for _, m := range snap.Motes {
		row := MoteRow{
			ID:         m.ID,
			X:          m.Position.X,
			Y:          m.Position.Y,
			IsProducer: m.IsProducer,
			IsRoot:     m.ID == snap.RootMote,
		}
		if r, ok := snap.Readings[m.ID]; ok {
			row.Reading = &r
		}
		rows = append(rows, row)
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) moveMote(c echo.Context) error {
	// X and Y move the mote to an absolute position; otherwise DX and DY
	// shift it.
	type moveParams struct {
		ID int  `param:"id" json:"-" validate:"min=0"`
		X  *int `json:"x"`
		Y  *int `json:"y"`
		DX int  `json:"dx"`
		DY int  `json:"dy"`
	}

	params := new(moveParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}
	if (params.X == nil) != (params.Y == nil) {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "x and y must be given together"})
	}

	ctx := c.Request().Context()
	var err error
	if params.X != nil {
		err = s.deps.Graph.MoveMote(ctx, params.ID, model.Position{X: *params.X, Y: *params.Y})
	} else {
		err = s.deps.Graph.ApplyDeltas(ctx, params.ID, params.DX, params.DY)
	}
	if err != nil {
		if errors.Is(err, graph.ErrMoteNotFound) {
			return c.JSON(http.StatusNotFound, messageResponse{Message: err.Error()})
		}
		logging.LoggerFromContext(ctx, s.log).Error(ctx, "mote move failed", logging.Err(err))
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Internal server error"})
	}
	s.markDirty()

	m, _ := s.deps.Graph.Snapshot().Mote(params.ID)
	return c.JSON(http.StatusOK, MoteRow{
		ID:         m.ID,
		X:          m.Position.X,
		Y:          m.Position.Y,
		IsProducer: m.IsProducer,
		IsRoot:     m.ID == s.deps.Graph.RootMote(),
	})
}

func (s *Server) getHost(c echo.Context) error {
	snap := s.deps.Graph.Snapshot()
	return c.JSON(http.StatusOK, hostResponse{
		Placed:    snap.HostPlaced,
		Position:  snap.Host,
		Footprint: snap.HostFootprint,
	})
}

func (s *Server) getMeasures(c echo.Context) error {
	if s.deps.Measures == nil {
		return c.JSON(http.StatusServiceUnavailable, messageResponse{Message: "measures store not configured"})
	}
	rows, at := s.deps.Measures.Rows()
	resp := measuresResponse{Rows: rows}
	if resp.Rows == nil {
		resp.Rows = []uploader.Measure{}
	}
	if !at.IsZero() {
		resp.FetchedAt = &at
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) getReadings(c echo.Context) error {
	if s.deps.Readings == nil {
		return c.JSON(http.StatusServiceUnavailable, messageResponse{Message: "readings history not configured"})
	}

	var q store.Query
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 || limit > store.MaxLimit {
			return c.JSON(http.StatusBadRequest, messageResponse{
				Message: fmt.Sprintf("limit must be an integer between 0 and %d", store.MaxLimit),
			})
		}
		q.Limit = limit
	}
	if raw := c.QueryParam("mote"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, messageResponse{Message: "mote must be an integer"})
		}
		q.MoteID = &id
	}

	ctx := c.Request().Context()
	readings, err := s.deps.Readings.Latest(ctx, q)
	if err != nil {
		logging.LoggerFromContext(ctx, s.log).Error(ctx, "readings query failed", logging.Err(err))
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Internal server error"})
	}
	return c.JSON(http.StatusOK, readings)
}

func (s *Server) markDirty() {
	if s.deps.Scene != nil {
		s.deps.Scene.MarkDirty()
	}
}
