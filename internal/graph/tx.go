package graph

import (
	"context"

	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
	"github.com/davideleoni90/TinysOSClassMonitoring/model"
)

// Tx is the mutation handle passed to Update. It is only valid inside the
// callback.
type Tx struct {
	s     *GraphState
	ctx   context.Context
	dirty bool
}

// RootMote returns the ID of the sink mote.
func (tx *Tx) RootMote() int {
	return tx.s.cfg.RootMote
}

// log returns the logger stored on the Update context, so entries keep the
// caller's message or request ID.
func (tx *Tx) log() logging.Logger {
	return logging.LoggerFromContext(tx.ctx, tx.s.log)
}

// Mote returns the mote with the given ID, creating and placing it when it
// has not been seen before. isProducer only matters on creation.
func (tx *Tx) Mote(id int, isProducer bool) *model.Mote {
	s := tx.s
	m, created, fallback := s.motes.GetOrPlace(id, isProducer)
	if fallback {
		tx.log().Warn(tx.ctx, "mote placement fell back to an overlapping position",
			logging.Int("mote_id", id),
			logging.Int("attempts", s.maxAttempts()),
			logging.Int("x", m.Position.X),
			logging.Int("y", m.Position.Y),
		)
		if s.metrics != nil {
			s.metrics.IncPlacementFallback(PlacementMote)
		}
	}
	if created {
		tx.dirty = true
		tx.log().Debug(tx.ctx, "mote created",
			logging.String("entity_type", "mote"),
			logging.Int("mote_id", id),
			logging.Bool("producer", isProducer),
			logging.Int("x", m.Position.X),
			logging.Int("y", m.Position.Y),
		)
	}
	return m
}

// Link returns the directed link source→target, creating it if needed.
func (tx *Tx) Link(source, target int) *model.Link {
	l, created := tx.s.links.GetOrCreate(source, target)
	if created {
		tx.dirty = true
		tx.log().Debug(tx.ctx, "link created",
			logging.String("entity_type", "link"),
			logging.Int("source", source),
			logging.Int("target", target),
		)
	}
	return l
}

// SetLinkQuality records quality and label on source→target and mirrors
// them onto target→source when that link exists.
func (tx *Tx) SetLinkQuality(source, target, quality int, label string) (mirrored bool) {
	tx.dirty = true
	return tx.s.links.SetQuality(source, target, quality, label)
}

// UpsertPath records path (producer first, root excluded) as the current
// route of its origin.
func (tx *Tx) UpsertPath(path []int) (created bool, err error) {
	created, err = tx.s.paths.Upsert(path)
	if err != nil {
		return false, err
	}
	tx.dirty = true
	return created, nil
}

// HostPlaced reports whether the host machine already has a position.
func (tx *Tx) HostPlaced() bool {
	return tx.s.host != nil
}

// PlaceHostNear fixes the host position near anchor, avoiding every mote
// footprint. It is a no-op once the host is placed; placed reports whether
// this call set the position.
func (tx *Tx) PlaceHostNear(anchor model.Position) (pos model.Position, placed bool) {
	s := tx.s
	if s.host != nil {
		return *s.host, false
	}
	pos, ok := s.placer.PlaceNear(anchor, s.cfg.HostFootprint, s.motes.Boxes())
	if !ok {
		tx.log().Warn(tx.ctx, "host placement fell back to an overlapping position",
			logging.Int("attempts", s.maxAttempts()),
			logging.Int("x", pos.X),
			logging.Int("y", pos.Y),
		)
		if s.metrics != nil {
			s.metrics.IncPlacementFallback(PlacementHost)
		}
	}
	s.host = &pos
	tx.dirty = true
	tx.log().Info(tx.ctx, "host placed",
		logging.String("entity_type", "host"),
		logging.Int("x", pos.X),
		logging.Int("y", pos.Y),
	)
	return pos, true
}

// RecordReading stores r as the latest reading of its mote.
func (tx *Tx) RecordReading(r model.Reading) {
	tx.s.readings[r.MoteID] = r
	tx.dirty = true
}
