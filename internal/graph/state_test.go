package graph

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/davideleoni90/TinysOSClassMonitoring/core"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
	"github.com/davideleoni90/TinysOSClassMonitoring/model"
)

type countsSnapshot struct {
	motes int
	links int
	paths int
}

type stubMetricsRecorder struct {
	mu        sync.Mutex
	records   []countsSnapshot
	fallbacks map[string]int
	events    map[string]int
}

func (r *stubMetricsRecorder) ObserveGraphEvent(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = make(map[string]int)
	}
	r.events[event]++
}

func (r *stubMetricsRecorder) SetGraphCounts(motes, links, paths int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, countsSnapshot{motes: motes, links: links, paths: paths})
}

func (r *stubMetricsRecorder) IncPlacementFallback(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fallbacks == nil {
		r.fallbacks = make(map[string]int)
	}
	r.fallbacks[kind]++
}

func (r *stubMetricsRecorder) last() countsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		return countsSnapshot{}
	}
	return r.records[len(r.records)-1]
}

func testConfig() Config {
	return Config{
		RootMote:      1,
		Canvas:        core.Canvas{Width: 800, Height: 600},
		MoteFootprint: model.Footprint{Width: 30, Height: 30},
		HostFootprint: model.Footprint{Width: 40, Height: 40},
		Rand:          rand.New(rand.NewPCG(1, 2)),
	}
}

func newTestState(t *testing.T, opts ...GraphStateOption) *GraphState {
	t.Helper()
	return NewGraphState(testConfig(), logging.Noop(), opts...)
}

func TestUpdateAppliesAllMutationsAtOnce(t *testing.T) {
	recorder := &stubMetricsRecorder{}
	s := newTestState(t, WithMetricsRecorder(recorder))
	ctx := context.Background()

	if got := recorder.last(); got != (countsSnapshot{}) {
		t.Fatalf("initial counts = %+v, want zero", got)
	}

	err := s.Update(ctx, func(tx *Tx) error {
		tx.Mote(4, true)
		tx.Mote(tx.RootMote(), false)
		tx.Link(4, 1)
		tx.SetLinkQuality(4, 1, 200, "200")
		_, err := tx.UpsertPath([]int{4})
		return err
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if got := recorder.last(); got != (countsSnapshot{motes: 2, links: 1, paths: 1}) {
		t.Fatalf("counts = %+v, want 2/1/1", got)
	}
	snap := s.Snapshot()
	if snap.Version != 1 {
		t.Fatalf("Version = %d, want 1", snap.Version)
	}
	if len(snap.Links) != 1 || snap.Links[0].Quality != 200 {
		t.Fatalf("links = %+v", snap.Links)
	}
}

func TestUpdateWithoutChangesKeepsVersion(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	s.Update(ctx, func(tx *Tx) error {
		tx.Mote(2, false)
		return nil
	})
	s.Update(ctx, func(tx *Tx) error {
		tx.Mote(2, true)
		return nil
	})
	if v := s.Version(); v != 1 {
		t.Fatalf("Version = %d, want 1", v)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	s := newTestState(t)
	s.Update(context.Background(), func(tx *Tx) error {
		tx.Mote(5, true)
		_, err := tx.UpsertPath([]int{5})
		return err
	})

	snap := s.Snapshot()
	snap.Motes[0].Position = model.Position{X: -1, Y: -1}
	snap.Paths[0].Motes[0] = 99

	again := s.Snapshot()
	if again.Motes[0].Position == (model.Position{X: -1, Y: -1}) {
		t.Fatalf("snapshot shares mote memory with state")
	}
	if again.Paths[0].Motes[0] != 5 {
		t.Fatalf("snapshot shares path memory with state")
	}
	if m, ok := again.Mote(5); !ok || !m.IsProducer {
		t.Fatalf("Snapshot.Mote(5) = %+v, %v", m, ok)
	}
}

func TestHostPlacedOnce(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	if _, ok := s.HostPosition(); ok {
		t.Fatalf("host should start unplaced")
	}
	var first model.Position
	s.Update(ctx, func(tx *Tx) error {
		root := tx.Mote(1, false)
		var placed bool
		first, placed = tx.PlaceHostNear(root.Position)
		if !placed {
			t.Fatalf("first PlaceHostNear should place")
		}
		return nil
	})
	s.Update(ctx, func(tx *Tx) error {
		pos, placed := tx.PlaceHostNear(model.Position{X: 10, Y: 10})
		if placed || pos != first {
			t.Fatalf("second PlaceHostNear moved the host to %+v", pos)
		}
		return nil
	})

	got, ok := s.HostPosition()
	if !ok || got != first {
		t.Fatalf("HostPosition() = %+v, %v; want %+v", got, ok, first)
	}
	root, _ := s.Snapshot().Mote(1)
	host := s.cfg.HostFootprint.BoxAt(got)
	if host.Intersects(s.cfg.MoteFootprint.BoxAt(root.Position)) {
		t.Fatalf("host overlaps the root mote")
	}
}

func TestSelectPathOutOfRange(t *testing.T) {
	s := newTestState(t)
	err := s.SelectPath(context.Background(), 0)
	if !errors.Is(err, ErrPathIndexOutOfRange) {
		t.Fatalf("SelectPath error = %v, want ErrPathIndexOutOfRange", err)
	}
	if s.Version() != 0 {
		t.Fatalf("failed selection changed the version")
	}
}

func TestMoveMote(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	s.Update(ctx, func(tx *Tx) error {
		tx.Mote(3, true)
		return nil
	})

	if err := s.MoveMote(ctx, 3, model.Position{X: 100, Y: 120}); err != nil {
		t.Fatalf("MoveMote: %v", err)
	}
	if err := s.ApplyDeltas(ctx, 3, 5, -20); err != nil {
		t.Fatalf("ApplyDeltas: %v", err)
	}
	m, _ := s.Snapshot().Mote(3)
	if m.Position != (model.Position{X: 105, Y: 100}) {
		t.Fatalf("position = %+v", m.Position)
	}
	if err := s.MoveMote(ctx, 77, model.Position{}); !errors.Is(err, ErrMoteNotFound) {
		t.Fatalf("MoveMote(77) error = %v, want ErrMoteNotFound", err)
	}
}

func TestPlacementFallbackIsRecorded(t *testing.T) {
	cfg := testConfig()
	cfg.Canvas = core.Canvas{Width: 30, Height: 30}
	cfg.MaxPlacementAttempts = 5
	recorder := &stubMetricsRecorder{}
	s := NewGraphState(cfg, logging.Noop(), WithMetricsRecorder(recorder))

	s.Update(context.Background(), func(tx *Tx) error {
		tx.Mote(1, false)
		tx.Mote(2, false)
		return nil
	})

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if recorder.fallbacks[PlacementMote] != 1 {
		t.Fatalf("mote fallbacks = %d, want 1", recorder.fallbacks[PlacementMote])
	}
}

func TestPlacementFallbackLogsWithMessageID(t *testing.T) {
	cfg := testConfig()
	cfg.Canvas = core.Canvas{Width: 30, Height: 30}
	cfg.MaxPlacementAttempts = 5
	s := NewGraphState(cfg, logging.Noop())

	var buf bytes.Buffer
	base := logging.New(logging.Config{Level: "warn", Format: "json", Output: &buf})
	ctx, msgLog := logging.WithMessageLogger(context.Background(), base)
	ctx = logging.ContextWithLogger(ctx, msgLog)

	s.Update(ctx, func(tx *Tx) error {
		tx.Mote(1, false)
		tx.Mote(2, false)
		return nil
	})

	out := buf.String()
	if !strings.Contains(out, "mote placement fell back") {
		t.Fatalf("missing fallback warning in %q", out)
	}
	want := `"message_id":"` + logging.MessageIDFromContext(ctx) + `"`
	if !strings.Contains(out, want) {
		t.Fatalf("fallback warning %q lacks %s", out, want)
	}
}

func TestRegistryEventsAreCounted(t *testing.T) {
	recorder := &stubMetricsRecorder{}
	s := newTestState(t, WithMetricsRecorder(recorder))
	ctx := context.Background()

	s.Update(ctx, func(tx *Tx) error {
		tx.Mote(5, true)
		_, err := tx.UpsertPath([]int{5})
		return err
	})
	s.Update(ctx, func(tx *Tx) error {
		_, err := tx.UpsertPath([]int{5, 3})
		return err
	})
	if err := s.SelectPath(ctx, 0); err != nil {
		t.Fatalf("SelectPath: %v", err)
	}
	if err := s.ApplyDeltas(ctx, 5, 1, 1); err != nil {
		t.Fatalf("ApplyDeltas: %v", err)
	}

	want := map[string]int{
		EventMoteCreated:  1,
		EventMoteMoved:    1,
		EventPathCreated:  1,
		EventPathUpdated:  1,
		EventPathSelected: 1,
	}
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	for event, n := range want {
		if recorder.events[event] != n {
			t.Fatalf("%s events = %d, want %d (all: %v)", event, recorder.events[event], n, recorder.events)
		}
	}
}

func TestReadingsKeepLatestPerMote(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	s.Update(ctx, func(tx *Tx) error {
		tx.RecordReading(model.Reading{MoteID: 2, X: 1})
		tx.RecordReading(model.Reading{MoteID: 2, X: 7})
		return nil
	})

	r, ok := s.Reading(2)
	if !ok || r.X != 7 {
		t.Fatalf("Reading(2) = %+v, %v", r, ok)
	}
	if _, ok := s.Reading(3); ok {
		t.Fatalf("Reading(3) should be absent")
	}
}

func TestConcurrentUpdatesAndSnapshots(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(origin int) {
			defer wg.Done()
			s.Update(ctx, func(tx *Tx) error {
				tx.Mote(origin, true)
				tx.Mote(1, false)
				tx.Link(origin, 1)
				_, err := tx.UpsertPath([]int{origin})
				return err
			})
		}(i + 2)
		go func() {
			defer wg.Done()
			snap := s.Snapshot()
			// every path must have its link and both endpoints in the same view
			for _, p := range snap.Paths {
				if _, ok := snap.Mote(p.Origin); !ok {
					t.Errorf("path origin %d missing from snapshot", p.Origin)
				}
			}
		}()
	}
	wg.Wait()

	if got := len(s.Snapshot().Paths); got != 20 {
		t.Fatalf("paths = %d, want 20", got)
	}
}
