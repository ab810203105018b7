package uploader

import (
	"context"
	"sync"
	"time"

	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
)

// DefaultMeasuresRows is how many rows the measures table shows.
const DefaultMeasuresRows = 3

// Fetcher reads the latest measures. *Client satisfies it.
type Fetcher interface {
	FetchLatest(ctx context.Context, n int) ([]Measure, error)
}

// FetchObserver records measures query latency.
type FetchObserver interface {
	ObserveMeasuresFetch(d time.Duration)
}

// MeasuresTable caches the last successful measures query.
type MeasuresTable struct {
	fetcher  Fetcher
	rows     int
	log      logging.Logger
	observer FetchObserver

	mu        sync.RWMutex
	latest    []Measure
	fetchedAt time.Time
	lastErr   error
}

// NewMeasuresTable constructs a table of at most rows entries.
func NewMeasuresTable(fetcher Fetcher, rows int, log logging.Logger, observer FetchObserver) *MeasuresTable {
	if rows <= 0 {
		rows = DefaultMeasuresRows
	}
	if log == nil {
		log = logging.Noop()
	}
	return &MeasuresTable{fetcher: fetcher, rows: rows, log: log, observer: observer}
}

// Refresh queries the store. On failure the previous rows are kept.
func (m *MeasuresTable) Refresh(ctx context.Context) error {
	start := time.Now()
	rows, err := m.fetcher.FetchLatest(ctx, m.rows)
	if m.observer != nil {
		m.observer.ObserveMeasuresFetch(time.Since(start))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
	if err != nil {
		return err
	}
	m.latest = append([]Measure(nil), rows...)
	m.fetchedAt = start
	return nil
}

// Tick refreshes the table; it matches timectrl.Listener.
func (m *MeasuresTable) Tick(ctx context.Context, _ time.Time) {
	if err := m.Refresh(ctx); err != nil {
		m.log.Warn(ctx, "measures refresh failed", logging.Err(err))
	}
}

// Rows returns a copy of the cached rows and when they were fetched.
func (m *MeasuresTable) Rows() ([]Measure, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Measure(nil), m.latest...), m.fetchedAt
}

// LastError returns the error of the most recent refresh, if any.
func (m *MeasuresTable) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}
