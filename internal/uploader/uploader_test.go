package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
	"github.com/davideleoni90/TinysOSClassMonitoring/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) Config {
	return Config{
		RequestURL:    url + "/1/classes/Acceleration",
		GetURL:        url + "/1/classes/Acceleration?limit=3&order=-updatedAt",
		ApplicationID: "app-id",
		RESTAPIKey:    "rest-key",
	}
}

func TestClientUploadSendsReadingWithHeaders(t *testing.T) {
	var (
		gotBody   map[string]float64
		gotHeader http.Header
		gotPath   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotPath = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"objectId":"abc"}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), srv.Client())
	err := c.Upload(context.Background(), model.Reading{MoteID: 1, X: 12, Y: -3, Z: 980})
	require.NoError(t, err)

	assert.Equal(t, "/1/classes/Acceleration", gotPath)
	assert.Equal(t, map[string]float64{"X": 12, "Y": -3, "Z": 980}, gotBody)
	assert.Equal(t, "app-id", gotHeader.Get(ApplicationIDHeader))
	assert.Equal(t, "rest-key", gotHeader.Get(RESTAPIKeyHeader))
	assert.Contains(t, gotHeader.Get("Content-Type"), "application/json")
}

func TestClientUploadRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewClient(testConfig(srv.URL), srv.Client()).Upload(context.Background(), model.Reading{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.Contains(t, err.Error(), "401")
}

func TestClientUploadWithoutURL(t *testing.T) {
	err := NewClient(Config{}, nil).Upload(context.Background(), model.Reading{})
	assert.ErrorIs(t, err, ErrUploadFailed)
}

func TestClientFetchLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		assert.Equal(t, "app-id", r.Header.Get(ApplicationIDHeader))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"X":1,"Y":2,"Z":3,"updatedAt":"2015-06-01T10:00:02.000Z","objectId":"a"},
			{"X":4,"Y":5,"Z":6,"updatedAt":"2015-06-01T10:00:01.000Z","objectId":"b"},
			{"X":7,"Y":8,"Z":9,"updatedAt":"2015-06-01T10:00:00.000Z","objectId":"c"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), srv.Client())
	rows, err := c.FetchLatest(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []Measure{
		{X: 1, Y: 2, Z: 3, UpdatedAt: "2015-06-01T10:00:02.000Z"},
		{X: 4, Y: 5, Z: 6, UpdatedAt: "2015-06-01T10:00:01.000Z"},
	}, rows)
}

func TestClientFetchLatestBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL), srv.Client()).FetchLatest(context.Background(), 3)
	assert.Error(t, err)
}

type fakeUploader struct {
	mu       sync.Mutex
	failures int
	calls    int
	uploaded []model.Reading
	block    chan struct{}
}

func (f *fakeUploader) Upload(ctx context.Context, r model.Reading) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("transient")
	}
	f.uploaded = append(f.uploaded, r)
	return nil
}

func (f *fakeUploader) snapshot() (int, []model.Reading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, append([]model.Reading(nil), f.uploaded...)
}

type uploadCounter struct {
	mu      sync.Mutex
	results map[string]int
	depth   int
}

func (c *uploadCounter) ObserveUpload(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results == nil {
		c.results = make(map[string]int)
	}
	c.results[result]++
}

func (c *uploadCounter) SetUploadQueueDepth(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depth = n
}

func (c *uploadCounter) count(result string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results[result]
}

func TestDispatcherRetriesUntilSuccess(t *testing.T) {
	up := &fakeUploader{failures: 2}
	counter := &uploadCounter{}
	d := NewDispatcher(up, logging.Noop(), WithBackoff(0), WithMaxTries(3), WithMetricsRecorder(counter))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	d.Accept(ctx, model.Reading{MoteID: 1, X: 5})

	require.Eventually(t, func() bool { return counter.count(ResultOK) == 1 }, 2*time.Second, time.Millisecond)
	calls, uploaded := up.snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, []model.Reading{{MoteID: 1, X: 5}}, uploaded)
}

func TestDispatcherGivesUpAfterMaxTries(t *testing.T) {
	up := &fakeUploader{failures: 10}
	counter := &uploadCounter{}
	d := NewDispatcher(up, logging.Noop(), WithBackoff(0), WithMaxTries(2), WithMetricsRecorder(counter))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	require.NoError(t, d.Enqueue(model.Reading{MoteID: 1}))
	require.Eventually(t, func() bool { return counter.count(ResultFailed) == 1 }, 2*time.Second, time.Millisecond)
	calls, _ := up.snapshot()
	assert.Equal(t, 2, calls)
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	counter := &uploadCounter{}
	d := NewDispatcher(&fakeUploader{}, logging.Noop(), WithQueueSize(1), WithMetricsRecorder(counter))

	require.NoError(t, d.Enqueue(model.Reading{MoteID: 1}))
	assert.ErrorIs(t, d.Enqueue(model.Reading{MoteID: 1}), ErrQueueFull)
	d.Accept(context.Background(), model.Reading{MoteID: 1})

	assert.Equal(t, 1, d.Pending())
	assert.Equal(t, 2, counter.count(ResultDropped))
}

func TestDispatcherRunStopsOnCancel(t *testing.T) {
	up := &fakeUploader{block: make(chan struct{})}
	d := NewDispatcher(up, logging.Noop())
	require.NoError(t, d.Enqueue(model.Reading{MoteID: 1}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatalf("dispatcher did not stop")
	}
}

type stubFetcher struct {
	rows []Measure
	err  error
	n    int
}

func (s *stubFetcher) FetchLatest(_ context.Context, n int) ([]Measure, error) {
	s.n = n
	return s.rows, s.err
}

type fetchTimer struct{ calls int }

func (f *fetchTimer) ObserveMeasuresFetch(time.Duration) { f.calls++ }

func TestMeasuresTableKeepsRowsOnFailure(t *testing.T) {
	fetcher := &stubFetcher{rows: []Measure{{X: 1, Y: 2, Z: 3, UpdatedAt: "t1"}}}
	timer := &fetchTimer{}
	table := NewMeasuresTable(fetcher, 0, logging.Noop(), timer)

	require.NoError(t, table.Refresh(context.Background()))
	assert.Equal(t, DefaultMeasuresRows, fetcher.n)

	fetcher.err = ErrUploadFailed
	table.Tick(context.Background(), time.Now())

	rows, fetchedAt := table.Rows()
	assert.Equal(t, []Measure{{X: 1, Y: 2, Z: 3, UpdatedAt: "t1"}}, rows)
	assert.False(t, fetchedAt.IsZero())
	assert.ErrorIs(t, table.LastError(), ErrUploadFailed)
	assert.Equal(t, 2, timer.calls)
}
