// Package uploader relays acceleration readings to the remote measures
// store (a Parse REST class) and reads back the most recent rows.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/davideleoni90/TinysOSClassMonitoring/model"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ApplicationIDHeader = "X-Parse-Application-Id"
	RESTAPIKeyHeader    = "X-Parse-REST-API-Key"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// ErrUploadFailed is returned when the measures store rejects a request.
var ErrUploadFailed = errors.New("measures store request failed")

// Config holds the measures store endpoints and credentials.
type Config struct {
	RequestURL    string
	GetURL        string
	ApplicationID string
	RESTAPIKey    string
	Timeout       time.Duration
}

// Measure is one row of the measures table.
type Measure struct {
	X         int    `json:"X"`
	Y         int    `json:"Y"`
	Z         int    `json:"Z"`
	UpdatedAt string `json:"updatedAt"`
}

type measuresResponse struct {
	Results []Measure `json:"results"`
}

// Client talks to the measures store over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient constructs a client. A nil httpClient gets a default with
// cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Upload posts one reading as {"X":x,"Y":y,"Z":z}.
func (c *Client) Upload(ctx context.Context, r model.Reading) error {
	if c.cfg.RequestURL == "" {
		return fmt.Errorf("%w: no request url configured", ErrUploadFailed)
	}
	body, err := encodeReading(r)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RequestURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload reading: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FetchLatest returns at most n rows from the configured query URL. The URL
// carries its own ordering and limit; n only truncates the result.
func (c *Client) FetchLatest(ctx context.Context, n int) ([]Measure, error) {
	if c.cfg.GetURL == "" {
		return nil, fmt.Errorf("%w: no query url configured", ErrUploadFailed)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.GetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build measures request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch measures: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var payload measuresResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode measures: %w", err)
	}
	rows := payload.Results
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set(ApplicationIDHeader, c.cfg.ApplicationID)
	req.Header.Set(RESTAPIKeyHeader, c.cfg.RESTAPIKey)
}

func encodeReading(r model.Reading) ([]byte, error) {
	body, err := structpb.NewStruct(map[string]any{
		"X": r.X,
		"Y": r.Y,
		"Z": r.Z,
	})
	if err != nil {
		return nil, fmt.Errorf("encode reading: %w", err)
	}
	return protojson.Marshal(body)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%w: status %d: %s", ErrUploadFailed, resp.StatusCode, bytes.TrimSpace(snippet))
}
