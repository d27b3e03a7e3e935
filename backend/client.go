// Package backend is the HTTP client for the remote prediction service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"mldash/ml"
)

// HealthState tells the three health outcomes apart for operator messaging.
type HealthState string

const (
	Online  HealthState = "online"
	Problem HealthState = "problem"
	Offline HealthState = "offline"
)

// HealthStatus is the result of a health check. Err is a *HTTPError or
// *ParseError when State is Problem and a *ConnectionError when Offline.
type HealthStatus struct {
	Reachable    bool        `json:"reachable"`
	ModelsLoaded []string    `json:"models_loaded"`
	State        HealthState `json:"state"`
	CheckedAt    time.Time   `json:"checked_at"`
	Err          error       `json:"-"`
}

// Message is the operator facing summary of the status.
func (h HealthStatus) Message() string {
	switch h.State {
	case Online:
		return "Backend online"
	case Problem:
		return "Problem connecting"
	default:
		return "Backend offline"
	}
}

// Equal compares everything but the check time and error.
func (h HealthStatus) Equal(other HealthStatus) bool {
	if h.State != other.State || h.Reachable != other.Reachable || len(h.ModelsLoaded) != len(other.ModelsLoaded) {
		return false
	}
	for i := range h.ModelsLoaded {
		if h.ModelsLoaded[i] != other.ModelsLoaded[i] {
			return false
		}
	}
	return true
}

type Client struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewClient creates a client for baseURL. A zero timeout keeps the
// http.Client default of no timeout.
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log.Named("backend"),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health never fails; the outcome is carried in the returned status.
func (c *Client) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{ModelsLoaded: []string{}, State: Offline, CheckedAt: time.Now()}

	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		status.Err = err
		if !IsConnection(err) {
			status.State = Problem
		}
		return status
	}

	var payload struct {
		ModelsLoaded []string `json:"models_loaded"`
	}
	if err := decodeJSON(resp, "health response", &payload); err != nil {
		status.State = Problem
		status.Err = err
		return status
	}

	status.Reachable = true
	status.State = Online
	if payload.ModelsLoaded != nil {
		status.ModelsLoaded = payload.ModelsLoaded
	}
	return status
}

// Example fetches the example_input object for kind.
func (c *Client) Example(ctx context.Context, kind ml.ModelKind) (ml.InputRecord, error) {
	resp, err := c.do(ctx, http.MethodGet, "/"+kind.Path()+"/example", nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ExampleInput ml.InputRecord `json:"example_input"`
	}
	if err := decodeJSON(resp, "example response", &payload); err != nil {
		return nil, err
	}
	if payload.ExampleInput == nil {
		return nil, &ParseError{Source: "example response", Err: errors.New("missing example_input object")}
	}
	return payload.ExampleInput, nil
}

// Predict posts record as the JSON body and normalizes the response.
func (c *Client) Predict(ctx context.Context, kind ml.ModelKind, record ml.InputRecord) (*ml.PredictionResult, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return nil, &ParseError{Source: "input record", Err: err}
	}

	resp, err := c.do(ctx, http.MethodPost, "/"+kind.Path()+"/predict", body)
	if err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	if err := decodeJSON(resp, "prediction response", &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, &ParseError{Source: "prediction response", Err: errors.New("expected a JSON object")}
	}
	return ml.NormalizeResult(kind, payload), nil
}

// do issues the request and returns the body of a 200 response.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	url := c.baseURL + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Debug("backend unreachable", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, &ConnectionError{Op: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Op: method, URL: url, Err: err}
	}

	c.log.Debug("backend call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

func decodeJSON(data []byte, source string, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &ParseError{Source: source, Err: err}
	}
	return nil
}
