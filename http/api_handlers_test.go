package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func (e *testEnv) apiPredict(t *testing.T) (int, map[string]interface{}) {
	t.Helper()
	resp, err := e.client.Post(e.server.URL+"/api/predict", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestAPIPredictWithoutInput(t *testing.T) {
	env := newTestEnv(t)
	env.postForm(t, "/settings", url.Values{"method": {"upload"}})

	code, body := env.apiPredict(t)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Please provide input data using the sidebar", body["error"])
	assert.Nil(t, env.backend.lastBody)
}

func TestAPIPredictSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.postForm(t, "/manual", url.Values{"model": {"iris"}})

	code, body := env.apiPredict(t)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "iris", body["model"])
	assert.Equal(t, "setosa", body["class_name"])
	assert.EqualValues(t, 0, body["class_id"])
	assert.Equal(t, "97.00%", body["confidence_display"])
}

func TestAPIPredictMissingFields(t *testing.T) {
	env := newTestEnv(t)
	env.backend.predict = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prediction":2}`))
	}
	env.postForm(t, "/manual", url.Values{"model": {"iris"}})

	code, body := env.apiPredict(t)
	assert.Equal(t, http.StatusOK, code)
	assert.NotContains(t, body, "class_name")
	assert.Equal(t, "N/A", body["confidence_display"])
}

func TestAPIPredictBackendError(t *testing.T) {
	env := newTestEnv(t)
	env.backend.predict = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"bad input"}`))
	}
	env.postForm(t, "/manual", url.Values{"model": {"iris"}})

	code, body := env.apiPredict(t)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.EqualValues(t, 422, body["status"])
	assert.Equal(t, `{"detail":"bad input"}`, body["body"])
	assert.Equal(t, "Error: 422\n{\"detail\":\"bad input\"}", body["error"])
}

func TestAPIHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "online", msg["state"])
	assert.Equal(t, true, msg["reachable"])
}

func TestAPISchema(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/schema/wine")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var schema struct {
		Model    string            `json:"model"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(body, &schema))
	assert.Equal(t, "wine", schema.Model)
	assert.Len(t, schema.Features, 13)

	resp, _ = env.get(t, "/api/schema/digits")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestLoggerMiddlewareSetsRequestID(t *testing.T) {
	var seen string
	handler := LoggerMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		io.WriteString(w, "ok")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get("X-Request-ID"))
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get(t, "/healthz")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("Content-Security-Policy"))
}

func TestMetricsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.postForm(t, "/manual", url.Values{"model": {"iris"}})
	env.apiPredict(t)
	env.upload(t, "broken.json", []byte("{"))

	resp, body := env.get(t, "/api/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var payload struct {
		Metrics struct {
			Predictions []struct {
				Model     string `json:"model"`
				Succeeded int    `json:"succeeded"`
			} `json:"predictions"`
			UploadsRejected int `json:"uploads_rejected"`
		} `json:"metrics"`
		Sessions int `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Metrics.Predictions, 1)
	assert.Equal(t, "iris", payload.Metrics.Predictions[0].Model)
	assert.Equal(t, 1, payload.Metrics.Predictions[0].Succeeded)
	assert.Equal(t, 1, payload.Metrics.UploadsRejected)
	assert.Equal(t, 1, payload.Sessions)

	resp, body = env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `mldash_predictions_total{model="iris",outcome="success"} 1`)
	assert.Contains(t, string(body), "mldash_sessions 1")
}

func TestMetricsCountStatusClients(t *testing.T) {
	env := newTestEnvWith(t, true)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(env.server.URL, "http")+"/ws/status", nil)
	require.NoError(t, err)
	defer conn.Close()

	clients := func() float64 {
		resp, err := env.client.Get(env.server.URL + "/api/metrics")
		if err != nil {
			return -1
		}
		defer resp.Body.Close()
		var payload struct {
			WSClients float64 `json:"ws_clients"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return -1
		}
		return payload.WSClients
	}
	assert.Eventually(t, func() bool { return clients() == 1 }, 5*time.Second, 20*time.Millisecond)

	_, body := env.get(t, "/metrics")
	assert.Contains(t, string(body), "mldash_ws_clients 1")
}
