// Package http 提供API处理器
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"mldash/backend"
	"mldash/ml"
	"mldash/monitoring"
	"mldash/session"
)

// RegisterAPIHandlers 注册所有API处理器
func RegisterAPIHandlers(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("GET /api/health", h.handleAPIHealth)
	mux.HandleFunc("GET /api/schema/{model}", handleAPISchema)
	mux.HandleFunc("GET /api/session", h.handleAPISession)
	mux.HandleFunc("POST /api/predict", h.handleAPIPredict)
	if h.metrics != nil {
		mux.HandleFunc("GET /api/metrics", h.handleAPIMetrics)
		mux.HandleFunc("GET /metrics", h.handlePrometheus)
	}
}

func (h *Handlers) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	status := h.workflow.CheckHealth(r.Context())
	if h.monitor != nil {
		h.monitor.Observe(status)
	}
	respondJSON(w, http.StatusOK, monitoring.NewHealthMessage(status))
}

func handleAPISchema(w http.ResponseWriter, r *http.Request) {
	kind, err := ml.ParseModelKind(r.PathValue("model"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"model":    kind,
		"title":    kind.Title(),
		"features": ml.Schema(kind),
	})
}

func (h *Handlers) handleAPISession(w http.ResponseWriter, r *http.Request) {
	st := h.loadSession(w, r)
	respondJSON(w, http.StatusOK, st.Snapshot(false))
}

type predictResponse struct {
	*ml.PredictionResult
	ConfidenceDisplay string `json:"confidence_display"`
}

type predictErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`
}

func (h *Handlers) handleAPIPredict(w http.ResponseWriter, r *http.Request) {
	st := h.loadSession(w, r)

	result, err := h.workflow.Predict(r.Context(), st)
	if err != nil {
		resp := predictErrorResponse{Error: session.ErrorMessage(err)}
		code := http.StatusBadGateway
		if errors.Is(err, session.ErrNoInput) {
			code = http.StatusConflict
		}
		if httpErr, ok := backend.AsHTTPError(err); ok {
			resp.Status = httpErr.StatusCode
			resp.Body = httpErr.Body
		}
		respondJSON(w, code, resp)
		return
	}

	respondJSON(w, http.StatusOK, predictResponse{
		PredictionResult:  result,
		ConfidenceDisplay: result.Confidence.String(),
	})
}

func (h *Handlers) handleAPIMetrics(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"metrics":    h.metrics.Snapshot(),
		"system":     h.metrics.GetSystemStats(),
		"sessions":   h.sessions.Len(),
		"ws_clients": 0,
	}
	if h.monitor != nil {
		payload["ws_clients"] = h.monitor.Hub().ClientCount()
	}
	respondJSON(w, http.StatusOK, payload)
}

func (h *Handlers) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprint(w, h.metrics.ExportPrometheus())
	fmt.Fprintf(w, "# HELP mldash_sessions Live dashboard sessions\n# TYPE mldash_sessions gauge\nmldash_sessions %d\n", h.sessions.Len())
	if h.monitor != nil {
		fmt.Fprintf(w, "# HELP mldash_ws_clients Open status websocket connections\n# TYPE mldash_ws_clients gauge\nmldash_ws_clients %d\n", h.monitor.Hub().ClientCount())
	}
}

// respondJSON 统一JSON响应
func respondJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// an encode error means the client went away
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}
