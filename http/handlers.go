package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"mldash/backend"
	"mldash/ml"
	"mldash/monitoring"
	"mldash/session"
)

const sessionCookie = "mldash_session"

// Handlers serves the dashboard page, its form posts and the JSON API.
type Handlers struct {
	workflow *session.Workflow
	sessions *session.Store
	monitor  *monitoring.StatusMonitor
	metrics  *monitoring.PredictionMetrics
	log      *zap.Logger

	maxUploadBytes int64
	backendURL     string
}

// NewHandlers wires the workflow and session store. monitor and metrics may
// be nil, in which case their routes are not registered.
func NewHandlers(workflow *session.Workflow, sessions *session.Store, monitor *monitoring.StatusMonitor, metrics *monitoring.PredictionMetrics, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		workflow:       workflow,
		sessions:       sessions,
		monitor:        monitor,
		metrics:        metrics,
		log:            log.Named("http"),
		maxUploadBytes: DefaultServerConfig().MaxUploadBytes,
		backendURL:     DefaultServerConfig().BackendURL,
	}
}

func RegisterHandlers(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("GET /{$}", h.handleDashboard)
	mux.Handle("GET /static/", staticHandler())
	mux.HandleFunc("POST /settings", h.handleSettings)
	mux.HandleFunc("POST /manual", h.handleManual)
	mux.Handle("POST /upload", RequestSizeMiddleware(h.maxUploadBytes)(http.HandlerFunc(h.handleUpload)))
	mux.HandleFunc("POST /upload/clear", h.handleClearUpload)
	mux.HandleFunc("POST /example", h.handleExample)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /healthz", handleLiveness)
	if h.monitor != nil {
		mux.Handle("GET /ws/status", h.monitor)
	}
}

func handleLiveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loadSession returns the caller's state, issuing a cookie for new sessions.
func (h *Handlers) loadSession(w http.ResponseWriter, r *http.Request) *session.State {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}

	st, created := h.sessions.Get(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    st.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return st
}

func (h *Handlers) handleDashboard(w http.ResponseWriter, r *http.Request) {
	st := h.loadSession(w, r)

	health := h.workflow.CheckHealth(r.Context())
	if h.monitor != nil {
		h.monitor.Observe(health)
	}

	view := newDashboardView(st.Snapshot(true), health, h.backendURL)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderDashboard(w, view); err != nil {
		h.log.Error("render dashboard failed", zap.Error(err))
	}
}

func (h *Handlers) handleSettings(w http.ResponseWriter, r *http.Request) {
	st := h.loadSession(w, r)
	current := st.Snapshot(false)

	if v := r.FormValue("model"); v != "" {
		kind, err := ml.ParseModelKind(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if kind != current.Kind {
			h.workflow.SetModelKind(st, kind)
		}
	}
	if v := r.FormValue("method"); v != "" {
		method, err := ml.ParseInputMethod(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if method != current.Method {
			h.workflow.SetInputMethod(st, method)
		}
	}

	redirectHome(w, r)
}

func (h *Handlers) handleManual(w http.ResponseWriter, r *http.Request) {
	st := h.loadSession(w, r)
	current := st.Snapshot(false)

	kind := current.Kind
	if v := r.FormValue("model"); v != "" {
		parsed, err := ml.ParseModelKind(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		kind = parsed
	}

	previous := current.ManualValues
	if kind != current.Kind {
		previous = ml.Defaults(kind)
	}

	if _, err := h.workflow.SetManualInput(st, kind, collectFields(r, kind, previous)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	redirectHome(w, r)
}

// collectFields reads one form value per feature and clamps it into the
// feature's range. Blank or unparsable values keep the previous value.
func collectFields(r *http.Request, kind ml.ModelKind, previous map[string]float64) map[string]float64 {
	fields := make(map[string]float64, len(ml.Schema(kind)))
	for _, f := range ml.Schema(kind) {
		v, ok := previous[f.Name]
		if !ok {
			v = f.Default
		}
		if raw := strings.TrimSpace(r.FormValue(f.Name)); raw != "" {
			if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
				v = parsed
			}
		}
		fields[f.Name] = f.Clamp(v)
	}
	return fields
}

func (h *Handlers) handleUpload(w http.ResponseWriter, r *http.Request) {
	st := h.loadSession(w, r)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "uploaded file is too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "a JSON file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contents, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read uploaded file", http.StatusBadRequest)
		return
	}

	// parse failures are reported on the page through a notice
	h.workflow.LoadUploadedRecord(st, header.Filename, contents)
	redirectHome(w, r)
}

func (h *Handlers) handleClearUpload(w http.ResponseWriter, r *http.Request) {
	h.workflow.ClearUpload(h.loadSession(w, r))
	redirectHome(w, r)
}

func (h *Handlers) handleExample(w http.ResponseWriter, r *http.Request) {
	st := h.loadSession(w, r)
	kind := st.Snapshot(false).Kind

	// failures are reported on the page through a notice
	h.workflow.LoadExample(r.Context(), st, kind)
	redirectHome(w, r)
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	st := h.loadSession(w, r)

	if _, err := h.workflow.Predict(r.Context(), st); err != nil && backend.IsConnection(err) {
		h.log.Warn("backend unreachable during prediction", zap.String("request_id", GetRequestID(r.Context())))
	}
	redirectHome(w, r)
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
