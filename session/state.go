// Package session holds per-session dashboard state and the prediction
// request workflow that mutates it.
package session

import (
	"sync"
	"time"

	"mldash/ml"
)

// State is the input state of one dashboard session. All access goes
// through Workflow, which holds mu for the duration of each operation so a
// session never has more than one outstanding backend call.
type State struct {
	mu sync.Mutex

	ID            string
	Kind          ml.ModelKind
	Method        ml.InputMethod
	Record        ml.InputRecord
	DataAvailable bool

	manual     map[ml.ModelKind]map[string]float64
	uploaded   ml.InputRecord
	uploadName string

	lastResult *ml.PredictionResult
	lastError  string
	notices    []Notice
	touched    time.Time
}

// NoticeLevel maps onto the alert styles of the page.
type NoticeLevel string

const (
	Success NoticeLevel = "success"
	Info    NoticeLevel = "info"
	Warning NoticeLevel = "warning"
	Failure NoticeLevel = "error"
)

// Notice is a one-shot message shown on the next render.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// NewState starts in manual Iris mode with the default values, like a fresh page.
func NewState(id string) *State {
	st := &State{
		ID:      id,
		Kind:    ml.Iris,
		Method:  ml.Manual,
		manual:  make(map[ml.ModelKind]map[string]float64),
		touched: time.Now(),
	}
	// the manual widgets render at their defaults, so those are the input
	if record, err := ml.NewRecord(st.Kind, st.manualValues(st.Kind)); err == nil {
		st.Record = record
		st.DataAvailable = true
	}
	return st
}

// Snapshot is a read-only copy of State for rendering and JSON.
type Snapshot struct {
	ID            string               `json:"id"`
	Kind          ml.ModelKind         `json:"model"`
	Method        ml.InputMethod       `json:"input_method"`
	Record        ml.InputRecord       `json:"input_data,omitempty"`
	DataAvailable bool                 `json:"data_available"`
	ManualValues  map[string]float64   `json:"manual_values"`
	UploadName    string               `json:"upload_name,omitempty"`
	Missing       []string             `json:"missing_features,omitempty"`
	Result        *ml.PredictionResult `json:"result,omitempty"`
	Error         string               `json:"error,omitempty"`
	Notices       []Notice             `json:"notices,omitempty"`
	LastActive    time.Time            `json:"last_active"`
}

// Snapshot copies the state. When consume is true pending notices are
// handed over and cleared.
func (s *State) Snapshot(consume bool) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:            s.ID,
		Kind:          s.Kind,
		Method:        s.Method,
		DataAvailable: s.DataAvailable,
		ManualValues:  s.manualValues(s.Kind),
		UploadName:    s.uploadName,
		Result:        s.lastResult,
		Error:         s.lastError,
		Notices:       append([]Notice(nil), s.notices...),
		LastActive:    s.touched,
	}
	if s.DataAvailable {
		snap.Record = s.Record.Clone()
		snap.Missing = s.Record.Missing(s.Kind)
	}
	if consume {
		s.notices = nil
	}
	return snap
}

// manualValues returns the operator's last manual values for kind, falling
// back to the widget defaults. Caller holds mu.
func (s *State) manualValues(kind ml.ModelKind) map[string]float64 {
	values := ml.Defaults(kind)
	for k, v := range s.manual[kind] {
		values[k] = v
	}
	return values
}

func (s *State) notify(level NoticeLevel, message string) {
	s.notices = append(s.notices, Notice{Level: level, Message: message})
}

func (s *State) clearOutcome() {
	s.lastResult = nil
	s.lastError = ""
}

func (s *State) touch() {
	s.touched = time.Now()
}
