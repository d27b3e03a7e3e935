package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mldash/backend"
	"mldash/ml"
)

// ErrNoInput is returned by Predict when the session has no data available.
var ErrNoInput = errors.New("no input data available")

// Backend is the prediction service contract the workflow consumes.
type Backend interface {
	Health(ctx context.Context) backend.HealthStatus
	Example(ctx context.Context, kind ml.ModelKind) (ml.InputRecord, error)
	Predict(ctx context.Context, kind ml.ModelKind, record ml.InputRecord) (*ml.PredictionResult, error)
}

// Recorder receives the outcome of uploads and backend calls.
type Recorder interface {
	RecordPrediction(kind ml.ModelKind, d time.Duration, err error)
	RecordUpload(err error)
	RecordExample(kind ml.ModelKind, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordPrediction(ml.ModelKind, time.Duration, error) {}
func (nopRecorder) RecordUpload(error)                                  {}
func (nopRecorder) RecordExample(ml.ModelKind, error)                   {}

// Workflow mediates every input change and backend call of a session.
type Workflow struct {
	backend  Backend
	recorder Recorder
	log      *zap.Logger
}

func NewWorkflow(b Backend, log *zap.Logger) *Workflow {
	if log == nil {
		log = zap.NewNop()
	}
	return &Workflow{backend: b, recorder: nopRecorder{}, log: log.Named("workflow")}
}

// SetRecorder installs r; nil restores the no-op recorder.
func (w *Workflow) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	w.recorder = r
}

// CheckHealth always returns a status; failures are reported through it.
func (w *Workflow) CheckHealth(ctx context.Context) backend.HealthStatus {
	status := w.backend.Health(ctx)
	if status.Err != nil {
		w.log.Warn("backend health check failed", zap.String("state", string(status.State)), zap.Error(status.Err))
	}
	return status
}

// SetModelKind switches the classifier. In manual mode the record is rebuilt
// from that classifier's manual values.
func (w *Workflow) SetModelKind(st *State, kind ml.ModelKind) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.clearOutcome()
	st.Kind = kind
	st.touch()
	w.refreshInput(st)
}

// SetInputMethod switches between manual input and the uploaded file.
func (w *Workflow) SetInputMethod(st *State, method ml.InputMethod) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.clearOutcome()
	st.Method = method
	st.touch()
	w.refreshInput(st)
}

// refreshInput re-derives the record the way a page re-run would. Caller holds mu.
func (w *Workflow) refreshInput(st *State) {
	switch st.Method {
	case ml.Manual:
		record, err := ml.NewRecord(st.Kind, st.manualValues(st.Kind))
		if err != nil {
			w.log.Error("manual defaults incomplete", zap.String("model", string(st.Kind)), zap.Error(err))
			st.DataAvailable = false
			return
		}
		st.Record = record
		st.DataAvailable = true
	case ml.UploadedFile:
		if st.uploaded == nil {
			st.DataAvailable = false
			return
		}
		st.Record = st.uploaded.Clone()
		st.DataAvailable = true
	}
}

// SetManualInput assembles a record keyed exactly per the schema of kind.
// Values are expected to be clamped by the caller. On error the state is untouched.
func (w *Workflow) SetManualInput(st *State, kind ml.ModelKind, fields map[string]float64) (ml.InputRecord, error) {
	record, err := ml.NewRecord(kind, fields)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	values := make(map[string]float64, len(record))
	for _, f := range ml.Schema(kind) {
		values[f.Name] = fields[f.Name]
	}
	st.clearOutcome()
	st.manual[kind] = values
	st.Kind = kind
	st.Method = ml.Manual
	st.Record = record
	st.DataAvailable = true
	st.touch()
	return record.Clone(), nil
}

// LoadUploadedRecord parses an uploaded file. A parse failure clears
// DataAvailable but keeps the previous record.
func (w *Workflow) LoadUploadedRecord(st *State, name string, contents []byte) (ml.InputRecord, error) {
	record, err := ParseUpload(contents)
	w.recorder.RecordUpload(err)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.touch()
	st.clearOutcome()

	if err != nil {
		st.DataAvailable = false
		st.uploaded = nil
		st.uploadName = ""
		st.notify(Failure, "Invalid JSON file: "+err.Error())
		w.log.Info("upload rejected", zap.String("session", st.ID), zap.String("file", name), zap.Error(err))
		return nil, err
	}

	st.Method = ml.UploadedFile
	st.uploaded = record
	st.uploadName = name
	st.Record = record.Clone()
	st.DataAvailable = true
	w.log.Info("upload accepted", zap.String("session", st.ID), zap.String("file", name), zap.Strings("keys", record.Keys()))
	if err := record.Validate(st.Kind); err != nil {
		w.log.Debug("uploaded record does not match schema", zap.String("session", st.ID), zap.Error(err))
	}
	return record.Clone(), nil
}

// ClearUpload forgets the uploaded file.
func (w *Workflow) ClearUpload(st *State) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.uploaded = nil
	st.uploadName = ""
	st.touch()
	st.clearOutcome()
	if st.Method == ml.UploadedFile {
		st.DataAvailable = false
	}
}

// LoadExample fetches the backend example for kind. The state is only
// changed when the example was retrieved.
func (w *Workflow) LoadExample(ctx context.Context, st *State, kind ml.ModelKind) (ml.InputRecord, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.touch()

	record, err := w.backend.Example(ctx, kind)
	w.recorder.RecordExample(kind, err)
	if err != nil {
		st.notify(Failure, "Could not load example: "+err.Error())
		w.log.Warn("load example failed", zap.String("session", st.ID), zap.String("model", string(kind)), zap.Error(err))
		return nil, err
	}

	st.clearOutcome()
	st.Kind = kind
	st.Record = record
	st.DataAvailable = true
	st.notify(Success, "Example loaded!")
	return record.Clone(), nil
}

// Predict sends the current record. It never changes the input, so a
// failed prediction can be retried as is.
func (w *Workflow) Predict(ctx context.Context, st *State) (*ml.PredictionResult, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.touch()

	if !st.DataAvailable || st.Record == nil {
		st.lastResult = nil
		st.lastError = ErrorMessage(ErrNoInput)
		return nil, ErrNoInput
	}

	start := time.Now()
	result, err := w.backend.Predict(ctx, st.Kind, st.Record.Clone())
	w.recorder.RecordPrediction(st.Kind, time.Since(start), err)
	if err != nil {
		st.lastResult = nil
		st.lastError = ErrorMessage(err)
		w.log.Warn("prediction failed", zap.String("session", st.ID), zap.String("model", string(st.Kind)), zap.Error(err))
		return nil, err
	}

	st.lastResult = result
	st.lastError = ""
	w.log.Info("prediction",
		zap.String("session", st.ID),
		zap.String("model", string(st.Kind)),
		zap.String("class", result.Label()),
		zap.String("confidence", result.Confidence.String()),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// ErrorMessage renders err for the operator. Backend HTTP errors are shown verbatim.
func ErrorMessage(err error) string {
	if errors.Is(err, ErrNoInput) {
		return "Please provide input data using the sidebar"
	}
	if httpErr, ok := backend.AsHTTPError(err); ok {
		return httpErr.Error()
	}
	return "Prediction failed: " + err.Error()
}
