package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mldash/backend"
	"mldash/ml"
)

type fakeBackend struct {
	health   backend.HealthStatus
	example  ml.InputRecord
	result   *ml.PredictionResult
	err      error
	predicts []ml.InputRecord
	kinds    []ml.ModelKind
}

func (f *fakeBackend) Health(ctx context.Context) backend.HealthStatus {
	return f.health
}

func (f *fakeBackend) Example(ctx context.Context, kind ml.ModelKind) (ml.InputRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.example.Clone(), nil
}

func (f *fakeBackend) Predict(ctx context.Context, kind ml.ModelKind, record ml.InputRecord) (*ml.PredictionResult, error) {
	f.kinds = append(f.kinds, kind)
	f.predicts = append(f.predicts, record)
	return f.result, f.err
}

func irisFields() map[string]float64 {
	return map[string]float64{"sepal_length": 6.1, "sepal_width": 2.8, "petal_length": 4.7, "petal_width": 1.2}
}

func TestNewStateUsesManualDefaults(t *testing.T) {
	snap := NewState("s1").Snapshot(false)
	assert.Equal(t, ml.Iris, snap.Kind)
	assert.Equal(t, ml.Manual, snap.Method)
	assert.True(t, snap.DataAvailable)
	assert.Equal(t, ml.InputRecord{"sepal_length": 5.1, "sepal_width": 3.5, "petal_length": 1.4, "petal_width": 0.2}, snap.Record)
	assert.Equal(t, 5.1, snap.ManualValues["sepal_length"])
	assert.False(t, snap.LastActive.IsZero())
}

func TestPredictFreshState(t *testing.T) {
	fb := &fakeBackend{result: &ml.PredictionResult{Kind: ml.Iris, Confidence: ml.NumericConfidence(0.97)}}
	w := NewWorkflow(fb, nil)

	_, err := w.Predict(context.Background(), NewState("s1"))
	require.NoError(t, err)
	require.Len(t, fb.predicts, 1)
	assert.Equal(t, 1.4, fb.predicts[0]["petal_length"])
}

func TestInputChangesClearOutcome(t *testing.T) {
	fb := &fakeBackend{example: ml.InputRecord{"sepal_length": 5.0}, result: &ml.PredictionResult{Kind: ml.Iris}}
	w := NewWorkflow(fb, nil)
	st := NewState("s1")

	changes := map[string]func(){
		"manual":  func() { w.SetManualInput(st, ml.Iris, irisFields()) },
		"upload":  func() { w.LoadUploadedRecord(st, "in.json", []byte(`{"sepal_length":5.1}`)) },
		"clear":   func() { w.ClearUpload(st) },
		"method":  func() { w.SetInputMethod(st, ml.Manual) },
		"kind":    func() { w.SetModelKind(st, ml.Iris) },
		"example": func() { w.LoadExample(context.Background(), st, ml.Iris) },
	}
	for name, change := range changes {
		w.SetInputMethod(st, ml.Manual)
		_, err := w.Predict(context.Background(), st)
		require.NoError(t, err, name)
		require.NotNil(t, st.Snapshot(false).Result, name)

		change()
		assert.Nil(t, st.Snapshot(false).Result, name)
	}
}

func TestSetManualInput(t *testing.T) {
	w := NewWorkflow(&fakeBackend{}, nil)
	st := NewState("s1")

	record, err := w.SetManualInput(st, ml.Iris, irisFields())
	require.NoError(t, err)
	assert.Len(t, record, 4)

	snap := st.Snapshot(false)
	assert.True(t, snap.DataAvailable)
	assert.Equal(t, ml.InputRecord{"sepal_length": 6.1, "sepal_width": 2.8, "petal_length": 4.7, "petal_width": 1.2}, snap.Record)
	assert.Equal(t, 6.1, snap.ManualValues["sepal_length"])
	assert.Empty(t, snap.Missing)
}

func TestSetManualInputIncompleteLeavesState(t *testing.T) {
	w := NewWorkflow(&fakeBackend{}, nil)
	st := NewState("s1")

	_, err := w.SetManualInput(st, ml.Wine, map[string]float64{"alcohol": 13})
	require.Error(t, err)
	snap := st.Snapshot(false)
	assert.False(t, snap.DataAvailable)
	assert.Equal(t, ml.Iris, snap.Kind)
}

func TestLoadUploadedRecordShapes(t *testing.T) {
	w := NewWorkflow(&fakeBackend{}, nil)

	wrapped, err := w.LoadUploadedRecord(NewState("a"), "wrapped.json", []byte(`{"input_test": {"a":1}}`))
	require.NoError(t, err)
	bare, err := w.LoadUploadedRecord(NewState("b"), "bare.json", []byte(`{"a":1}`))
	require.NoError(t, err)

	assert.Equal(t, wrapped, bare)
	assert.Len(t, bare, 1)
	assert.Contains(t, bare, "a")
}

func TestLoadUploadedRecordParseFailure(t *testing.T) {
	w := NewWorkflow(&fakeBackend{}, nil)
	st := NewState("s1")

	_, err := w.LoadUploadedRecord(st, "bad.json", []byte("sepal_length=5.1"))
	require.Error(t, err)
	assert.True(t, backend.IsParse(err))

	snap := st.Snapshot(true)
	assert.False(t, snap.DataAvailable)
	require.Len(t, snap.Notices, 1)
	assert.Equal(t, Failure, snap.Notices[0].Level)
	assert.Empty(t, st.Snapshot(false).Notices)
}

func TestLoadUploadedRecordFailureAfterSuccess(t *testing.T) {
	w := NewWorkflow(&fakeBackend{}, nil)
	st := NewState("s1")

	_, err := w.LoadUploadedRecord(st, "good.json", []byte(`{"sepal_length":5.1}`))
	require.NoError(t, err)
	_, err = w.LoadUploadedRecord(st, "bad.json", []byte(`{`))
	require.Error(t, err)

	assert.False(t, st.Snapshot(false).DataAvailable)
	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Contains(t, st.Record, "sepal_length")
}

func TestUploadModeLifecycle(t *testing.T) {
	w := NewWorkflow(&fakeBackend{}, nil)
	st := NewState("s1")

	w.SetInputMethod(st, ml.UploadedFile)
	assert.False(t, st.Snapshot(false).DataAvailable)

	_, err := w.LoadUploadedRecord(st, "in.json", []byte(`{"input_test":{"sepal_length":5.1}}`))
	require.NoError(t, err)
	snap := st.Snapshot(false)
	assert.True(t, snap.DataAvailable)
	assert.Equal(t, "in.json", snap.UploadName)
	assert.Equal(t, []string{"sepal_width", "petal_length", "petal_width"}, snap.Missing)

	w.SetInputMethod(st, ml.Manual)
	snap = st.Snapshot(false)
	assert.True(t, snap.DataAvailable)
	assert.Len(t, snap.Record, 4)

	w.SetInputMethod(st, ml.UploadedFile)
	assert.Contains(t, st.Snapshot(false).Record, "sepal_length")

	w.ClearUpload(st)
	assert.False(t, st.Snapshot(false).DataAvailable)
}

func TestSetModelKindRestoresManualValues(t *testing.T) {
	w := NewWorkflow(&fakeBackend{}, nil)
	st := NewState("s1")

	_, err := w.SetManualInput(st, ml.Iris, irisFields())
	require.NoError(t, err)

	w.SetModelKind(st, ml.Wine)
	snap := st.Snapshot(false)
	assert.Equal(t, ml.Wine, snap.Kind)
	assert.Len(t, snap.Record, 13)
	assert.Equal(t, 13.2, snap.Record["alcohol"])

	w.SetModelKind(st, ml.Iris)
	assert.Equal(t, 6.1, st.Snapshot(false).Record["sepal_length"])
}

func TestLoadExample(t *testing.T) {
	fb := &fakeBackend{example: ml.InputRecord{"alcohol": 14.1}}
	w := NewWorkflow(fb, nil)
	st := NewState("s1")

	record, err := w.LoadExample(context.Background(), st, ml.Wine)
	require.NoError(t, err)
	assert.Equal(t, ml.InputRecord{"alcohol": 14.1}, record)

	snap := st.Snapshot(true)
	assert.True(t, snap.DataAvailable)
	assert.Equal(t, ml.Wine, snap.Kind)
	require.Len(t, snap.Notices, 1)
	assert.Equal(t, "Example loaded!", snap.Notices[0].Message)
}

func TestLoadExampleFailureLeavesState(t *testing.T) {
	fb := &fakeBackend{err: &backend.HTTPError{StatusCode: 404, Body: "not found"}}
	w := NewWorkflow(fb, nil)
	st := NewState("s1")
	_, err := w.SetManualInput(st, ml.Iris, irisFields())
	require.NoError(t, err)

	_, err = w.LoadExample(context.Background(), st, ml.Wine)
	require.Error(t, err)

	snap := st.Snapshot(false)
	assert.Equal(t, ml.Iris, snap.Kind)
	assert.Equal(t, 6.1, snap.Record["sepal_length"])
	assert.True(t, snap.DataAvailable)
}

func TestPredictRequiresData(t *testing.T) {
	fb := &fakeBackend{}
	w := NewWorkflow(fb, nil)
	st := NewState("s1")
	w.SetInputMethod(st, ml.UploadedFile)

	_, err := w.Predict(context.Background(), st)
	assert.ErrorIs(t, err, ErrNoInput)
	assert.Empty(t, fb.predicts)
	assert.Equal(t, "Please provide input data using the sidebar", st.Snapshot(false).Error)
}

func TestPredictWineDefaults(t *testing.T) {
	id := int64(1)
	name := "cultivar_2"
	fb := &fakeBackend{result: &ml.PredictionResult{Kind: ml.Wine, ClassID: &id, ClassName: &name, Confidence: ml.NumericConfidence(0.88)}}
	w := NewWorkflow(fb, nil)
	st := NewState("s1")

	w.SetModelKind(st, ml.Wine)
	result, err := w.Predict(context.Background(), st)
	require.NoError(t, err)

	require.Len(t, fb.predicts, 1)
	assert.Equal(t, ml.Wine, fb.kinds[0])
	assert.Equal(t, 13.2, fb.predicts[0]["alcohol"])
	assert.Equal(t, 1050.0, fb.predicts[0]["proline"])
	assert.Equal(t, "cultivar_2", result.Label())
	assert.Equal(t, "88.00%", result.Confidence.String())
	assert.Same(t, result, st.Snapshot(false).Result)
}

func TestPredictFailureKeepsInput(t *testing.T) {
	fb := &fakeBackend{err: &backend.HTTPError{StatusCode: 500, Body: "model not loaded"}}
	w := NewWorkflow(fb, nil)
	st := NewState("s1")
	_, err := w.SetManualInput(st, ml.Iris, irisFields())
	require.NoError(t, err)

	_, err = w.Predict(context.Background(), st)
	httpErr, ok := backend.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, 500, httpErr.StatusCode)
	assert.Equal(t, "model not loaded", httpErr.Body)

	snap := st.Snapshot(false)
	assert.True(t, snap.DataAvailable)
	assert.Len(t, snap.Record, 4)
	assert.Equal(t, "Error: 500\nmodel not loaded", snap.Error)

	// retry with the same input
	fb.err = nil
	fb.result = &ml.PredictionResult{Kind: ml.Iris, Confidence: ml.RawConfidence(ml.NotAvailable)}
	_, err = w.Predict(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, fb.predicts[0], fb.predicts[1])
	assert.Empty(t, st.Snapshot(false).Error)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "Error: 503\nbusy", ErrorMessage(&backend.HTTPError{StatusCode: 503, Body: "busy"}))
	assert.Equal(t, "Prediction failed: boom", ErrorMessage(errors.New("boom")))
}

func TestCheckHealth(t *testing.T) {
	fb := &fakeBackend{health: backend.HealthStatus{State: backend.Offline, Err: &backend.ConnectionError{Op: "GET", URL: "x", Err: errors.New("refused")}}}
	status := NewWorkflow(fb, nil).CheckHealth(context.Background())
	assert.False(t, status.Reachable)
	assert.True(t, backend.IsConnection(status.Err))
}

type countingRecorder struct {
	predictions []error
	uploads     []error
	examples    []error
}

func (r *countingRecorder) RecordPrediction(kind ml.ModelKind, d time.Duration, err error) {
	r.predictions = append(r.predictions, err)
}

func (r *countingRecorder) RecordUpload(err error) {
	r.uploads = append(r.uploads, err)
}

func (r *countingRecorder) RecordExample(kind ml.ModelKind, err error) {
	r.examples = append(r.examples, err)
}

func TestRecorderSeesBackendCalls(t *testing.T) {
	fb := &fakeBackend{example: ml.InputRecord{"sepal_length": 5.0}, result: &ml.PredictionResult{Kind: ml.Iris}}
	rec := &countingRecorder{}
	w := NewWorkflow(fb, nil)
	w.SetRecorder(rec)
	st := NewState("s1")
	w.SetInputMethod(st, ml.UploadedFile)

	// no data, so no backend call is recorded
	_, err := w.Predict(context.Background(), st)
	require.ErrorIs(t, err, ErrNoInput)
	assert.Empty(t, rec.predictions)

	_, err = w.LoadExample(context.Background(), st, ml.Iris)
	require.NoError(t, err)
	_, err = w.Predict(context.Background(), st)
	require.NoError(t, err)
	w.LoadUploadedRecord(st, "x.json", []byte("[1]"))

	require.Len(t, rec.examples, 1)
	assert.NoError(t, rec.examples[0])
	require.Len(t, rec.predictions, 1)
	assert.NoError(t, rec.predictions[0])
	require.Len(t, rec.uploads, 1)
	assert.True(t, backend.IsParse(rec.uploads[0]))

	w.SetRecorder(nil)
	_, err = w.Predict(context.Background(), st)
	require.Error(t, err)
	assert.Len(t, rec.predictions, 1)
}
