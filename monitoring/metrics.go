package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"mldash/backend"
	"mldash/ml"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// ModelStat 单个模型的预测统计
type ModelStat struct {
	Model        ml.ModelKind     `json:"model"`
	Requests     int64            `json:"requests"`
	Succeeded    int64            `json:"succeeded"`
	Failed       map[string]int64 `json:"failed"`
	TotalLatency time.Duration    `json:"-"`
	LastLatency  time.Duration    `json:"-"`
	AvgLatencyMS float64          `json:"avg_latency_ms"`
	LastAt       time.Time        `json:"last_at,omitempty"`
}

// MetricsSnapshot 指标快照
type MetricsSnapshot struct {
	Uptime          string       `json:"uptime"`
	Predictions     []*ModelStat `json:"predictions"`
	UploadsAccepted int64        `json:"uploads_accepted"`
	UploadsRejected int64        `json:"uploads_rejected"`
	ExamplesLoaded  int64        `json:"examples_loaded"`
	ExamplesFailed  int64        `json:"examples_failed"`
}

// PredictionMetrics 预测指标收集器
// It satisfies session.Recorder.
type PredictionMetrics struct {
	mu sync.RWMutex

	models          map[ml.ModelKind]*ModelStat
	uploadsAccepted int64
	uploadsRejected int64
	examplesLoaded  int64
	examplesFailed  int64

	startTime time.Time
}

// NewPredictionMetrics 创建指标收集器
func NewPredictionMetrics() *PredictionMetrics {
	return &PredictionMetrics{
		models:    make(map[ml.ModelKind]*ModelStat),
		startTime: time.Now(),
	}
}

// FailureKind 失败分类: connection, http_<code>, parse or other.
func FailureKind(err error) string {
	if httpErr, ok := backend.AsHTTPError(err); ok {
		return fmt.Sprintf("http_%d", httpErr.StatusCode)
	}
	switch {
	case backend.IsConnection(err):
		return "connection"
	case backend.IsParse(err):
		return "parse"
	default:
		return "other"
	}
}

// RecordPrediction 记录一次后端预测调用
func (pm *PredictionMetrics) RecordPrediction(kind ml.ModelKind, d time.Duration, err error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	stat, ok := pm.models[kind]
	if !ok {
		stat = &ModelStat{Model: kind, Failed: make(map[string]int64)}
		pm.models[kind] = stat
	}

	stat.Requests++
	stat.TotalLatency += d
	stat.LastLatency = d
	stat.LastAt = time.Now()
	if err != nil {
		stat.Failed[FailureKind(err)]++
		return
	}
	stat.Succeeded++
}

// RecordUpload 记录文件上传结果
func (pm *PredictionMetrics) RecordUpload(err error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if err != nil {
		pm.uploadsRejected++
		return
	}
	pm.uploadsAccepted++
}

// RecordExample 记录示例加载结果
func (pm *PredictionMetrics) RecordExample(kind ml.ModelKind, err error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if err != nil {
		pm.examplesFailed++
		return
	}
	pm.examplesLoaded++
}

// Snapshot 返回副本, 模型按名称排序
func (pm *PredictionMetrics) Snapshot() MetricsSnapshot {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	snap := MetricsSnapshot{
		Uptime:          pm.GetUptime().Round(time.Second).String(),
		Predictions:     make([]*ModelStat, 0, len(pm.models)),
		UploadsAccepted: pm.uploadsAccepted,
		UploadsRejected: pm.uploadsRejected,
		ExamplesLoaded:  pm.examplesLoaded,
		ExamplesFailed:  pm.examplesFailed,
	}
	for _, stat := range pm.models {
		statCopy := *stat
		statCopy.Failed = make(map[string]int64, len(stat.Failed))
		for k, v := range stat.Failed {
			statCopy.Failed[k] = v
		}
		if stat.Requests > 0 {
			statCopy.AvgLatencyMS = float64(stat.TotalLatency.Microseconds()) / 1000 / float64(stat.Requests)
		}
		snap.Predictions = append(snap.Predictions, &statCopy)
	}
	sort.Slice(snap.Predictions, func(i, j int) bool {
		return snap.Predictions[i].Model < snap.Predictions[j].Model
	})
	return snap
}

// ExportPrometheus 导出Prometheus文本格式
func (pm *PredictionMetrics) ExportPrometheus() string {
	snap := pm.Snapshot()
	var b strings.Builder

	writeHeader := func(name string, typ MetricType, help string) {
		fmt.Fprintf(&b, "# HELP %s %s\n", name, help)
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, typ)
	}

	writeHeader("mldash_predictions_total", MetricTypeCounter, "Prediction requests sent to the backend")
	for _, stat := range snap.Predictions {
		fmt.Fprintf(&b, "mldash_predictions_total{model=%q,outcome=\"success\"} %d\n", stat.Model, stat.Succeeded)
		kinds := make([]string, 0, len(stat.Failed))
		for k := range stat.Failed {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "mldash_predictions_total{model=%q,outcome=%q} %d\n", stat.Model, k, stat.Failed[k])
		}
	}

	writeHeader("mldash_prediction_latency_avg_ms", MetricTypeGauge, "Average prediction round trip in milliseconds")
	for _, stat := range snap.Predictions {
		fmt.Fprintf(&b, "mldash_prediction_latency_avg_ms{model=%q} %f\n", stat.Model, stat.AvgLatencyMS)
	}

	writeHeader("mldash_uploads_total", MetricTypeCounter, "Uploaded input files")
	fmt.Fprintf(&b, "mldash_uploads_total{outcome=\"accepted\"} %d\n", snap.UploadsAccepted)
	fmt.Fprintf(&b, "mldash_uploads_total{outcome=\"rejected\"} %d\n", snap.UploadsRejected)

	writeHeader("mldash_examples_total", MetricTypeCounter, "Example inputs requested from the backend")
	fmt.Fprintf(&b, "mldash_examples_total{outcome=\"loaded\"} %d\n", snap.ExamplesLoaded)
	fmt.Fprintf(&b, "mldash_examples_total{outcome=\"failed\"} %d\n", snap.ExamplesFailed)

	writeHeader("mldash_goroutines", MetricTypeGauge, "Number of goroutines")
	fmt.Fprintf(&b, "mldash_goroutines %d\n", runtime.NumGoroutine())

	return b.String()
}

// GetUptime 获取运行时间
func (pm *PredictionMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// GetSystemStats 获取系统统计
func (pm *PredictionMetrics) GetSystemStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"uptime":     pm.GetUptime().String(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc":      m.Alloc,
			"sys":        m.Sys,
			"heap_alloc": m.HeapAlloc,
			"heap_inuse": m.HeapInuse,
			"gc_count":   m.NumGC,
		},
		"num_cpu": runtime.NumCPU(),
	}
}
