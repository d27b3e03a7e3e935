// Package monitoring pushes backend health to open dashboards over websockets.
package monitoring

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"mldash/backend"
)

// HealthChecker is satisfied by session.Workflow.
type HealthChecker interface {
	CheckHealth(ctx context.Context) backend.HealthStatus
}

// HealthMessage is the payload of a HealthUpdate message.
type HealthMessage struct {
	Reachable    bool                `json:"reachable"`
	State        backend.HealthState `json:"state"`
	Message      string              `json:"message"`
	ModelsLoaded []string            `json:"models_loaded"`
	CheckedAt    time.Time           `json:"checked_at"`
}

func NewHealthMessage(status backend.HealthStatus) HealthMessage {
	return HealthMessage{
		Reachable:    status.Reachable,
		State:        status.State,
		Message:      status.Message(),
		ModelsLoaded: status.ModelsLoaded,
		CheckedAt:    status.CheckedAt,
	}
}

// StatusMonitor polls backend health and publishes changes to the hub.
type StatusMonitor struct {
	hub      *WebSocketHub
	checker  HealthChecker
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	running bool
	latest  *backend.HealthStatus
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewStatusMonitor(checker HealthChecker, interval time.Duration, log *zap.Logger) *StatusMonitor {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("monitor")
	return &StatusMonitor{
		hub:      NewWebSocketHub(log),
		checker:  checker,
		interval: interval,
		log:      log,
	}
}

// Start launches the hub and the poll loop.
func (m *StatusMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return errors.New("monitor is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.hub.Start()
	}()
	go func() {
		defer m.wg.Done()
		m.poll(ctx)
	}()

	m.log.Info("status monitor started", zap.Duration("interval", m.interval))
	return nil
}

// Stop stops polling, closes every client connection and waits.
func (m *StatusMonitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return errors.New("monitor is not running")
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.hub.Stop()
	m.wg.Wait()
	m.log.Info("status monitor stopped")
	return nil
}

func (m *StatusMonitor) poll(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh(ctx)
	for {
		select {
		case <-ticker.C:
			m.Refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Refresh runs a health check now and publishes it if it changed.
func (m *StatusMonitor) Refresh(ctx context.Context) backend.HealthStatus {
	status := m.checker.CheckHealth(ctx)
	m.Observe(status)
	return status
}

// Observe records a status obtained elsewhere, e.g. by a page render.
func (m *StatusMonitor) Observe(status backend.HealthStatus) {
	m.mu.Lock()
	changed := m.latest == nil || !m.latest.Equal(status)
	m.latest = &status
	m.mu.Unlock()

	if !changed {
		return
	}
	m.log.Info("backend status changed", zap.String("state", string(status.State)), zap.Strings("models", status.ModelsLoaded))
	if err := m.hub.Publish(HealthUpdate, NewHealthMessage(status)); err != nil {
		m.log.Error("publish health failed", zap.Error(err))
	}
}

// Latest returns the last observed status.
func (m *StatusMonitor) Latest() (backend.HealthStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return backend.HealthStatus{}, false
	}
	return *m.latest, true
}

// ServeHTTP upgrades the request and subscribes it to status updates.
func (m *StatusMonitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.hub.HandleWebSocket(w, r)
}

func (m *StatusMonitor) Hub() *WebSocketHub {
	return m.hub
}
