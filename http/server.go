// Package http 提供仪表盘HTTP服务器功能
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
	log    *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	MaxUploadBytes int64
	BackendURL     string
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8501,
		ReadTimeout:    30 * time.Second,
		MaxUploadBytes: 1 << 20,
		BackendURL:     "http://localhost:8000",
	}
}

// NewServer 创建HTTP服务器
// No write timeout is set: a prediction blocks until the backend answers.
func NewServer(config ServerConfig, h *Handlers) *Server {
	mux := http.NewServeMux()
	h.maxUploadBytes = config.MaxUploadBytes
	h.backendURL = config.BackendURL

	// 注册所有处理器
	RegisterHandlers(mux, h)
	RegisterAPIHandlers(mux, h)

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware(h.log), // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware(h.log),   // 2. 日志中间件
		SecurityHeadersMiddleware, // 3. 安全头中间件
	)

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           chain(mux),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       config.ReadTimeout,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		log:    h.log,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.log.Info("starting HTTP server", zap.String("addr", s.server.Addr), zap.String("backend", s.config.BackendURL))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.log.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Handler 返回完整的处理链, 供测试使用
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
