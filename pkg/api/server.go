package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/LENAX/ctas-pipeline/pkg/core/engine"
	log "github.com/sirupsen/logrus"
)

// ServerConfig API服务器配置
type ServerConfig struct {
	ListenAddr   string        // 监听地址，如 ":8080"
	ReadTimeout  time.Duration // 读取超时
	WriteTimeout time.Duration // 写入超时
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig(listenAddr string) ServerConfig {
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	return ServerConfig{
		ListenAddr:   listenAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// APIServer HTTP API服务器
type APIServer struct {
	engine     *engine.Engine
	httpServer *http.Server
	config     ServerConfig
	version    string
}

// NewAPIServer 创建API服务器
func NewAPIServer(eng *engine.Engine, config ServerConfig, version string) *APIServer {
	s := &APIServer{
		engine:  eng,
		config:  config,
		version: version,
	}
	s.httpServer = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      SetupRouter(eng, version),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler 返回路由，便于测试或嵌入其他服务器
func (s *APIServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start 启动服务器，阻塞直到服务器关闭
func (s *APIServer) Start() error {
	log.WithField("addr", s.config.ListenAddr).Info("[API] 服务器启动")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server listen failed: %w", err)
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *APIServer) Shutdown(ctx context.Context) error {
	log.Info("[API] 正在关闭服务器")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("[API] 服务器已停止")
	return nil
}

// Addr 获取服务器地址
func (s *APIServer) Addr() string {
	return s.config.ListenAddr
}
