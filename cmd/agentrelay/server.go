package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentrelay/api/handlers"
	"github.com/BaSui01/agentrelay/internal/server"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 暴露编排智能体的 HTTP / WebSocket 服务
type Server struct {
	app      *app
	registry *prometheus.Registry
	logger   *zap.Logger

	healthHandler *handlers.HealthHandler
	agentHandler  *handlers.AgentHandler
	chatHandler   *handlers.ChatHandler
}

// NewServer 创建服务器并注册就绪检查
func NewServer(a *app, registry *prometheus.Registry, logger *zap.Logger) *Server {
	s := &Server{
		app:           a,
		registry:      registry,
		logger:        logger,
		healthHandler: handlers.NewHealthHandler(logger),
		agentHandler:  handlers.NewAgentHandler(a.orchestrator, logger),
		chatHandler: handlers.NewChatHandler(a.orchestrator, handlers.ChatConfig{
			MaxConcurrentTurns: int64(a.cfg.Server.MaxConcurrentTurns),
			TurnTimeout:        a.cfg.Server.TurnTimeout,
			AllowedOrigins:     a.cfg.Server.AllowedOrigins,
		}, a.metrics, logger),
	}
	s.healthHandler.RegisterCheck(handlers.NewProviderHealthCheck(a.provider))
	return s
}

// Handler 构建带中间件链的路由。ctx 控制限流器后台清理的生命周期。
func (s *Server) Handler(ctx context.Context) http.Handler {
	cfg := s.app.cfg.Server
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// API 路由
	mux.HandleFunc("GET /v1/agent", s.agentHandler.HandleGetAgent)
	mux.Handle("GET /v1/chat", s.chatHandler)

	if cfg.MetricsPort == 0 {
		mux.Handle("GET /metrics", s.metricsHandler())
	}

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.app.metrics),
		OTelTracing(),
		CORS(cfg.AllowedOrigins),
		RateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, s.logger),
		APIKeyAuth(cfg.APIKeys, skipAuthPaths, true, s.logger),
	)
}

func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Run 启动 HTTP 与 Metrics 服务器并阻塞到 ctx 结束
func (s *Server) Run(ctx context.Context) error {
	cfg := s.app.cfg.Server

	g, ctx := errgroup.WithContext(ctx)

	httpManager := server.NewManager("http", s.Handler(ctx), server.ConfigFor(cfg, cfg.HTTPPort), s.logger)
	g.Go(func() error { return httpManager.Run(ctx) })

	if cfg.MetricsPort != 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metricsHandler())
		metricsManager := server.NewManager("metrics", mux, server.ConfigFor(cfg, cfg.MetricsPort), s.logger)
		g.Go(func() error { return metricsManager.Run(ctx) })
	}

	s.logger.Info("servers started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("metrics_port", cfg.MetricsPort),
		zap.String("agent", s.app.orchestrator.Name()),
		zap.Bool("search_enabled", s.app.search != nil),
	)
	return g.Wait()
}
