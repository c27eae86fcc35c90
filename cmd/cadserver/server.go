// Package main provides the CAD server implementation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcad/api/handlers"
	"github.com/BaSui01/agentcad/cad/controller"
	"github.com/BaSui01/agentcad/cad/dispatch"
	"github.com/BaSui01/agentcad/cad/geometry"
	"github.com/BaSui01/agentcad/cad/history"
	"github.com/BaSui01/agentcad/cad/merge"
	"github.com/BaSui01/agentcad/cad/store"
	"github.com/BaSui01/agentcad/cad/workspace"
	"github.com/BaSui01/agentcad/config"
	"github.com/BaSui01/agentcad/internal/cache"
	"github.com/BaSui01/agentcad/internal/database"
	"github.com/BaSui01/agentcad/internal/metrics"
	"github.com/BaSui01/agentcad/internal/server"
	"github.com/BaSui01/agentcad/internal/telemetry"
)

// =============================================================================
// 🧱 Core — 共享的核心装配
// =============================================================================

// Core 持有进程级核心组件：存储句柄与几何内核句柄都在这里
// 显式初始化，并从这里向下传递，绝不落在包级单例上。
type Core struct {
	Store      *store.Store
	Kernel     *geometry.Kernel
	Workspaces *workspace.Manager
	Dispatcher *dispatch.Dispatcher
	Controller *controller.Controller
	Collector  *metrics.Collector
	Cache      *cache.Manager

	logger *zap.Logger
}

// BuildCore 装配核心组件栈，serve 与 batch 共用。
func BuildCore(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) (*Core, error) {
	ctx := context.Background()

	if err := os.MkdirAll(cfg.Workspace.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace dir: %w", err)
	}

	st, err := store.Open(ctx, store.Config{
		Driver: store.Driver(cfg.Database.Driver),
		DSN:    cfg.Database.DSN(),
		Pool: database.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	var cacheManager *cache.Manager
	if cfg.Cache.Enabled {
		cacheManager, err = cache.NewManager(cache.Config{
			Addr:       cfg.Cache.Addr,
			Password:   cfg.Cache.Password,
			DB:         cfg.Cache.DB,
			DefaultTTL: cfg.Cache.DefaultTTL,
			PoolSize:   cfg.Cache.PoolSize,
		}, logger)
		if err != nil {
			logger.Warn("entity cache unavailable, continuing without it", zap.Error(err))
		} else {
			st.AttachCache(cacheManager, collector)
		}
	}

	kernel := geometry.New()
	workspaces := workspace.New(st)
	engine := merge.New(st)
	hist := history.NewManager()

	dispatcher := dispatch.NewDispatcher(st, kernel, workspaces, engine, hist, logger, collector, dispatch.Config{
		CallTimeout:   cfg.Controller.CallTimeout,
		ExportTimeout: cfg.Controller.ExportTimeout,
	})

	roles, err := controller.LoadRoles(cfg.Roles.Path)
	if err != nil {
		return nil, fmt.Errorf("loading role templates: %w", err)
	}

	ctrl, err := controller.New(dispatcher, roles, logger, collector, controller.Config{
		MaxConcurrentAgents: cfg.Controller.MaxConcurrentAgents,
		MessageQueueDepth:   cfg.Controller.MessageQueueDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("building controller: %w", err)
	}

	return &Core{
		Store:      st,
		Kernel:     kernel,
		Workspaces: workspaces,
		Dispatcher: dispatcher,
		Controller: ctrl,
		Collector:  collector,
		Cache:      cacheManager,
		logger:     logger,
	}, nil
}

// Close 按依赖反序释放核心组件。
func (c *Core) Close() {
	c.Controller.Close()
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			c.logger.Warn("closing cache", zap.Error(err))
		}
	}
	if err := c.Store.Close(); err != nil {
		c.logger.Warn("closing store", zap.Error(err))
	}
}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 CAD 服务的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	core *Core

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler   *handlers.HealthHandler
	dispatchHandler *handlers.DispatchHandler
	agentHandler    *handlers.AgentHandler

	// 遥测
	otelProviders *telemetry.Providers

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	collector := metrics.NewCollector("cad", s.logger)

	// 2. 初始化 OpenTelemetry
	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.otelProviders = providers

	// 3. 装配核心组件
	core, err := BuildCore(s.cfg, s.logger, collector)
	if err != nil {
		return fmt.Errorf("failed to build core: %w", err)
	}
	s.core = core

	// 4. 初始化 Handlers
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(storeHealthCheck{core.Store})
	s.dispatchHandler = handlers.NewDispatchHandler(core.Dispatcher, s.logger)
	s.agentHandler = handlers.NewAgentHandler(core.Controller, s.logger)

	// 5. 启动 HTTP 服务器
	if err := s.startHTTPServer(collector); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	return nil
}

// storeHealthCheck 探测存储连通性
type storeHealthCheck struct {
	st *store.Store
}

func (c storeHealthCheck) Name() string { return "store" }

func (c storeHealthCheck) Check(ctx context.Context) error {
	db, err := c.st.DB().DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer(collector *metrics.Collector) error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// API 路由
	// ========================================
	mux.HandleFunc("/v1/dispatch", s.dispatchHandler.HandleDispatch)
	mux.HandleFunc("/v1/agents", s.agentHandler.HandleAgents)
	mux.HandleFunc("/v1/agents/", s.agentHandler.HandleAgentByID)
	mux.HandleFunc("/v1/messages", s.agentHandler.HandleMessages)
	mux.HandleFunc("/v1/tasks/decompose", s.agentHandler.HandleDecompose)

	// ========================================
	// 构建中间件链
	// ========================================
	ctx := context.Background()
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(collector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	}
	if s.cfg.Telemetry.Enabled {
		middlewares = append(middlewares, OTelTracing())
	}
	if len(s.cfg.Server.APIKeys) > 0 {
		middlewares = append(middlewares, APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger))
	}
	if s.cfg.Server.JWT.Enabled {
		middlewares = append(middlewares, JWTAuth(s.cfg.Server.JWT, skipAuthPaths, s.logger))
	}
	handler := Chain(mux, middlewares...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     4 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭遥测
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭核心组件
	if s.core != nil {
		s.core.Close()
	}

	// 5. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
