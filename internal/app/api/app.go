/**
 * API 服务
 * @author: sun977
 * @date: 2025.11.16
 * @description: 组装侦察服务、任务管理器、路由与 http.Server，负责启动和优雅关闭
 */
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"reconledger/internal/app/api/router"
	"reconledger/internal/config"
	reconHandler "reconledger/internal/handler/recon"
	"reconledger/internal/pkg/logger"
	"reconledger/internal/service/recon"
	"reconledger/internal/service/task"
)

// App API 应用
type App struct {
	config     *config.Config
	service    *recon.Service
	tasks      *task.Manager
	router     *router.Router
	httpServer *http.Server
	listener   net.Listener
	errCh      chan error
}

// NewApp 按配置创建应用，账本在此时打开
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	svc, err := recon.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init recon service: %w", err)
	}
	return NewAppWithService(cfg, svc), nil
}

// NewAppWithService 使用已创建的服务组装应用
func NewAppWithService(cfg *config.Config, svc *recon.Service) *App {
	tasks := task.NewManager(svc, task.WithRetention(cfg.Server.TaskTTL, cfg.Server.MaxTasks))
	r := router.NewRouter(cfg.Server, reconHandler.NewHandler(svc, tasks))

	return &App{
		config:  cfg,
		service: svc,
		tasks:   tasks,
		router:  r,
		httpServer: &http.Server{
			Addr:         cfg.Server.Address(),
			Handler:      r.Engine(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		errCh: make(chan error, 1),
	}
}

// Router 返回路由器
func (a *App) Router() *router.Router {
	return a.router
}

// Addr 实际监听地址，Start 之前为配置地址
func (a *App) Addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.httpServer.Addr
}

// Errors 服务运行期错误
func (a *App) Errors() <-chan error {
	return a.errCh
}

// Start 监听端口并在后台提供服务
func (a *App) Start() error {
	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.httpServer.Addr, err)
	}
	a.listener = ln

	go func() {
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("HTTP server stopped: %v", err)
			a.errCh <- err
		}
	}()

	logger.LogSystemEvent("Server", "Startup", "API server started", logger.InfoLevel, map[string]interface{}{
		"address": a.Addr(),
		"auth":    a.config.Server.APIKey != "",
	})
	return nil
}

// Stop 依次关闭 HTTP 服务、在途任务与账本存储
func (a *App) Stop(ctx context.Context) error {
	logger.Info("Stopping API server...")

	var errs []error
	if err := a.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
	}
	if err := a.tasks.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to drain scan tasks: %w", err))
	}
	if err := a.service.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close ledger: %w", err))
	}

	logger.LogSystemEvent("Server", "Shutdown", "API server stopped", logger.InfoLevel, nil)
	return errors.Join(errs...)
}
