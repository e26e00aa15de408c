/*
 * @author: Sun977
 * @date: 2025.11.17
 * @description: Server 模式子命令 (HTTP API)
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"reconledger/internal/app/api"
	"reconledger/internal/config"
	"reconledger/internal/pkg/logger"
)

var (
	serverHost string
	serverPort int
	apiKey     string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 HTTP API 服务",
	Long: `以守护进程方式启动 API 服务，扫描任务异步执行，结果写入账本。

命令行参数优先级高于配置文件；配置文件修改后日志级别会自动生效。

示例:
  reconledger server --host 0.0.0.0 --port 8088 --api-key mysecret`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&serverHost, "host", "", "监听地址")
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "监听端口")
	serverCmd.Flags().StringVar(&apiKey, "api-key", "", "X-API-Key 认证密钥")
}

func newLoader() *config.ConfigLoader {
	if cfgFile != "" {
		return config.NewFileConfigLoader(cfgFile)
	}
	return config.NewConfigLoader("", config.DefaultEnvPrefix)
}

func applyServerFlags(cfg *config.Config) {
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}
	if apiKey != "" {
		cfg.Server.APIKey = apiKey
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
}

func runServer() error {
	loader := newLoader()
	cfg, err := loader.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyServerFlags(cfg)

	// 服务模式使用配置文件中的日志设置，覆盖 CLI 日志
	if _, err := logger.InitLogger(cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}

	app, err := api.NewApp(context.Background(), cfg)
	if err != nil {
		return err
	}
	if err := app.Start(); err != nil {
		return err
	}
	pterm.Success.Printf("reconledger API listening on %s\n", app.Addr())

	if loader.GetConfigPath() != "" {
		watcher, err := startWatcher(loader)
		if err != nil {
			logger.Warnf("config hot reload disabled: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Infof("Received %s, shutting down...", sig)
	case err := <-app.Errors():
		logger.Errorf("API server failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// startWatcher 监听配置文件，变更后更新日志设置
func startWatcher(loader *config.ConfigLoader) (*config.ConfigWatcher, error) {
	watcher, err := config.NewConfigWatcher(loader)
	if err != nil {
		return nil, err
	}
	watcher.SetErrorHandler(func(err error) {
		logger.LogSystemEvent("Config", "ReloadFailed", err.Error(), logger.WarnLevel, nil)
	})
	watcher.AddCallback(func(oldConfig, newConfig *config.Config) error {
		if logLevel != "" {
			newConfig.Log.Level = logLevel
		}
		if err := logger.LoggerInstance.UpdateConfig(newConfig.Log); err != nil {
			return err
		}
		logger.LogSystemEvent("Config", "Reload", "log settings reloaded", logger.InfoLevel, map[string]interface{}{
			"level": newConfig.Log.Level,
		})
		return nil
	})
	if err := watcher.Start(); err != nil {
		watcher.Stop()
		return nil, err
	}
	return watcher, nil
}
