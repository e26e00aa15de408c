/*
 * @author: Sun977
 * @date: 2025.11.17
 * @description: Cobra Root Command 定义
 */

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"reconledger/cmd/reconledger/ledger"
	"reconledger/cmd/reconledger/profile"
	"reconledger/cmd/reconledger/scan"
	"reconledger/internal/config"
	"reconledger/internal/pkg/logger"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "reconledger",
	Short: "端口侦察与防篡改结果账本",
	Long: `reconledger 对单个 IPv4/IPv6 目标执行并发端口扫描、服务指纹识别与证书检查，
每次结果都追加到哈希链账本中，可随时校验账本是否被篡改。

示例:
  1.端口扫描
	reconledger scan port -t 192.168.1.1 -p 22,80,443,8000-8100 --oj result.json
  2.证书检查
	reconledger scan cert --host example.com
  3.校验账本
	reconledger ledger verify
  4.启动 API 服务
	reconledger server --port 8088
`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initCLILogger(cmd)
	},
}

func Execute() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n[FATAL] reconledger crashed unexpectedly: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认: ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (debug, info, warn, error)")

	rootCmd.AddCommand(scan.NewScanCmd(loadConfig))
	rootCmd.AddCommand(ledger.NewLedgerCmd(loadConfig))
	rootCmd.AddCommand(profile.NewProfileCmd(loadConfig))
}

// loadConfig 读取配置文件与环境变量，子命令在执行时调用
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// initCLILogger 初始化 CLI 模式下的日志
// 未指定 --log-level 时只输出 fatal，避免日志和表格混在一起
func initCLILogger(cmd *cobra.Command) {
	level := "fatal"
	if flag := cmd.Flags().Lookup("log-level"); flag != nil && flag.Changed {
		level = flag.Value.String()
	}

	switch level {
	case "debug":
		pterm.EnableDebugMessages()
	case "info":
		pterm.DisableDebugMessages()
	default:
		pterm.DisableDebugMessages()
		pterm.Info = *pterm.Info.WithWriter(io.Discard)
	}

	logConfig := &config.LogConfig{
		Level:  level,
		Format: "text",
		Output: "stderr",
	}
	if _, err := logger.InitLogger(logConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
	}
}
