package scan

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"reconledger/internal/config"
	"reconledger/internal/core/options"
	"reconledger/internal/service/recon"
)

// ConfigLoader 延迟加载配置，由根命令提供
type ConfigLoader func() (*config.Config, error)

var globalOutputOptions options.OutputOptions

// NewScanCmd 创建 scan 父命令
func NewScanCmd(load ConfigLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "执行扫描任务",
		Long: `执行端口扫描、证书检查或单端口指纹识别，结果写入账本。
请使用具体的子命令。`,
	}

	pFlags := cmd.PersistentFlags()
	pFlags.StringVar(&globalOutputOptions.OutputJson, "outputJson", "", "指定保存json文件路径 (alias: --oj)")
	pFlags.StringVar(&globalOutputOptions.OutputCsv, "outputCsv", "", "指定保存csv文件路径 (alias: --oc)")

	// 简写别名
	pFlags.StringVar(&globalOutputOptions.OutputJson, "oj", "", "outputJson 简写")
	pFlags.Lookup("oj").Hidden = true
	pFlags.StringVar(&globalOutputOptions.OutputCsv, "oc", "", "outputCsv 简写")
	pFlags.Lookup("oc").Hidden = true

	cmd.AddCommand(NewPortScanCmd(load))
	cmd.AddCommand(NewCertCmd(load))
	cmd.AddCommand(NewFingerprintCmd(load))

	return cmd
}

// openService 加载配置并创建侦察服务，返回的 context 在收到中断信号时取消
func openService(parent context.Context, load ConfigLoader) (context.Context, *recon.Service, func(), error) {
	cfg, err := load()
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	svc, err := recon.New(ctx, cfg)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}

	cleanup := func() {
		stop()
		svc.Close()
	}
	return ctx, svc, cleanup, nil
}
