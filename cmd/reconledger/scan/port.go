package scan

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"reconledger/internal/core/analysis"
	"reconledger/internal/core/options"
	"reconledger/internal/core/reporter"
	"reconledger/internal/core/scanner/port"
	"reconledger/internal/service/recon"
)

func NewPortScanCmd(load ConfigLoader) *cobra.Command {
	opts := options.NewPortScanOptions()

	cmd := &cobra.Command{
		Use:   "port",
		Short: "端口扫描与服务识别",
		Long: `对单个 IPv4/IPv6 目标执行并发 TCP 连接扫描，抓取 Banner 识别服务，
输出开放端口、风险提示与防火墙建议，并把报告追加到账本。

端口表达式: 逗号分隔的端口或区间 (22,80,8000-8100)；all 表示常用端口集。
非严格模式下表达式无法解析时回退到常用端口集，--strict 时直接报错。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			opts.Output = globalOutputOptions

			ctx, svc, cleanup, err := openService(cmd.Context(), load)
			if err != nil {
				return err
			}
			defer cleanup()

			var sink port.Sink
			if opts.Stream {
				printLine := reporter.StreamPrinter(os.Stdout)
				sink = func(e port.Event) { printLine(e.Progress, e.Line) }
			}

			var out *recon.ScanOutcome
			if opts.Template != "" {
				pterm.Info.Printf("Running template %s...\n", opts.Template)
				out, err = svc.RunTemplate(ctx, opts.Template, sink)
			} else {
				spec, rerr := svc.ResolvePortSpec(opts.Port, opts.Profile)
				if rerr != nil {
					return rerr
				}
				pterm.Info.Printf("Starting port scan on %s (ports: %s)...\n", opts.Target, spec)
				out, err = svc.RunScan(ctx, opts.Target, spec, opts.ApplyTo(svc.Options()), sink)
			}
			if err != nil {
				return err
			}

			console := reporter.NewConsoleReporter()
			if err := console.PrintScanReport(out.Report, out.Threats, out.Rules); err != nil {
				return err
			}
			if opts.ReverseDNS {
				if name, ok := analysis.ReverseLookup(ctx, nil, out.Report.Target); ok {
					pterm.Info.Printf("Reverse DNS: %s -> %s\n", out.Report.Target, name)
				} else {
					pterm.Warning.Printf("Reverse DNS: no PTR record for %s\n", out.Report.Target)
				}
			}
			pterm.Success.Printf("Recorded as ledger entry #%d (%s)\n", out.Entry.Index, out.Entry.Hash)

			if opts.Output.OutputJson != "" {
				if err := reporter.SaveJsonResult(opts.Output.OutputJson, out); err != nil {
					pterm.Error.Printf("Failed to save json: %v\n", err)
				}
			}
			if opts.Output.OutputCsv != "" {
				if err := reporter.SaveCsvResult(opts.Output.OutputCsv, out.Report); err != nil {
					pterm.Error.Printf("Failed to save csv: %v\n", err)
				}
			}
			if out.Report.Cancelled {
				return fmt.Errorf("scan %s cancelled", out.Report.ID)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Target, "target", "t", opts.Target, "扫描目标 (IPv4/IPv6)")
	flags.StringVarP(&opts.Port, "port", "p", opts.Port, "端口表达式 (e.g. 80,443,1-1000 / all)")
	flags.StringVar(&opts.Profile, "profile", "", "使用已保存的端口配置档")
	flags.StringVar(&opts.Template, "template", "", "使用已保存的扫描模板")
	flags.IntVarP(&opts.Concurrency, "concurrency", "c", 0, "并发上限 (默认读取配置, 最大 1024)")
	flags.DurationVar(&opts.Timeout, "timeout", 0, "单端口连接超时")
	flags.DurationVar(&opts.BannerTimeout, "banner-timeout", 0, "Banner 读取超时")
	flags.BoolVar(&opts.Strict, "strict", false, "端口表达式严格模式")
	flags.BoolVar(&opts.Active, "active", false, "对开放端口发送 HEAD 主动探测")
	flags.BoolVar(&opts.Advisory, "advisory", false, "查询已识别服务的公开漏洞")
	flags.BoolVar(&opts.Adaptive, "adaptive", false, "按 RTT 自适应调整超时与并发")
	flags.BoolVar(&opts.Stream, "stream", false, "逐端口输出扫描进度")
	flags.BoolVar(&opts.ReverseDNS, "rdns", false, "扫描结束后反向解析目标")

	return cmd
}
