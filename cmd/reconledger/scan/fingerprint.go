package scan

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"reconledger/internal/core/options"
	"reconledger/internal/core/reporter"
)

func NewFingerprintCmd(load ConfigLoader) *cobra.Command {
	opts := options.NewFingerprintOptions()

	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "单端口服务指纹识别",
		Long:  `抓取单个端口的 Banner 并匹配指纹规则，不写入账本。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}

			ctx, svc, cleanup, err := openService(cmd.Context(), load)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := svc.Fingerprint(ctx, opts.Target, opts.Port, opts.Active)
			if err != nil {
				return err
			}
			if !res.Open {
				pterm.Warning.Printf("%s:%d is %s\n", opts.Target, opts.Port, res.State)
				return nil
			}

			out := reporter.NewMultiReporter(reporter.NewConsoleReporter())
			if globalOutputOptions.OutputJson != "" {
				out.Add(reporter.NewJsonReporter(globalOutputOptions.OutputJson))
			}
			if globalOutputOptions.OutputCsv != "" {
				out.Add(reporter.NewCsvReporter(globalOutputOptions.OutputCsv))
			}
			return out.Report(context.Background(), res)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Target, "target", "t", "", "目标 (IPv4/IPv6)")
	flags.IntVarP(&opts.Port, "port", "p", 0, "端口")
	flags.BoolVar(&opts.Active, "active", false, "追加 HEAD 主动探测")
	cmd.MarkFlagRequired("target")
	cmd.MarkFlagRequired("port")

	return cmd
}
