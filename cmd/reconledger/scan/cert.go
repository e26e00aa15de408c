package scan

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"reconledger/internal/core/options"
	"reconledger/internal/core/reporter"
)

func NewCertCmd(load ConfigLoader) *cobra.Command {
	opts := options.NewCertOptions()

	cmd := &cobra.Command{
		Use:   "cert",
		Short: "TLS 证书检查",
		Long:  `连接目标完成 TLS 握手，读取叶子证书的有效期与签发信息，单独校验信任链；失败原因同样写入账本。`,
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

			out, err := svc.ValidateCertificate(ctx, opts.Host, opts.Port)
			if err != nil {
				return err
			}

			if err := reporter.NewConsoleReporter().PrintCertificate(out.Result); err != nil {
				return err
			}
			pterm.Success.Printf("Recorded as ledger entry #%d (%s)\n", out.Entry.Index, out.Entry.Hash)

			if opts.Output.OutputJson != "" {
				if err := reporter.SaveJsonResult(opts.Output.OutputJson, out); err != nil {
					pterm.Error.Printf("Failed to save json: %v\n", err)
				}
			}
			if opts.Output.OutputCsv != "" {
				if err := reporter.SaveCsvResult(opts.Output.OutputCsv, out.Result); err != nil {
					pterm.Error.Printf("Failed to save csv: %v\n", err)
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Host, "host", "", "主机名")
	flags.IntVar(&opts.Port, "port", opts.Port, "端口")
	cmd.MarkFlagRequired("host")

	return cmd
}
