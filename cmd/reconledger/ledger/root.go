package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"reconledger/internal/config"
	"reconledger/internal/core/reporter"
	"reconledger/internal/pkg/ledger"
)

// ConfigLoader 延迟加载配置，由根命令提供
type ConfigLoader func() (*config.Config, error)

// NewLedgerCmd 创建 ledger 父命令
func NewLedgerCmd(load ConfigLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "查看、校验与追加账本",
	}
	cmd.AddCommand(newVerifyCmd(load))
	cmd.AddCommand(newShowCmd(load))
	cmd.AddCommand(newAppendCmd(load))
	return cmd
}

// open 按配置打开账本，不在加载时校验，交给 verify 子命令报告断点
func open(ctx context.Context, load ConfigLoader) (*ledger.Ledger, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	store, err := ledger.NewStore(ctx, cfg.Ledger)
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(ctx, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return l, nil
}

func newVerifyCmd(load ConfigLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "校验账本哈希链",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := open(cmd.Context(), load)
			if err != nil {
				return err
			}
			defer l.Close()

			if err := l.Verify(); err != nil {
				var ie *ledger.IntegrityError
				if errors.As(err, &ie) {
					pterm.Error.Printf("Ledger broken at entry #%d: %s\n", ie.Index, ie.Reason)
				}
				return err
			}
			tail := l.Tail()
			pterm.Success.Printf("Ledger verified: %d entries, tail #%d %s\n", l.Len(), tail.Index, tail.Hash)
			return nil
		},
	}
}

func newShowCmd(load ConfigLoader) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "show",
		Short: "显示账本最后若干条记录",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := open(cmd.Context(), load)
			if err != nil {
				return err
			}
			defer l.Close()

			entries := l.Entries()
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			return reporter.NewConsoleReporter().PrintLedger(entries, l.Verify())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "显示条数，0 表示全部")
	return cmd
}

func newAppendCmd(load ConfigLoader) *cobra.Command {
	var file, data string
	cmd := &cobra.Command{
		Use:   "append",
		Short: "追加一条 JSON 记录",
		Long: `追加任意 JSON 文档到账本末尾，用于记录人工备注等外部数据。

示例:
  reconledger ledger append --data '{"note":"firewall updated"}'
  reconledger ledger append --file note.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(file, data, cmd.InOrStdin())
			if err != nil {
				return err
			}

			l, err := open(cmd.Context(), load)
			if err != nil {
				return err
			}
			defer l.Close()

			// 链已损坏时拒绝继续追加
			if err := l.Verify(); err != nil {
				return err
			}
			entry, err := l.Append(cmd.Context(), payload)
			if err != nil {
				return err
			}
			pterm.Success.Printf("Appended entry #%d (%s)\n", entry.Index, entry.Hash)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON 文件路径，- 表示标准输入")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON 字符串")
	cmd.MarkFlagsMutuallyExclusive("file", "data")
	return cmd
}

func readPayload(file, data string, stdin io.Reader) (json.RawMessage, error) {
	var raw []byte
	switch {
	case data != "":
		raw = []byte(data)
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		raw = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		return nil, fmt.Errorf("either --file or --data is required")
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
