package profile

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"reconledger/internal/core/target"
	"reconledger/internal/pkg/profile"
)

func newTemplateCmd(load ConfigLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "管理扫描模板",
	}
	cmd.AddCommand(newTemplateSaveCmd(load))
	cmd.AddCommand(newTemplateListCmd(load))
	return cmd
}

func newTemplateSaveCmd(load ConfigLoader) *cobra.Command {
	t := &profile.Template{}
	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "保存扫描模板",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := target.Validate(t.Target); err != nil {
				return err
			}
			store, err := openStore(load)
			if err != nil {
				return err
			}
			t.Name = args[0]
			if err := store.SaveTemplate(t); err != nil {
				return err
			}
			pterm.Success.Printf("Template %s saved\n", t.Name)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&t.Target, "target", "t", "", "扫描目标")
	flags.StringVarP(&t.Ports, "port", "p", "all", "端口表达式")
	flags.IntVarP(&t.Options.Concurrency, "concurrency", "c", 0, "并发上限")
	flags.DurationVar(&t.Options.ConnectTimeout, "timeout", 0, "单端口连接超时")
	flags.DurationVar(&t.Options.BannerTimeout, "banner-timeout", 0, "Banner 读取超时")
	flags.BoolVar(&t.Options.Strict, "strict", false, "端口表达式严格模式")
	flags.BoolVar(&t.Options.ActiveProbe, "active", false, "HEAD 主动探测")
	flags.BoolVar(&t.Options.Advisory, "advisory", false, "查询公开漏洞")
	flags.BoolVar(&t.Options.Adaptive, "adaptive", false, "自适应并发")
	cmd.MarkFlagRequired("target")
	return cmd
}

func newTemplateListCmd(load ConfigLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "列出扫描模板",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(load)
			if err != nil {
				return err
			}
			names, err := store.ListTemplates()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				pterm.Warning.Println("No templates saved.")
				return nil
			}
			data := pterm.TableData{{"Name", "Target", "Ports", "Updated"}}
			for _, name := range names {
				t, err := store.LoadTemplate(name)
				if err != nil {
					continue
				}
				data = append(data, []string{t.Name, t.Target, t.Ports, t.UpdatedAt.Local().Format("2006-01-02 15:04")})
			}
			return pterm.DefaultTable.WithHasHeader(true).WithData(data).Render()
		},
	}
}
