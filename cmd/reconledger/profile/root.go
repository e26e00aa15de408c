package profile

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"reconledger/internal/config"
	"reconledger/internal/pkg/profile"
)

// ConfigLoader 延迟加载配置，由根命令提供
type ConfigLoader func() (*config.Config, error)

// NewProfileCmd 创建 profile 父命令
func NewProfileCmd(load ConfigLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "管理端口配置档与扫描模板",
		Long: `端口配置档保存命名的端口表达式，扫描时通过 --profile 引用；
扫描模板保存目标、端口与扫描选项，通过 scan port --template 执行。`,
	}
	cmd.AddCommand(newSaveCmd(load))
	cmd.AddCommand(newShowCmd(load))
	cmd.AddCommand(newListCmd(load))
	cmd.AddCommand(newDeleteCmd(load))
	cmd.AddCommand(newTemplateCmd(load))
	return cmd
}

func openStore(load ConfigLoader) (*profile.Store, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	return profile.NewStore(cfg.Profile.Dir), nil
}

func newSaveCmd(load ConfigLoader) *cobra.Command {
	var spec, desc string
	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "保存端口配置档",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(load)
			if err != nil {
				return err
			}
			p := &profile.Profile{Name: args[0], Spec: spec, Description: desc}
			if err := store.SaveProfile(p); err != nil {
				return err
			}
			pterm.Success.Printf("Profile %s saved (%d ports)\n", p.Name, len(p.Ports()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&spec, "ports", "p", "", "端口表达式")
	cmd.Flags().StringVar(&desc, "desc", "", "描述")
	cmd.MarkFlagRequired("ports")
	return cmd
}

func newShowCmd(load ConfigLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "显示端口配置档",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(load)
			if err != nil {
				return err
			}
			p, err := store.LoadProfile(args[0])
			if err != nil {
				return err
			}
			ports := p.Ports()
			pterm.Printf("Name:        %s\n", p.Name)
			pterm.Printf("Spec:        %s\n", p.Spec)
			if p.Description != "" {
				pterm.Printf("Description: %s\n", p.Description)
			}
			pterm.Printf("Ports:       %d (%s)\n", len(ports), summarize(ports))
			pterm.Printf("Updated:     %s\n", p.UpdatedAt.Local().Format(time.DateTime))
			return nil
		},
	}
}

func newListCmd(load ConfigLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "列出端口配置档",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(load)
			if err != nil {
				return err
			}
			names, err := store.ListProfiles()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				pterm.Warning.Println("No profiles saved.")
				return nil
			}
			data := pterm.TableData{{"Name", "Spec", "Description"}}
			for _, name := range names {
				p, err := store.LoadProfile(name)
				if err != nil {
					data = append(data, []string{name, "<unreadable>", err.Error()})
					continue
				}
				data = append(data, []string{p.Name, p.Spec, p.Description})
			}
			return pterm.DefaultTable.WithHasHeader(true).WithData(data).Render()
		},
	}
}

func newDeleteCmd(load ConfigLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "删除端口配置档",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(load)
			if err != nil {
				return err
			}
			if err := store.DeleteProfile(args[0]); err != nil {
				return err
			}
			pterm.Success.Printf("Profile %s deleted\n", args[0])
			return nil
		},
	}
}

// summarize 端口过多时只展示首尾
func summarize(ports []int) string {
	const shown = 10
	parts := make([]string, 0, shown+1)
	for i, p := range ports {
		if i == shown {
			parts = append(parts, fmt.Sprintf("... %d", ports[len(ports)-1]))
			break
		}
		parts = append(parts, strconv.Itoa(p))
	}
	return strings.Join(parts, ",")
}
