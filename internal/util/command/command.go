package command

import (
	"github.com/spf13/cobra"
)

// NewSubcommandGroup 创建仅用于分组子命令的父命令，本身执行时打印帮助
func NewSubcommandGroup(use string, subcommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: use + " subcommands",
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	cmd.AddCommand(subcommands...)
	return cmd
}
