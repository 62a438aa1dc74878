package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chongxue30/stu-agent/internal/cli/config"
	"github.com/chongxue30/stu-agent/pkg/util"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"convs"},
	Short:   "列出对话",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLogin(); err != nil {
			return err
		}
		items, err := newAPIClient().ListConversations(cmd.Context())
		if err != nil {
			return err
		}

		current := config.Get().Chat.ConversationID
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "\tID\t标题\t模型\t消息数")
		for _, c := range items {
			mark := ""
			if c.ID == current {
				mark = "*"
			} else if c.Pinned {
				mark = "^"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\n", mark, c.ID, util.TruncateString(c.Title, 30), c.Model, c.MessageCount)
		}
		return w.Flush()
	},
}

var useCmd = &cobra.Command{
	Use:   "use <conversation-id>",
	Short: "切换交互模式的当前对话",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("无效的对话编号: %s", args[0])
		}
		if err := config.SaveConversation(id, config.Get().Chat.ModelID); err != nil {
			return err
		}
		fmt.Printf("✓ 当前对话 #%d\n", id)
		return nil
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "列出可用模型",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLogin(); err != nil {
			return err
		}
		items, err := newAPIClient().ListModels(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\t名称\t模型\t平台")
		for _, m := range items {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.ID, m.Name, m.Model, m.Platform)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(conversationsCmd, useCmd, modelsCmd)
}
