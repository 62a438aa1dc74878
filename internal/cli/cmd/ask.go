package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chongxue30/stu-agent/internal/cli/api"
	"github.com/chongxue30/stu-agent/internal/cli/config"
)

var askCmd = &cobra.Command{
	Use:   "ask <conversation-id> <text...>",
	Short: "在指定对话中发送一条消息",
	Long: `通过 SSE 发送一条消息并把回复输出到标准输出。

对话编号为 0 时使用当前对话。`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLogin(); err != nil {
			return err
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("无效的对话编号: %s", args[0])
		}
		if id == 0 {
			id = config.Get().Chat.ConversationID
		}
		if id == 0 {
			return fmt.Errorf("没有当前对话，请指定对话编号")
		}

		noContext, _ := cmd.Flags().GetBool("no-context")
		out := cmd.OutOrStdout()
		done, err := newAPIClient().SendStream(cmd.Context(), &api.SendRequest{
			ConversationID: id,
			Content:        strings.Join(args[1:], " "),
			UseContext:     !noContext,
		}, func(chunk string) { fmt.Fprint(out, chunk) })
		fmt.Fprintln(out)
		if err != nil {
			return err
		}

		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "[%s] 消息 #%d 回复 #%d\n", done.Model, done.MessageID, done.ReplyID)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().Bool("no-context", false, "不携带历史上下文")
	askCmd.Flags().BoolP("verbose", "v", false, "输出模型和消息编号")
	rootCmd.AddCommand(askCmd)
}
