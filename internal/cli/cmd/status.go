package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chongxue30/stu-agent/internal/cli/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "显示当前状态",
	Long: `显示当前登录状态和配置信息。

包括：
- 服务器地址
- 登录状态
- 当前对话和模型`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	fmt.Printf("配置文件: %s\n", config.Path())
	fmt.Printf("服务器:   %s\n", cfg.Server.URL)

	if !config.IsLoggedIn() {
		fmt.Println("登录状态: ✗ 未登录")
		fmt.Println("请运行 'chatctl login' 完成登录")
		return nil
	}

	fmt.Printf("登录状态: ✓ 已登录 (%s)\n", cfg.Auth.Username)
	user, err := newAPIClient().Profile(cmd.Context())
	if err != nil {
		fmt.Printf("服务器校验: ✗ %v\n", err)
	} else {
		fmt.Printf("服务器校验: ✓ 用户 #%d\n", user.ID)
	}

	if cfg.Chat.ConversationID != 0 {
		fmt.Printf("当前对话: #%d (模型 #%d)\n", cfg.Chat.ConversationID, cfg.Chat.ModelID)
	}
	fmt.Printf("携带上下文: %v\n", cfg.Chat.UseContext)
	return nil
}
