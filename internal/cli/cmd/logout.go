package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chongxue30/stu-agent/internal/cli/config"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "登出并清除本地凭证",
	Long: `登出当前账号并清除本地保存的 Token 和当前对话。

登出后需要重新运行 'chatctl login' 才能使用。`,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	// 检查是否已登录
	if !config.IsLoggedIn() {
		fmt.Println("当前未登录")
		return nil
	}

	// 服务端失败不影响清除本地凭证
	if err := newAPIClient().Logout(cmd.Context()); err != nil {
		slog.Warn("server logout failed", "error", err)
	}

	if err := config.ClearAuth(); err != nil {
		return fmt.Errorf("清除凭证失败: %w", err)
	}

	fmt.Println("✓ 已登出并清除本地凭证")
	return nil
}
