package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chongxue30/stu-agent/internal/cli/config"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "登录并保存凭证",
	Long: `使用用户名和密码登录，Token 保存在本地配置中。

密码输入时不回显。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return interactiveLogin(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func interactiveLogin(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("登录 %s\n", config.GetServerURL())
	fmt.Print("请输入用户名: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("用户名不能为空")
	}

	// 输入密码（隐藏输入）
	fmt.Print("请输入密码: ")
	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("读取密码失败: %w", err)
	}

	result, err := newAPIClient().Login(ctx, username, string(passwordBytes))
	if err != nil {
		return fmt.Errorf("登录失败: %w", err)
	}
	if err := config.SaveAuth(username, result.AccessToken, result.RefreshToken); err != nil {
		return fmt.Errorf("保存凭证失败: %w", err)
	}

	fmt.Printf("✓ 登录成功，欢迎 %s\n", username)
	return nil
}
