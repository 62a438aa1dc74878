// Package cmd 实现 chatctl 命令
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chongxue30/stu-agent/internal/cli/api"
	"github.com/chongxue30/stu-agent/internal/cli/config"
	"github.com/chongxue30/stu-agent/internal/cli/websocket"
)

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "chatctl - 终端里的 AI 对话客户端",
	Long: `chatctl 客户端

直接运行进入交互模式，回复通过 WebSocket 逐段输出。
交互模式下可用的命令：
  /new       新建对话
  /context   切换是否携带历史上下文
  /exit      退出`,
	SilenceUsage: true,
	RunE:         runInteractive,
}

var configDir string

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// 全局参数
	rootCmd.PersistentFlags().StringP("server", "s", "", "服务器地址 (默认: http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "配置目录 (默认: ~/.chatctl)")
	rootCmd.Flags().Int64P("model", "m", 0, "新建对话使用的模型编号")
}

func initConfig() {
	if err := config.Init(configDir); err != nil {
		fmt.Fprintf(os.Stderr, "初始化配置失败: %v\n", err)
		os.Exit(1)
	}

	// 如果指定了服务器地址，更新配置
	if server, _ := rootCmd.PersistentFlags().GetString("server"); server != "" {
		config.SetServerURL(server)
	}
}

func newAPIClient() *api.Client {
	return api.NewClient(config.GetServerURL(), config.GetAccessToken())
}

// requireLogin 未登录时返回错误
func requireLogin() error {
	if !config.IsLoggedIn() {
		return errors.New("当前未登录，请先运行 'chatctl login'")
	}
	return nil
}

// runInteractive 交互式主流程
func runInteractive(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !config.IsLoggedIn() {
		if err := interactiveLogin(ctx); err != nil {
			return err
		}
	}

	client := newAPIClient()
	modelID, _ := cmd.Flags().GetInt64("model")
	convID, err := ensureConversation(ctx, client, modelID)
	if err != nil {
		return err
	}

	ws := websocket.NewClient(config.GetServerURL(), config.GetAccessToken())
	if err := ws.Connect(ctx); err != nil {
		return err
	}
	defer ws.Disconnect()

	useContext := config.Get().Chat.UseContext
	fmt.Printf("已连接 %s，当前对话 #%d（上下文: %v）\n", config.GetServerURL(), convID, useContext)

	lines := readLines(ctx)
	for {
		fmt.Print("> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case <-ws.Done():
			return websocket.ErrClosed
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "":
			continue
		case line == "/exit":
			return nil
		case line == "/context":
			useContext = !useContext
			fmt.Printf("上下文: %v\n", useContext)
			continue
		case line == "/new":
			conv, err := client.CreateConversation(ctx, config.Get().Chat.ModelID, "")
			if err != nil {
				fmt.Fprintf(os.Stderr, "✗ 新建对话失败: %v\n", err)
				continue
			}
			convID = conv.ID
			_ = config.SaveConversation(conv.ID, conv.ModelID)
			fmt.Printf("已切换到对话 #%d\n", convID)
			continue
		}

		_, err := ws.Chat(ctx, &websocket.ChatRequest{
			ConversationID: convID,
			Content:        line,
			UseContext:     useContext,
		}, func(chunk string) { fmt.Print(chunk) })
		fmt.Println()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "✗ %v\n", err)
			if errors.Is(err, websocket.ErrClosed) {
				return err
			}
		}
	}
}

// ensureConversation 返回当前对话，没有时用指定模型（或第一个可用模型）新建
func ensureConversation(ctx context.Context, client *api.Client, modelID int64) (int64, error) {
	chat := config.Get().Chat
	if chat.ConversationID != 0 && modelID == 0 {
		return chat.ConversationID, nil
	}

	if modelID == 0 {
		modelID = chat.ModelID
	}
	if modelID == 0 {
		models, err := client.ListModels(ctx)
		if err != nil {
			return 0, fmt.Errorf("获取模型列表失败: %w", err)
		}
		if len(models) == 0 {
			return 0, errors.New("服务器没有可用的模型")
		}
		modelID = models[0].ID
	}

	conv, err := client.CreateConversation(ctx, modelID, "")
	if err != nil {
		return 0, fmt.Errorf("新建对话失败: %w", err)
	}
	if err := config.SaveConversation(conv.ID, modelID); err != nil {
		return 0, fmt.Errorf("保存配置失败: %w", err)
	}
	return conv.ID, nil
}

// readLines 在后台读取标准输入
func readLines(ctx context.Context) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
