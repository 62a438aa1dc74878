// Package config 管理 chatctl 客户端配置
// 配置保存在 ~/.chatctl/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultServerURL 默认服务器地址
const DefaultServerURL = "http://localhost:8080"

// Config CLI 配置结构
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Chat   ChatConfig   `mapstructure:"chat"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	URL string `mapstructure:"url"` // HTTP API 地址
}

// AuthConfig 登录凭证
type AuthConfig struct {
	Username     string `mapstructure:"username"`
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`
}

// ChatConfig 交互模式的默认设置
type ChatConfig struct {
	ConversationID int64 `mapstructure:"conversation_id"` // 当前对话
	ModelID        int64 `mapstructure:"model_id"`        // 新建对话使用的模型
	UseContext     bool  `mapstructure:"use_context"`     // 是否携带历史上下文
}

var (
	v   *viper.Viper
	cfg *Config
)

// Init 初始化配置
// 参数:
//   - dir: 配置目录，为空时使用 ~/.chatctl
func Init(dir string) error {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("获取用户目录失败: %w", err)
		}
		dir = filepath.Join(home, ".chatctl")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	v = viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// CHATCTL_SERVER_URL 等环境变量可以覆盖配置
	v.SetEnvPrefix("chatctl")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.url", DefaultServerURL)
	v.SetDefault("auth.username", "")
	v.SetDefault("auth.access_token", "")
	v.SetDefault("auth.refresh_token", "")
	v.SetDefault("chat.conversation_id", 0)
	v.SetDefault("chat.model_id", 0)
	v.SetDefault("chat.use_context", true)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("读取配置失败: %w", err)
			}
		}
		// 首次运行时写入默认配置
		if err := v.SafeWriteConfigAs(path); err != nil {
			if _, ok := err.(viper.ConfigFileAlreadyExistsError); !ok {
				return fmt.Errorf("写入默认配置失败: %w", err)
			}
		}
	}

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("解析配置失败: %w", err)
	}
	return nil
}

// Get 获取配置
func Get() *Config {
	if cfg == nil {
		return &Config{Server: ServerConfig{URL: DefaultServerURL}}
	}
	return cfg
}

// Path 配置文件路径
func Path() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// SaveAuth 保存登录凭证
func SaveAuth(username, accessToken, refreshToken string) error {
	v.Set("auth.username", username)
	v.Set("auth.access_token", accessToken)
	v.Set("auth.refresh_token", refreshToken)
	cfg.Auth = AuthConfig{Username: username, AccessToken: accessToken, RefreshToken: refreshToken}
	return v.WriteConfig()
}

// SaveConversation 保存当前对话
func SaveConversation(conversationID, modelID int64) error {
	v.Set("chat.conversation_id", conversationID)
	v.Set("chat.model_id", modelID)
	cfg.Chat.ConversationID = conversationID
	cfg.Chat.ModelID = modelID
	return v.WriteConfig()
}

// ClearAuth 清除本地凭证和当前对话
func ClearAuth() error {
	v.Set("auth.access_token", "")
	v.Set("auth.refresh_token", "")
	v.Set("chat.conversation_id", 0)
	cfg.Auth.AccessToken = ""
	cfg.Auth.RefreshToken = ""
	cfg.Chat.ConversationID = 0
	return v.WriteConfig()
}

// SetServerURL 覆盖服务器地址，下次保存配置时一并写入
func SetServerURL(url string) {
	url = strings.TrimRight(url, "/")
	v.Set("server.url", url)
	cfg.Server.URL = url
}

// GetServerURL 获取服务器地址
func GetServerURL() string {
	return Get().Server.URL
}

// GetAccessToken 获取访问 Token
func GetAccessToken() string {
	return Get().Auth.AccessToken
}

// IsLoggedIn 检查是否已登录
func IsLoggedIn() bool {
	return GetAccessToken() != ""
}

// WebSocketURL 将 HTTP 地址转换为 WebSocket 地址
func WebSocketURL(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://")
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://")
	default:
		return serverURL
	}
}
