// Package llm 封装兼容 OpenAI 协议的对话补全接口
package llm

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// 消息角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 发送给模型的一条上下文消息
type Message struct {
	Role    string
	Content string
}

// Config 客户端绑定的接口地址、密钥和生成参数
type Config struct {
	Platform    Platform
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
}

// Client 绑定单个模型的对话客户端
type Client interface {
	// Chat 阻塞调用，返回完整回复
	Chat(ctx context.Context, messages []Message) (string, error)

	// ChatStream 发起流式调用
	ChatStream(ctx context.Context, messages []Message) (Stream, error)
}

// Stream 逐段返回回复内容
// 模型正常结束时 Recv 返回 io.EOF，其他错误表示流被中断
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Factory 根据解析后的 Config 创建 Client
type Factory func(cfg Config) (Client, error)

type openAIClient struct {
	client      *openai.Client
	model       string
	platform    Platform
	temperature float32
	maxTokens   int
}

// NewClient 默认的 Factory，基于 go-openai
// 参数:
//   - cfg: 接口配置，APIKey 和 Model 不能为空
//
// 返回:
//   - Client: 对话客户端
//   - error: 配置不完整时返回
func NewClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is empty")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is empty")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	return &openAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		platform:    cfg.Platform,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (c *openAIClient) request(messages []Message, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages:    convertMessages(messages),
		Stream:      stream,
	}
}

func (c *openAIClient) Chat(ctx context.Context, messages []Message) (string, error) {
	slog.Debug("llm chat request",
		"platform", c.platform,
		"model", c.model,
		"messages_count", len(messages),
	)
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, c.request(messages, false))
	if err != nil {
		return "", errors.Wrap(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from provider")
	}

	slog.Debug("llm chat response",
		"model", c.model,
		"total_tokens", resp.Usage.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp.Choices[0].Message.Content, nil
}

func (c *openAIClient) ChatStream(ctx context.Context, messages []Message) (Stream, error) {
	slog.Debug("llm stream request", "platform", c.platform, "model", c.model, "messages_count", len(messages))

	stream, err := c.client.CreateChatCompletionStream(ctx, c.request(messages, true))
	if err != nil {
		return nil, errors.Wrap(err, "create stream failed")
	}
	return &openAIStream{stream: stream}, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

// Recv 跳过不带内容的帧
func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", errors.Wrap(err, "stream recv failed")
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// 不设置客户端超时，由调用方的 ctx 控制
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
