// Package api 封装 chatctl 与服务器的 HTTP API 交互
package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client API 客户端
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewClient 创建 API 客户端
// 参数:
//   - baseURL: 例如 http://localhost:8080
//   - accessToken: 登录后的访问令牌，未登录时为空
func NewClient(baseURL, accessToken string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		// 流式请求的时长由调用方的 ctx 控制，这里不设置总超时
		httpClient: &http.Client{},
	}
}

// SetAccessToken 登录后更新访问令牌
func (c *Client) SetAccessToken(token string) {
	c.accessToken = token
}

// APIResponse 统一响应格式
type APIResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// APIError 服务器返回的业务错误
type APIError struct {
	Status  int    // HTTP 状态码
	Code    int    // 业务错误码
	Message string // 错误信息
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API 错误 %d: %s", e.Code, e.Message)
}

// ==================== 认证 ====================

// User 用户信息
type User struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Email    *string `json:"email"`
	Nickname *string `json:"nickname"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         *User  `json:"user"`
}

// Login 使用用户名密码登录
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}
	var result LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Logout 登出，服务端把当前 Token 加入黑名单
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)
}

// Profile 获取当前用户信息
func (c *Client) Profile(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ==================== 对话 ====================

// Conversation 对话概要
type Conversation struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	ModelID      int64  `json:"model_id"`
	Model        string `json:"model"`
	Pinned       bool   `json:"pinned"`
	MessageCount int64  `json:"message_count"`
}

// ListConversations 获取对话列表
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var items []Conversation
	if err := c.do(ctx, http.MethodGet, "/api/v1/ai/chat/conversation/list", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateConversation 使用指定模型新建对话
func (c *Client) CreateConversation(ctx context.Context, modelID int64, title string) (*Conversation, error) {
	body := map[string]interface{}{"model_id": modelID}
	if title != "" {
		body["title"] = title
	}
	var conv Conversation
	if err := c.do(ctx, http.MethodPost, "/api/v1/ai/chat/conversation/create", body, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Model 可用模型
type Model struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Model    string `json:"model"`
	Platform string `json:"platform"`
}

// ListModels 获取启用的模型
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var items []Model
	if err := c.do(ctx, http.MethodGet, "/api/v1/ai/model/simple-list", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ==================== 消息 ====================

// SendRequest 发送消息请求
type SendRequest struct {
	ConversationID int64  `json:"conversation_id"`
	Content        string `json:"content"`
	RoleID         *int64 `json:"role_id,omitempty"`
	UseContext     bool   `json:"use_context"`
}

// Frame 流式帧
type Frame struct {
	Type      string `json:"type"` // chunk / done / error
	Content   string `json:"content"`
	MessageID int64  `json:"message_id,omitempty"`
	ReplyID   int64  `json:"reply_id,omitempty"`
	Model     string `json:"model,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ErrStreamClosed 流在 done / error 帧之前结束
var ErrStreamClosed = fmt.Errorf("流式响应意外结束")

// SendStream 流式发送消息
// 每个 chunk 帧回调一次 onChunk，返回最后的 done 帧
// 服务端返回 error 帧时返回 *APIError
func (c *Client) SendStream(ctx context.Context, req *SendRequest, onChunk func(string)) (*Frame, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/v1/ai/chat/message/send-stream", req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	// 流开始前的失败仍是普通 JSON 响应
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return nil, decodeResponse(resp, nil)
	}
	return ReadFrames(resp.Body, onChunk)
}

// ReadFrames 从 SSE 响应体中读取帧，直到 done 或 error
func ReadFrames(r io.Reader, onChunk func(string)) (*Frame, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var frame Frame
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &frame); err != nil {
			return nil, fmt.Errorf("解析流式帧失败: %w", err)
		}
		switch frame.Type {
		case "chunk":
			if onChunk != nil {
				onChunk(frame.Content)
			}
		case "done":
			return &frame, nil
		case "error":
			return nil, &APIError{Status: http.StatusOK, Message: frame.Error}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取流式响应失败: %w", err)
	}
	return nil, ErrStreamClosed
}

// ==================== 通用请求封装 ====================

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(jsonBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	// 普通请求统一 30 秒超时
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return fmt.Errorf("解析响应失败 (HTTP %d): %w", resp.StatusCode, err)
	}
	if apiResp.Code != 0 {
		return &APIError{Status: resp.StatusCode, Code: apiResp.Code, Message: apiResp.Message}
	}

	if out == nil || len(apiResp.Data) == 0 || string(apiResp.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(apiResp.Data, out); err != nil {
		return fmt.Errorf("解析响应数据失败: %w", err)
	}
	return nil
}
