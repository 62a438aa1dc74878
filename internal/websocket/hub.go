package websocket

import (
	"context"
	"log/slog"
	"sync"
)

// Hub 是 WebSocket 连接的中心管理器
// 按用户维护连接，一个用户可以同时有多个连接
type Hub struct {
	// userID -> 连接集合
	clients map[int64]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	done       chan struct{} // Run 退出后关闭

	mu sync.RWMutex
}

// NewHub 创建 Hub 实例
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 的主循环，ctx 结束时关闭全部连接
// 应该在单独的 goroutine 中运行
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.CloseAll()
			return
		}
	}
}

// Register 注册客户端，Hub 已停止时直接关闭客户端
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[client.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[client.userID] = set
	}
	set[client] = struct{}{}
	slog.Info("websocket client registered", "user_id", client.userID, "connections", len(set))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
	client.Close()
	slog.Info("websocket client unregistered", "user_id", client.userID)
}

// ClientCount 返回用户当前的连接数
func (h *Hub) ClientCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// CloseAll 关闭全部连接，进行中的推理按中断处理
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, set := range h.clients {
		for client := range set {
			client.Close()
		}
		delete(h.clients, userID)
	}
}
