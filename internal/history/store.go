// Package history 为自动记忆模式维护按对话划分的消息缓存
// 缓存只是已保存消息的副本，首次访问时通过 Loader 重建，重启后从空开始
package history

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/chongxue30/stu-agent/internal/llm"
)

// Loader 从存储中重建单个对话的缓存
type Loader func(ctx context.Context, conversationID int64) ([]llm.Message, error)

type entry struct {
	turn sync.Mutex // Lock 在整轮对话期间持有

	mu     sync.Mutex
	loaded bool
	msgs   []llm.Message
}

// Store 会话历史缓存，可并发使用
// 读取、调用模型、追加三步必须在同一个 Lock 内完成
type Store struct {
	mu      sync.Mutex
	entries map[int64]*entry

	loader Loader
	group  singleflight.Group
}

// NewStore 创建空的缓存
// 参数:
//   - loader: 重建函数，为 nil 时新对话从空缓存开始
func NewStore(loader Loader) *Store {
	return &Store{
		entries: make(map[int64]*entry),
		loader:  loader,
	}
}

func (s *Store) entry(key int64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

// Lock 串行化同一对话的轮次，返回解锁函数
func (s *Store) Lock(key int64) func() {
	e := s.entry(key)
	e.turn.Lock()
	return e.turn.Unlock
}

// Load 返回对话缓存的副本，首次访问时重建
// 同一对话的并发重建只调用一次 Loader
// 返回:
//   - []llm.Message: 缓存副本
//   - error: Loader 失败时返回，此时对话仍视为未加载
func (s *Store) Load(ctx context.Context, key int64) ([]llm.Message, error) {
	e := s.entry(key)

	e.mu.Lock()
	if e.loaded {
		out := append([]llm.Message(nil), e.msgs...)
		e.mu.Unlock()
		return out, nil
	}
	e.mu.Unlock()

	_, err, _ := s.group.Do(strconv.FormatInt(key, 10), func() (interface{}, error) {
		var msgs []llm.Message
		if s.loader != nil {
			var err error
			msgs, err = s.loader(ctx, key)
			if err != nil {
				return nil, err
			}
			slog.Debug("history rebuilt", "conversation_id", key, "messages", len(msgs))
		}

		e.mu.Lock()
		if !e.loaded {
			e.msgs = msgs
			e.loaded = true
		}
		e.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]llm.Message(nil), e.msgs...), nil
}

// Append 向对话缓存末尾追加消息
func (s *Store) Append(key int64, msgs ...llm.Message) {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, msgs...)
	e.loaded = true
}

// Reset 清空对话缓存，下次 Load 时重建
// 只清空内容，Lock 使用的互斥锁保留
func (s *Store) Reset(key int64) {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = nil
	e.loaded = false
}

// Len 返回已加载缓存的对话数量
func (s *Store) Len() int {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	n := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.loaded {
			n++
		}
		e.mu.Unlock()
	}
	return n
}
