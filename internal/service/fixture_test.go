package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chongxue30/stu-agent/internal/config"
	"github.com/chongxue30/stu-agent/internal/database/dbtest"
	"github.com/chongxue30/stu-agent/internal/history"
	"github.com/chongxue30/stu-agent/internal/llm"
	"github.com/chongxue30/stu-agent/internal/metrics"
	"github.com/chongxue30/stu-agent/internal/model"
	"github.com/chongxue30/stu-agent/internal/repository"
)

const testUserID int64 = 1

// fakeProvider 按脚本返回结果的模型客户端，同时记录收到的请求
type fakeProvider struct {
	mu sync.Mutex

	reply   string
	err     error
	block   bool // 阻塞直到 ctx 结束
	chunks  []string
	tailErr error // 所有分段发送后返回的错误，nil 表示正常结束
	openErr error

	configs []llm.Config
	calls   [][]llm.Message
}

func (p *fakeProvider) factory(cfg llm.Config) (llm.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs = append(p.configs, cfg)
	return p, nil
}

func (p *fakeProvider) record(messages []llm.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]llm.Message(nil), messages...))
}

func (p *fakeProvider) lastCall() []llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return nil
	}
	return p.calls[len(p.calls)-1]
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakeProvider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	p.record(messages)
	if p.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func (p *fakeProvider) ChatStream(ctx context.Context, messages []llm.Message) (llm.Stream, error) {
	p.record(messages)
	if p.openErr != nil {
		return nil, p.openErr
	}
	return &fakeStream{ctx: ctx, chunks: p.chunks, tailErr: p.tailErr, block: p.block}, nil
}

type fakeStream struct {
	ctx     context.Context
	chunks  []string
	next    int
	tailErr error
	block   bool // 分段发完后阻塞直到 ctx 结束
}

func (s *fakeStream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if s.next < len(s.chunks) {
		s.next++
		return s.chunks[s.next-1], nil
	}
	if s.block {
		<-s.ctx.Done()
		return "", s.ctx.Err()
	}
	if s.tailErr != nil {
		return "", s.tailErr
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error { return nil }

// fakeLocker 内存实现的对话锁
type fakeLocker struct {
	mu   sync.Mutex
	held map[int64]bool
}

func (l *fakeLocker) AcquireTurn(_ context.Context, conversationID int64, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[int64]bool)
	}
	if l.held[conversationID] {
		return "", false, nil
	}
	l.held[conversationID] = true
	return "token", true, nil
}

func (l *fakeLocker) ReleaseTurn(_ context.Context, conversationID int64, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, conversationID)
	return nil
}

func (l *fakeLocker) isHeld(conversationID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[conversationID]
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	convs    *repository.ConversationRepository
	messages *repository.MessageRepository
	models   *repository.AIModelRepository
	keys     *repository.APIKeyRepository
	roles    *repository.ChatRoleRepository
	provider *fakeProvider
	locker   *fakeLocker
	store    *history.Store
	recorder *metrics.Recorder
	cfg      config.AIConfig

	key     *model.APIKey
	aiModel *model.AIModel
	conv    *model.Conversation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		convs:    repository.NewConversationRepository(db),
		messages: repository.NewMessageRepository(db),
		models:   repository.NewAIModelRepository(db),
		keys:     repository.NewAPIKeyRepository(db),
		roles:    repository.NewChatRoleRepository(db),
		provider: &fakeProvider{reply: "pong"},
		locker:   &fakeLocker{},
		recorder: metrics.NewRecorder(),
		cfg: config.AIConfig{
			RequestTimeout:      time.Second,
			StreamTimeout:       time.Second,
			DefaultMaxContexts:  20,
			HistoryRebuildLimit: 50,
			DefaultLanguage:     "中文",
		},
	}
	f.store = history.NewStore(NewHistoryLoader(f.messages, f.cfg.HistoryRebuildLimit))

	f.key = &model.APIKey{Name: "deepseek", APIKey: "sk-test", Platform: "deepseek", Status: model.StatusEnabled}
	require.NoError(t, f.keys.Create(f.ctx, f.key))
	f.aiModel = f.addModel("deepseek-chat")

	f.conv = &model.Conversation{
		UserID:      testUserID,
		Title:       "测试对话",
		ModelID:     f.aiModel.ID,
		Model:       f.aiModel.Model,
		Temperature: 0.3,
		MaxTokens:   1024,
		MaxContexts: 10,
	}
	require.NoError(t, f.convs.Create(f.ctx, f.conv))
	return f
}

func (f *fixture) addModel(name string) *model.AIModel {
	f.t.Helper()
	m := &model.AIModel{KeyID: f.key.ID, Name: name, Model: name, Platform: "deepseek", Status: model.StatusEnabled}
	require.NoError(f.t, f.models.Create(f.ctx, m))
	return m
}

func (f *fixture) service() *ChatService {
	return f.serviceWith(f.messages)
}

func (f *fixture) serviceWith(messages MessageStore) *ChatService {
	assembler := NewContextAssembler(messages, f.roles, f.models, f.cfg.DefaultMaxContexts)
	resolver := NewModelResolver(f.models, f.keys, f.provider.factory)
	return NewChatService(f.convs, messages, assembler, resolver, f.store, f.recorder, f.locker, f.cfg)
}

// seed 依次写入 user/assistant 交替的消息
func (f *fixture) seed(contents ...string) []*model.Message {
	f.t.Helper()
	out := make([]*model.Message, 0, len(contents))
	for i, c := range contents {
		typ := model.MessageTypeUser
		if i%2 == 1 {
			typ = model.MessageTypeAssistant
		}
		m := &model.Message{
			ConversationID: f.conv.ID,
			UserID:         testUserID,
			Type:           typ,
			Model:          f.aiModel.Model,
			ModelID:        f.aiModel.ID,
			Content:        c,
		}
		require.NoError(f.t, f.messages.Create(f.ctx, m))
		out = append(out, m)
	}
	return out
}

func (f *fixture) contents() []string {
	f.t.Helper()
	msgs, err := f.messages.ListByConversationID(f.ctx, f.conv.ID)
	require.NoError(f.t, err)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func (f *fixture) setMaxContexts(n int) {
	f.t.Helper()
	require.NoError(f.t, f.convs.UpdateFields(f.ctx, f.conv.ID, map[string]interface{}{"max_contexts": n}))
	f.conv.MaxContexts = n
}

// failingHardDelete 补偿删除总是失败的消息存储
type failingHardDelete struct {
	MessageStore
}

func (failingHardDelete) HardDelete(context.Context, int64) error {
	return io.ErrUnexpectedEOF
}

// scrape 返回 /metrics 的文本输出
func scrape(t *testing.T, f *fixture) string {
	t.Helper()
	w := httptest.NewRecorder()
	f.recorder.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}
