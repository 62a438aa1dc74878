package websocket

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chongxue30/stu-agent/internal/config"
	"github.com/chongxue30/stu-agent/internal/database/dbtest"
	"github.com/chongxue30/stu-agent/internal/history"
	"github.com/chongxue30/stu-agent/internal/llm"
	"github.com/chongxue30/stu-agent/internal/model"
	"github.com/chongxue30/stu-agent/internal/repository"
	"github.com/chongxue30/stu-agent/internal/service"
	pkgJwt "github.com/chongxue30/stu-agent/pkg/jwt"
	"github.com/chongxue30/stu-agent/pkg/response"
)

type chunkClient struct {
	chunks []string
}

func (c *chunkClient) Chat(context.Context, []llm.Message) (string, error) {
	return strings.Join(c.chunks, ""), nil
}

func (c *chunkClient) ChatStream(context.Context, []llm.Message) (llm.Stream, error) {
	return &chunkStream{chunks: append([]string(nil), c.chunks...)}, nil
}

type chunkStream struct {
	chunks []string
}

func (s *chunkStream) Recv() (string, error) {
	if len(s.chunks) == 0 {
		return "", io.EOF
	}
	next := s.chunks[0]
	s.chunks = s.chunks[1:]
	return next, nil
}

func (s *chunkStream) Close() error { return nil }

type wsEnv struct {
	url      string
	token    string
	convID   int64
	hub      *Hub
	messages *repository.MessageRepository
}

func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	db := dbtest.New(t)

	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	modelRepo := repository.NewAIModelRepository(db)
	keyRepo := repository.NewAPIKeyRepository(db)

	key := &model.APIKey{Name: "k", APIKey: "sk-test", Platform: "deepseek", Status: model.StatusEnabled}
	require.NoError(t, keyRepo.Create(ctx, key))
	m := &model.AIModel{KeyID: key.ID, Name: "chat", Model: "deepseek-chat", Platform: "deepseek", Status: model.StatusEnabled}
	require.NoError(t, modelRepo.Create(ctx, m))
	conv := &model.Conversation{UserID: 1, Title: "t", ModelID: m.ID, Model: m.Model}
	require.NoError(t, convRepo.Create(ctx, conv))

	client := &chunkClient{chunks: []string{"你", "好"}}
	cfg := config.AIConfig{RequestTimeout: time.Second, StreamTimeout: time.Second, DefaultMaxContexts: 20}
	chat := service.NewChatService(
		convRepo, msgRepo,
		service.NewContextAssembler(msgRepo, repository.NewChatRoleRepository(db), modelRepo, cfg.DefaultMaxContexts),
		service.NewModelResolver(modelRepo, keyRepo, func(llm.Config) (llm.Client, error) { return client, nil }),
		history.NewStore(service.NewHistoryLoader(msgRepo, 50)),
		nil, nil, cfg,
	)

	jwtService := pkgJwt.NewJWTService("ws-test-secret-ws-test-secret-123", time.Hour, time.Hour)
	token, err := jwtService.GenerateAccessToken(1, "alice")
	require.NoError(t, err)

	hubCtx, stop := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(hubCtx)

	r := gin.New()
	NewHandler(hub, chat, jwtService, nil, []string{"*"}).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		stop()
		srv.Close()
	})

	return &wsEnv{
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat",
		token:    token,
		convID:   conv.ID,
		hub:      hub,
		messages: msgRepo,
	}
}

func (e *wsEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.url+"?token="+e.token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type rawMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	MessageID string          `json:"message_id"`
}

func readMessage(t *testing.T, conn *websocket.Conn) rawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg rawMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestChatSendStreamsChunksThenDone(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)

	require.NoError(t, conn.WriteJSON(gin.H{
		"type":       TypeChatSend,
		"message_id": "trace-1",
		"payload":    gin.H{"conversation_id": env.convID, "content": "hi"},
	}))

	var content strings.Builder
	for {
		msg := readMessage(t, conn)
		assert.Equal(t, "trace-1", msg.MessageID)
		if msg.Type != TypeChatChunk {
			require.Equal(t, TypeChatDone, msg.Type, string(msg.Payload))
			var done ChatDonePayload
			require.NoError(t, json.Unmarshal(msg.Payload, &done))
			assert.Equal(t, env.convID, done.ConversationID)
			assert.NotZero(t, done.MessageID)
			assert.Equal(t, "deepseek-chat", done.Model)
			break
		}
		var chunk ChatChunkPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &chunk))
		content.WriteString(chunk.Content)
	}
	assert.Equal(t, "你好", content.String())

	msgs, err := env.messages.ListByConversationID(context.Background(), env.convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "你好", msgs[1].Content)
}

func TestChatSendErrors(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)

	require.NoError(t, conn.WriteJSON(gin.H{"type": TypeChatSend, "payload": gin.H{"conversation_id": env.convID}}))
	msg := readMessage(t, conn)
	assert.Equal(t, TypeChatError, msg.Type)

	require.NoError(t, conn.WriteJSON(gin.H{"type": TypeChatSend, "payload": gin.H{"conversation_id": 999, "content": "x"}}))
	msg = readMessage(t, conn)
	require.Equal(t, TypeChatError, msg.Type)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, response.CodeConversationNotFound, payload.Code)
}

func TestHeartbeatGetsPong(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)

	require.NoError(t, conn.WriteJSON(gin.H{"type": TypeHeartbeat, "message_id": "hb"}))
	msg := readMessage(t, conn)
	assert.Equal(t, TypePong, msg.Type)
	assert.Equal(t, "hb", msg.MessageID)

	require.NoError(t, conn.WriteJSON(gin.H{"type": "terminal:input"}))
	assert.Equal(t, TypeError, readMessage(t, conn).Type)
}

func TestRejectsMissingOrInvalidToken(t *testing.T) {
	env := newWSEnv(t)

	_, resp, err := websocket.DefaultDialer.Dial(env.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(env.url+"?token=garbage", nil)
	require.Error(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestHubTracksAndClosesClients(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)

	require.Eventually(t, func() bool { return env.hub.ClientCount(1) == 1 }, 2*time.Second, 10*time.Millisecond)

	env.hub.CloseAll()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Equal(t, 0, env.hub.ClientCount(1))
}
