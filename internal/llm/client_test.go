package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Stream      bool    `json:"stream"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newFakeProvider(t *testing.T, handler func(w http.ResponseWriter, req capturedRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req capturedRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{Model: "m"})
	assert.Error(t, err)

	_, err = NewClient(Config{APIKey: "k"})
	assert.Error(t, err)

	c, err := NewClient(Config{APIKey: "k", Model: "m", BaseURL: "http://localhost"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestClientChat(t *testing.T) {
	var seen capturedRequest
	srv := newFakeProvider(t, func(w http.ResponseWriter, req capturedRequest) {
		seen = req
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"pong"},"finish_reason":"stop"}],"usage":{"total_tokens":3}}`)
	})

	client, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "deepseek-chat", Temperature: 0.3, MaxTokens: 64})
	require.NoError(t, err)

	reply, err := client.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "ping"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", reply)

	assert.Equal(t, "deepseek-chat", seen.Model)
	assert.InDelta(t, 0.3, seen.Temperature, 0.0001)
	assert.Equal(t, 64, seen.MaxTokens)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Equal(t, "ping", seen.Messages[1].Content)
}

func TestClientChatProviderError(t *testing.T) {
	srv := newFakeProvider(t, func(w http.ResponseWriter, _ capturedRequest) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid key","type":"auth"}}`)
	})

	client, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "m"})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	assert.Error(t, err)
}

func TestClientChatStream(t *testing.T) {
	srv := newFakeProvider(t, func(w http.ResponseWriter, req capturedRequest) {
		assert.True(t, req.Stream)
		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		}
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	client, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "m"})
	require.NoError(t, err)

	stream, err := client.ChatStream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	defer stream.Close()

	var got []string
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, chunk)
	}
	assert.Equal(t, []string{"Hel", "lo"}, got)
}

func TestConvertMessages(t *testing.T) {
	out := convertMessages([]Message{
		{Role: RoleSystem, Content: "s"},
		{Role: RoleAssistant, Content: "a"},
		{Role: RoleUser, Content: "u"},
	})
	require.Len(t, out, 3)
	assert.Equal(t, "system", out[0].Role)
	assert.Equal(t, "assistant", out[1].Role)
	assert.Equal(t, "user", out[2].Role)
}
