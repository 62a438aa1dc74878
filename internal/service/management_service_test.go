package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chongxue30/stu-agent/internal/llm"
	"github.com/chongxue30/stu-agent/internal/model"
)

func (f *fixture) conversations() *ConversationService {
	return NewConversationService(f.convs, f.messages, f.models, f.roles, f.store, f.cfg)
}

func TestCreateConversationDefaults(t *testing.T) {
	f := newFixture(t)
	f.cfg.DefaultTemperature = 0.7
	f.cfg.DefaultMaxTokens = 2048
	svc := f.conversations()

	conv, err := svc.Create(f.ctx, testUserID, &CreateConversationRequest{ModelID: f.aiModel.ID})
	require.NoError(t, err)
	assert.Equal(t, "新对话", conv.Title)
	assert.Equal(t, f.aiModel.Model, conv.Model)
	assert.InDelta(t, 0.7, conv.Temperature, 1e-9)
	assert.Equal(t, 2048, conv.MaxTokens)
	assert.Equal(t, 20, conv.MaxContexts)

	// 模型配置优先于全局默认值，请求参数优先于模型配置
	temp, maxContexts := 0.2, 6
	tuned := &model.AIModel{KeyID: f.key.ID, Name: "tuned", Model: "deepseek-reasoner", Platform: "deepseek",
		Status: model.StatusEnabled, Temperature: &temp, MaxContexts: &maxContexts}
	require.NoError(t, f.models.Create(f.ctx, tuned))
	maxTokens := 512
	conv, err = svc.Create(f.ctx, testUserID, &CreateConversationRequest{ModelID: tuned.ID, Title: "调参", MaxTokens: &maxTokens})
	require.NoError(t, err)
	assert.Equal(t, "调参", conv.Title)
	assert.InDelta(t, 0.2, conv.Temperature, 1e-9)
	assert.Equal(t, 512, conv.MaxTokens)
	assert.Equal(t, 6, conv.MaxContexts)

	_, err = svc.Create(f.ctx, testUserID, &CreateConversationRequest{ModelID: 999})
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestCreateConversationChecksPersona(t *testing.T) {
	f := newFixture(t)
	svc := f.conversations()

	other := int64(2)
	private := &model.ChatRole{UserID: &other, Name: "私有角色", SystemMessage: "hi"}
	require.NoError(t, f.roles.Create(f.ctx, private))
	public := &model.ChatRole{UserID: &other, Name: "公开角色", PublicStatus: true}
	require.NoError(t, f.roles.Create(f.ctx, public))
	disabled := &model.ChatRole{Name: "停用角色", PublicStatus: true}
	require.NoError(t, f.roles.Create(f.ctx, disabled))
	require.NoError(t, f.roles.UpdateFields(f.ctx, disabled.ID, map[string]interface{}{"status": model.StatusDisabled}))

	for _, id := range []int64{private.ID, disabled.ID, 999} {
		roleID := id
		_, err := svc.Create(f.ctx, testUserID, &CreateConversationRequest{ModelID: f.aiModel.ID, RoleID: &roleID})
		assert.ErrorIs(t, err, ErrPersonaNotFound, "role %d", id)
	}

	conv, err := svc.Create(f.ctx, testUserID, &CreateConversationRequest{ModelID: f.aiModel.ID, RoleID: &public.ID})
	require.NoError(t, err)
	require.NotNil(t, conv.RoleID)
	assert.Equal(t, public.ID, *conv.RoleID)

	// 创建者本人可以使用自己的私有角色
	_, err = svc.Create(f.ctx, other, &CreateConversationRequest{ModelID: f.aiModel.ID, RoleID: &private.ID})
	assert.NoError(t, err)
}

func TestUpdateConversation(t *testing.T) {
	f := newFixture(t)
	svc := f.conversations()

	title := "改名"
	other := f.addModel("deepseek-reasoner")
	conv, err := svc.Update(f.ctx, testUserID, &UpdateConversationRequest{ID: f.conv.ID, Title: &title, ModelID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, "改名", conv.Title)
	assert.Equal(t, other.ID, conv.ModelID)
	assert.Equal(t, "deepseek-reasoner", conv.Model)

	_, err = svc.Update(f.ctx, testUserID+1, &UpdateConversationRequest{ID: f.conv.ID, Title: &title})
	assert.ErrorIs(t, err, ErrConversationForbidden)
	_, err = svc.Update(f.ctx, testUserID, &UpdateConversationRequest{ID: 999, Title: &title})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestTogglePinAndList(t *testing.T) {
	f := newFixture(t)
	svc := f.conversations()
	f.seed("q1", "a1", "q2")

	newer, err := svc.Create(f.ctx, testUserID, &CreateConversationRequest{ModelID: f.aiModel.ID})
	require.NoError(t, err)

	pinned, err := svc.TogglePin(f.ctx, testUserID, f.conv.ID)
	require.NoError(t, err)
	assert.True(t, pinned)

	items, err := svc.List(f.ctx, testUserID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, f.conv.ID, items[0].ID)
	assert.True(t, items[0].Pinned)
	assert.Equal(t, int64(3), items[0].MessageCount)
	assert.Equal(t, newer.ID, items[1].ID)
	assert.Equal(t, int64(0), items[1].MessageCount)

	pinned, err = svc.TogglePin(f.ctx, testUserID, f.conv.ID)
	require.NoError(t, err)
	assert.False(t, pinned)

	_, err = svc.TogglePin(f.ctx, testUserID+1, f.conv.ID)
	assert.ErrorIs(t, err, ErrConversationForbidden)
}

func TestDeleteConversationResetsHistory(t *testing.T) {
	f := newFixture(t)
	svc := f.conversations()

	f.store.Append(f.conv.ID, llm.Message{Role: llm.RoleUser, Content: "cached"})
	require.Equal(t, 1, f.store.Len())

	assert.ErrorIs(t, svc.Delete(f.ctx, testUserID+1, f.conv.ID), ErrConversationNotFound)
	assert.Equal(t, 1, f.store.Len())

	require.NoError(t, svc.Delete(f.ctx, testUserID, f.conv.ID))
	assert.Equal(t, 0, f.store.Len())

	_, err := svc.Get(f.ctx, testUserID, f.conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.ErrorIs(t, svc.Delete(f.ctx, testUserID, f.conv.ID), ErrConversationNotFound)
}

func TestCreateModel(t *testing.T) {
	f := newFixture(t)
	svc := NewAIModelService(f.models, f.keys)

	m, err := svc.CreateModel(f.ctx, &CreateModelRequest{KeyID: f.key.ID, Name: "千问", Platform: "qwen"})
	require.NoError(t, err)
	assert.Equal(t, "tongyi", m.Platform)
	assert.Equal(t, "qwen-turbo", m.Model)

	_, err = svc.CreateModel(f.ctx, &CreateModelRequest{KeyID: 999, Name: "x", Platform: "deepseek"})
	assert.ErrorIs(t, err, ErrCredentialUnavailable)

	_, err = svc.CreateModel(f.ctx, &CreateModelRequest{KeyID: f.key.ID, Name: "x", Model: "m", Platform: "somewhere"})
	assert.ErrorIs(t, err, ErrUnknownPlatform)

	items, err := svc.SimpleList(f.ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	assert.Contains(t, names, "千问")
}

func TestAPIKeysAreMasked(t *testing.T) {
	f := newFixture(t)
	svc := NewAIModelService(f.models, f.keys)

	created, err := svc.CreateAPIKey(f.ctx, &CreateAPIKeyRequest{Name: "openai", APIKey: " sk-1234567890abcd ", Platform: "OpenAI"})
	require.NoError(t, err)
	assert.Equal(t, "sk-1****abcd", created.Masked)

	items, err := svc.ListAPIKeys(f.ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.NotContains(t, it.Masked, "567890")
		assert.NotEqual(t, "sk-test", it.Masked)
	}
}
