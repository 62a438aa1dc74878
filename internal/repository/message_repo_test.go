package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chongxue30/stu-agent/internal/database/dbtest"
	"github.com/chongxue30/stu-agent/internal/model"
)

func seedMessages(t *testing.T, repo *MessageRepository, convID int64, contents ...string) []*model.Message {
	t.Helper()
	out := make([]*model.Message, 0, len(contents))
	for i, c := range contents {
		typ := model.MessageTypeUser
		if i%2 == 1 {
			typ = model.MessageTypeAssistant
		}
		m := &model.Message{ConversationID: convID, UserID: 1, Type: typ, Model: "m", ModelID: 1, Content: c}
		require.NoError(t, repo.Create(context.Background(), m))
		out = append(out, m)
	}
	return out
}

func TestMessageRepositoryWindow(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(dbtest.New(t))
	seeded := seedMessages(t, repo, 7, "a", "b", "c", "d")
	seedMessages(t, repo, 8, "other")

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "newest first", limit: 2, want: []string{"d", "c"}},
		{name: "limit above count", limit: 10, want: []string{"d", "c", "b", "a"}},
		{name: "zero limit", limit: 0, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Window(ctx, 7, tt.limit)
			require.NoError(t, err)
			contents := make([]string, 0, len(got))
			for _, m := range got {
				contents = append(contents, m.Content)
			}
			assert.Equal(t, tt.want, contents)
		})
	}

	require.NoError(t, repo.SoftDelete(ctx, seeded[3].ID))
	got, err := repo.Window(ctx, 7, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].Content)
}

func TestMessageRepositoryHardDeleteRemovesRow(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	repo := NewMessageRepository(db)
	seeded := seedMessages(t, repo, 1, "keep", "drop")

	require.NoError(t, repo.HardDelete(ctx, seeded[1].ID))

	var total int64
	require.NoError(t, db.Model(&model.Message{}).Where("id = ?", seeded[1].ID).Count(&total).Error)
	assert.Zero(t, total)

	count, err := repo.CountByConversationID(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestMessageRepositorySoftDeleteKeepsRow(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	repo := NewMessageRepository(db)
	seeded := seedMessages(t, repo, 1, "x")

	require.NoError(t, repo.SoftDelete(ctx, seeded[0].ID))

	got, err := repo.GetByID(ctx, seeded[0].ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	var raw model.Message
	require.NoError(t, db.First(&raw, seeded[0].ID).Error)
	assert.True(t, raw.Deleted)
}

func TestMessageRepositoryCountByConversationIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(dbtest.New(t))
	seedMessages(t, repo, 1, "a", "b", "c")
	seedMessages(t, repo, 2, "a")

	counts, err := repo.CountByConversationIDs(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 3, 2: 1}, counts)

	empty, err := repo.CountByConversationIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMessageRepositorySegmentIDsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(dbtest.New(t))
	m := &model.Message{ConversationID: 1, UserID: 1, Type: model.MessageTypeUser, Model: "m", ModelID: 1, Content: "q", SegmentIDs: []int64{3, 5}}
	require.NoError(t, repo.Create(ctx, m))

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5}, []int64(got.SegmentIDs))
}
