package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func create(t *testing.T, s *MessageStore, chatID models.ObjectID, parent *models.Message) *models.Message {
	t.Helper()
	m := &models.Message{ChatID: chatID, Role: models.RoleUser, Content: "hi"}
	if parent != nil {
		m.ParentID = &parent.ID
	}
	out, err := s.Create(context.Background(), m)
	require.NoError(t, err)
	return out
}

func TestMessageStore_PositionsBatchAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore()
	a := create(t, s, "chat-1", nil)
	b := create(t, s, "chat-1", a)
	foreign := create(t, s, "chat-2", nil)

	err := s.UpdatePositionsBatch(ctx, "chat-1", []models.PositionUpdate{
		{ID: a.ID, X: 10, Y: 10},
		{ID: foreign.ID, X: 20, Y: 20},
		{ID: b.ID, X: 30, Y: 30},
	}, "u1")
	require.ErrorIs(t, err, models.ErrForbidden)

	for _, id := range []models.ObjectID{a.ID, b.ID, foreign.ID} {
		m, err := s.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Zero(t, m.XPosition)
		assert.Nil(t, m.EditedAt)
	}

	require.NoError(t, s.UpdatePositionsBatch(ctx, "chat-1", []models.PositionUpdate{
		{ID: a.ID, X: 10, Y: 11},
	}, "u1"))
	m, err := s.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Position{X: 10, Y: 11}, m.Position())
	assert.Equal(t, "u1", *m.LastEditedBy)
}

func TestMessageStore_DeleteSubtree(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore()
	root := create(t, s, "chat", nil)
	a := create(t, s, "chat", root)
	b := create(t, s, "chat", root)
	a1 := create(t, s, "chat", a)
	a2 := create(t, s, "chat", a)

	deleted, err := s.DeleteSubtree(ctx, a.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.ObjectID{a.ID, a1.ID, a2.ID}, deleted)

	left, err := s.ListByChat(ctx, "chat")
	require.NoError(t, err)
	var ids []models.ObjectID
	for _, m := range left {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []models.ObjectID{root.ID, b.ID}, ids)

	_, err = s.DeleteSubtree(ctx, a.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMessageStore_ListChildren(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore()
	root := create(t, s, "chat", nil)
	create(t, s, "chat", root)
	create(t, s, "chat", root)

	children, err := s.ListChildren(ctx, root.ID)
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	now := time.Now()

	sess, err := s.Create(ctx, &models.CollaborationSession{ChatID: "chat", ActiveSince: now, LastActivity: now})
	require.NoError(t, err)

	t.Run("upsert is idempotent", func(t *testing.T) {
		p := &models.Participant{SessionID: sess.ID, UserID: "u1", Role: models.ParticipantOwner, JoinedAt: now, LastActivity: now}
		_, err := s.UpsertParticipant(ctx, p)
		require.NoError(t, err)
		p.LastActivity = now.Add(time.Minute)
		_, err = s.UpsertParticipant(ctx, p)
		require.NoError(t, err)

		got, err := s.FindByChat(ctx, "chat")
		require.NoError(t, err)
		require.Len(t, got.Participants, 1)
		assert.Equal(t, now.Add(time.Minute), got.Participants[0].LastActivity)
	})

	t.Run("remove reports remaining", func(t *testing.T) {
		n, err := s.RemoveParticipant(ctx, sess.ID, "u1")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("idle sweep", func(t *testing.T) {
		n, err := s.DeleteIdleBefore(ctx, now.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		_, err = s.FindByChat(ctx, "chat")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestActivityStore_ListByChat(t *testing.T) {
	ctx := context.Background()
	s := NewActivityStore()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Create(ctx, &models.Activity{ChatID: "chat", Action: models.EventNodeCreate}))
	}
	require.NoError(t, s.Create(ctx, &models.Activity{ChatID: "other", Action: models.EventNodeDelete}))

	list, err := s.ListByChat(ctx, "chat", 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
