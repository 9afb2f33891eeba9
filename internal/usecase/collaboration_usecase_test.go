package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/repo/memstore"
)

func TestJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("owner starts session", func(t *testing.T) {
		f := newFixture(t)
		chat := f.newChat(t, alice, false)

		sess, err := f.collab.Join(ctx, chat.ID, alice)
		require.NoError(t, err)
		require.Len(t, sess.Participants, 1)
		assert.Equal(t, models.ParticipantOwner, sess.Participants[0].Role)
	})

	t.Run("rejoin keeps one participant", func(t *testing.T) {
		f := newFixture(t)
		chat := f.newChat(t, alice, true)

		first, err := f.collab.Join(ctx, chat.ID, alice)
		require.NoError(t, err)
		_, err = f.collab.Join(ctx, chat.ID, bob)
		require.NoError(t, err)
		again, err := f.collab.Join(ctx, chat.ID, bob)
		require.NoError(t, err)

		assert.Equal(t, first.ID, again.ID)
		require.Len(t, again.Participants, 2)
		p, ok := again.Participant(bob.ID)
		require.True(t, ok)
		assert.Equal(t, models.ParticipantCollaborator, p.Role)
	})

	t.Run("private chat denies others", func(t *testing.T) {
		f := newFixture(t)
		chat := f.newChat(t, alice, false)

		_, err := f.collab.Join(ctx, chat.ID, bob)
		assert.ErrorIs(t, err, models.ErrAccessDenied)
	})

	t.Run("collaborator needs a live session", func(t *testing.T) {
		f := newFixture(t)
		chat := f.newChat(t, alice, true)

		_, err := f.collab.Join(ctx, chat.ID, bob)
		assert.ErrorIs(t, err, models.ErrNoActiveSession)
	})

	t.Run("expired session is replaced", func(t *testing.T) {
		f := newFixture(t)
		chat := f.newChat(t, alice, true)
		start := time.Now()
		f.collab.now = func() time.Time { return start }

		old, err := f.collab.Join(ctx, chat.ID, alice)
		require.NoError(t, err)

		f.collab.now = func() time.Time { return start.Add(models.SessionInactivityWindow + time.Second) }
		_, err = f.collab.Join(ctx, chat.ID, bob)
		assert.ErrorIs(t, err, models.ErrNoActiveSession)

		fresh, err := f.collab.Join(ctx, chat.ID, alice)
		require.NoError(t, err)
		assert.NotEqual(t, old.ID, fresh.ID)
	})

	t.Run("unknown chat", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.collab.Join(ctx, models.NewObjectID(), alice)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestHeartbeatAndLeave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	chat := f.newChat(t, alice, true)

	sess, err := f.collab.Join(ctx, chat.ID, alice)
	require.NoError(t, err)
	_, err = f.collab.Join(ctx, chat.ID, bob)
	require.NoError(t, err)

	assert.ErrorIs(t, f.collab.Heartbeat(ctx, "", bob), models.ErrSessionIDRequired)
	assert.ErrorIs(t, f.collab.Heartbeat(ctx, sess.ID, carol), models.ErrAccessDenied)
	require.NoError(t, f.collab.Heartbeat(ctx, sess.ID, bob))

	require.NoError(t, f.collab.Leave(ctx, sess.ID, bob))
	_, err = f.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)

	require.NoError(t, f.collab.Leave(ctx, sess.ID, alice))
	_, err = f.sessions.GetByID(ctx, sess.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Len(t, f.broadcaster.ofType(models.EventUserLeave), 2)
	assert.ErrorIs(t, f.collab.Leave(ctx, sess.ID, alice), models.ErrNoActiveSession)
}

func TestEndSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	chat := f.newChat(t, alice, true)

	_, err := f.collab.Join(ctx, chat.ID, alice)
	require.NoError(t, err)

	assert.ErrorIs(t, f.collab.EndSession(ctx, chat.ID, bob), models.ErrForbidden)
	require.NoError(t, f.collab.EndSession(ctx, chat.ID, alice))

	_, ok := f.collab.ActiveSession(ctx, chat.ID)
	assert.False(t, ok)
	got, err := f.chats.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCollaborative)
	assert.Len(t, f.broadcaster.ofType(models.EventSessionEnd), 1)
}

func TestCanEdit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	chat := f.newChat(t, alice, true)

	assert.NoError(t, f.collab.CanEdit(ctx, chat.ID, alice))
	assert.ErrorIs(t, f.collab.CanEdit(ctx, chat.ID, bob), models.ErrNoActiveSession)

	_, err := f.collab.Join(ctx, chat.ID, alice)
	require.NoError(t, err)
	assert.ErrorIs(t, f.collab.CanEdit(ctx, chat.ID, bob), models.ErrForbidden)

	_, err = f.collab.Join(ctx, chat.ID, bob)
	require.NoError(t, err)
	assert.NoError(t, f.collab.CanEdit(ctx, chat.ID, bob))

	require.NoError(t, f.collab.SetParticipantRole(ctx, chat.ID, alice, bob.ID, models.ParticipantViewer))
	assert.ErrorIs(t, f.collab.CanEdit(ctx, chat.ID, bob), models.ErrForbidden)

	assert.ErrorIs(t, f.collab.SetParticipantRole(ctx, chat.ID, bob, bob.ID, models.ParticipantCollaborator), models.ErrForbidden)
	assert.ErrorIs(t, f.collab.SetParticipantRole(ctx, chat.ID, alice, alice.ID, models.ParticipantViewer), models.ErrValidation)

	private := f.newChat(t, alice, false)
	assert.ErrorIs(t, f.collab.CanEdit(ctx, private.ID, bob), models.ErrForbidden)
}

func TestEditsKeepSessionAlive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	chat := f.newChat(t, alice, true)

	start := time.Now()
	at := func(d time.Duration) { f.collab.now = func() time.Time { return start.Add(d) } }
	at(0)
	sess, err := f.collab.Join(ctx, chat.ID, alice)
	require.NoError(t, err)
	_, err = f.collab.Join(ctx, chat.ID, bob)
	require.NoError(t, err)

	step := models.SessionInactivityWindow * 4 / 5
	at(step)
	first := f.newNode(t, bob, chat.ID, nil, "first")

	// past the window from the last heartbeat, inside it from the last edit
	at(2 * step)
	f.newNode(t, bob, chat.ID, first, "second")

	got, err := f.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.LastActivity.Equal(start.Add(2*step)))
	p, ok := got.Participant(bob.ID)
	require.True(t, ok)
	assert.True(t, p.LastActivity.Equal(start.Add(2*step)))

	t.Run("socket activity", func(t *testing.T) {
		at(3 * step)
		require.NoError(t, f.collab.RecordActivity(ctx, chat.ID, bob))
		require.NoError(t, f.collab.RecordActivity(ctx, chat.ID, carol))

		got, err := f.sessions.GetByID(ctx, sess.ID)
		require.NoError(t, err)
		assert.True(t, got.LastActivity.Equal(start.Add(3*step)))
		_, ok := got.Participant(carol.ID)
		assert.False(t, ok)
	})

	t.Run("idle session still expires", func(t *testing.T) {
		at(3*step + models.SessionInactivityWindow + time.Second)
		assert.ErrorIs(t, f.collab.CanEdit(ctx, chat.ID, bob), models.ErrNoActiveSession)
	})
}

type slowSessionStore struct {
	*memstore.SessionStore
}

func (s slowSessionStore) FindByChat(ctx context.Context, _ models.ObjectID) (*models.CollaborationSession, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestActiveSessionTimeout(t *testing.T) {
	f := newFixture(t)
	f.conf.Collab.LivenessTimeout = 20 * time.Millisecond
	uc := NewCollaborationUsecase(f.conf, f.chats, slowSessionStore{memstore.NewSessionStore()}, f.broadcaster)

	start := time.Now()
	sess, ok := uc.ActiveSession(context.Background(), models.NewObjectID())
	assert.False(t, ok)
	assert.Nil(t, sess)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stale := f.newChat(t, alice, true)
	live := f.newChat(t, alice, true)

	now := time.Now()
	f.collab.now = func() time.Time { return now.Add(-time.Hour) }
	_, err := f.collab.Join(ctx, stale.ID, alice)
	require.NoError(t, err)
	f.collab.now = func() time.Time { return now }
	_, err = f.collab.Join(ctx, live.ID, alice)
	require.NoError(t, err)

	n, err := f.collab.Sweep(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = f.sessions.FindByChat(ctx, stale.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, ok := f.collab.ActiveSession(ctx, live.ID)
	assert.True(t, ok)
}
