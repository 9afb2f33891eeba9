package collab

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/repo/realtime"
)

type savedBatch struct {
	user    models.User
	updates []models.PositionUpdate
}

type recordingSaver struct {
	mu      sync.Mutex
	batches []savedBatch
}

func (s *recordingSaver) UpdatePositions(_ context.Context, user models.User, _ models.ObjectID, updates []models.PositionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, savedBatch{user: user, updates: updates})
	return nil
}

func (s *recordingSaver) all() []savedBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]savedBatch(nil), s.batches...)
}

type inbox struct {
	mu     sync.Mutex
	events []models.Event
}

func (in *inbox) deliver(e models.Event) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.events = append(in.events, e)
}

func (in *inbox) types() []models.EventType {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]models.EventType, 0, len(in.events))
	for _, e := range in.events {
		out = append(out, e.Type)
	}
	return out
}

type room struct {
	hub    *realtime.Hub
	deps   Deps
	saver  *recordingSaver
	chatID models.ObjectID
	cfg    Config
}

func newRoom() *room {
	hub := realtime.NewHub()
	saver := &recordingSaver{}
	return &room{
		hub:   hub,
		saver: saver,
		deps: Deps{
			Transport:   hub,
			Broadcaster: realtime.NewBroadcaster(hub),
			Registry:    NewRegistry(),
			Positions:   saver,
		},
		chatID: models.NewObjectID(),
		cfg: Config{
			PositionDebounce: time.Hour,
			CursorRate:       rate.Inf,
			CursorBurst:      1,
		},
	}
}

func (r *room) open(t *testing.T, user models.User) (*Controller, *inbox) {
	t.Helper()
	in := &inbox{}
	c := NewController(r.cfg, r.deps, r.chatID, user, in.deliver)
	require.NoError(t, c.Start(context.Background()))
	return c, in
}

var (
	alice = models.User{ID: "alice", Name: "Alice"}
	bob   = models.User{ID: "bob", Name: "Bob"}
)

func TestPickColor(t *testing.T) {
	assert.Equal(t, Palette[0], PickColor(nil))
	assert.Equal(t, Palette[2], PickColor(map[string]bool{Palette[0]: true, Palette[1]: true}))

	all := make(map[string]bool)
	for _, c := range Palette {
		all[c] = true
	}
	assert.Contains(t, Palette, PickColor(all))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := r.Join("chat", alice)
	b := r.Join("chat", bob)
	assert.Equal(t, Palette[0], a.Color)
	assert.Equal(t, Palette[1], b.Color)

	// second tab keeps the color
	again := r.Join("chat", alice)
	assert.Equal(t, a.Color, again.Color)
	assert.False(t, r.Leave("chat", alice.ID))
	assert.True(t, r.Leave("chat", alice.ID))

	users := r.Users("chat")
	require.Len(t, users, 1)
	assert.Equal(t, bob.ID, users[0].ID)

	// freed color is reused
	carol := r.Join("chat", models.User{ID: "carol"})
	assert.Equal(t, Palette[0], carol.Color)
}

func TestControllerSelfFilter(t *testing.T) {
	ctx := context.Background()
	r := newRoom()
	a, aIn := r.open(t, alice)
	b, bIn := r.open(t, bob)

	require.NoError(t, a.Handle(ctx, models.Event{Type: models.EventCursorMove, Position: &models.Position{X: 1, Y: 2}}))

	assert.NotContains(t, aIn.types(), models.EventCursorMove)
	assert.Contains(t, bIn.types(), models.EventCursorMove)
	assert.Equal(t, models.Position{X: 1, Y: 2}, b.Cursors()[alice.ID])

	// alice learned about bob from his join
	assert.Contains(t, aIn.types(), models.EventUserJoin)
	presence := a.Presence()
	require.Len(t, presence, 2)
	assert.Equal(t, Palette[1], b.Self().Color)
}

func TestControllerCursorLastValueWins(t *testing.T) {
	r := newRoom()
	_, _ = r.open(t, alice)
	b, _ := r.open(t, bob)

	now := time.Now()
	b.receive(models.Event{Type: models.EventCursorMove, UserID: alice.ID, Timestamp: now, Position: &models.Position{X: 5, Y: 5}})
	b.receive(models.Event{Type: models.EventCursorMove, UserID: alice.ID, Timestamp: now.Add(-time.Second), Position: &models.Position{X: 1, Y: 1}})
	assert.Equal(t, models.Position{X: 5, Y: 5}, b.Cursors()[alice.ID])

	b.receive(models.Event{Type: models.EventUserLeave, UserID: alice.ID, Timestamp: now})
	assert.NotContains(t, b.Cursors(), alice.ID)
	assert.Len(t, b.Presence(), 1)
}

func TestControllerCursorThrottle(t *testing.T) {
	ctx := context.Background()
	r := newRoom()
	r.cfg.CursorRate = rate.Every(time.Hour)
	a, _ := r.open(t, alice)
	_, bIn := r.open(t, bob)

	for i := 0; i < 5; i++ {
		require.NoError(t, a.Handle(ctx, models.Event{Type: models.EventCursorMove, Position: &models.Position{X: float64(i)}}))
	}
	count := 0
	for _, typ := range bIn.types() {
		if typ == models.EventCursorMove {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestControllerCursorTrailingEdge(t *testing.T) {
	ctx := context.Background()
	r := newRoom()
	r.cfg.CursorRate = rate.Every(200 * time.Millisecond)
	a, _ := r.open(t, alice)
	b, bIn := r.open(t, bob)

	for i := 1; i <= 5; i++ {
		require.NoError(t, a.Handle(ctx, models.Event{Type: models.EventCursorMove, Position: &models.Position{X: float64(i)}}))
	}
	assert.Equal(t, models.Position{X: 1}, b.Cursors()[alice.ID])

	require.Eventually(t, func() bool {
		return b.Cursors()[alice.ID] == models.Position{X: 5}
	}, time.Second, 5*time.Millisecond)

	count := 0
	for _, typ := range bIn.types() {
		if typ == models.EventCursorMove {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

type activityLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *activityLog) RecordActivity(_ context.Context, _ models.ObjectID, user models.User) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, user.ID)
	return nil
}

func (l *activityLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func TestControllerRecordsActivity(t *testing.T) {
	ctx := context.Background()
	r := newRoom()
	activity := &activityLog{}
	r.deps.Activity = activity
	r.cfg.ActivityInterval = time.Hour
	a, _ := r.open(t, alice)

	require.NoError(t, a.Handle(ctx, models.Event{Type: models.EventNodeSelect, NodeID: models.NewObjectID().String()}))
	require.NoError(t, a.Handle(ctx, models.Event{Type: models.EventCursorMove, Position: &models.Position{X: 1}}))
	assert.Equal(t, 1, activity.count())

	// rejected events are not activity
	fresh, _ := r.open(t, bob)
	assert.Error(t, fresh.Handle(ctx, models.Event{Type: models.EventNodeDelete}))
	assert.Equal(t, 1, activity.count())
}

func TestControllerPositionDebounce(t *testing.T) {
	ctx := context.Background()

	t.Run("flushes after quiet period", func(t *testing.T) {
		r := newRoom()
		r.cfg.PositionDebounce = 20 * time.Millisecond
		a, _ := r.open(t, alice)
		n1, n2 := models.NewObjectID(), models.NewObjectID()

		require.NoError(t, a.Handle(ctx, models.Event{Type: models.EventNodeMove, NodeID: n1.String(), Position: &models.Position{X: 1, Y: 1}}))
		require.NoError(t, a.Handle(ctx, models.Event{Type: models.EventNodeMove, NodeID: n1.String(), Position: &models.Position{X: 2, Y: 2}}))
		require.NoError(t, a.Handle(ctx, models.Event{Type: models.EventNodeMove, NodeID: n2.String(), Position: &models.Position{X: 3, Y: 3}}))

		require.Eventually(t, func() bool { return len(r.saver.all()) == 1 }, time.Second, 5*time.Millisecond)
		batch := r.saver.all()[0]
		assert.Equal(t, alice.ID, batch.user.ID)
		require.Len(t, batch.updates, 2)
		for _, u := range batch.updates {
			if u.ID == n1 {
				assert.Equal(t, 2.0, u.X)
			}
		}
	})

	t.Run("close flushes pending batch", func(t *testing.T) {
		r := newRoom()
		a, _ := r.open(t, alice)
		_, bIn := r.open(t, bob)
		n1 := models.NewObjectID()

		require.NoError(t, a.Handle(ctx, models.Event{Type: models.EventNodeMove, NodeID: n1.String(), Position: &models.Position{X: 9, Y: 9}}))
		assert.Empty(t, r.saver.all())

		require.NoError(t, a.Close(ctx))
		require.Len(t, r.saver.all(), 1)
		assert.Contains(t, bIn.types(), models.EventUserLeave)
		assert.Equal(t, 1, r.hub.Members(r.chatID.String()))

		assert.ErrorIs(t, a.Handle(ctx, models.Event{Type: models.EventNodeSelect}), realtime.ErrClosed)
		assert.NoError(t, a.Close(ctx))
	})
}

func TestControllerRejectsServerEvents(t *testing.T) {
	ctx := context.Background()
	r := newRoom()
	a, _ := r.open(t, alice)

	assert.ErrorIs(t, a.Handle(ctx, models.Event{Type: models.EventNodeDelete}), models.ErrValidation)
	assert.ErrorIs(t, a.Handle(ctx, models.Event{Type: models.EventNodeMove, NodeID: "bad"}), models.ErrValidation)
	assert.ErrorIs(t, a.Handle(ctx, models.Event{Type: models.EventCursorMove}), models.ErrValidation)
}
