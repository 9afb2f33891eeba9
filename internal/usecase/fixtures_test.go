package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/config"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/repo/memstore"
)

var (
	alice = models.User{ID: "alice", Name: "Alice"}
	bob   = models.User{ID: "bob", Name: "Bob"}
	carol = models.User{ID: "carol", Name: "Carol"}
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []models.Event
	// dead holds events handed over with an already finished context
	dead []models.Event
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, event models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	if ctx.Err() != nil {
		b.dead = append(b.dead, event)
	}
}

func (b *recordingBroadcaster) deadEvents() []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Event(nil), b.dead...)
}

func (b *recordingBroadcaster) ofType(t models.EventType) []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Event
	for _, e := range b.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.GraphEvent
}

func (p *recordingPublisher) PublishGraphEvent(_ context.Context, event models.GraphEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) all() []models.GraphEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.GraphEvent(nil), p.events...)
}

type generatorFunc func(ctx context.Context, history []*models.Message, model string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, history []*models.Message, model string, _ func(string)) (string, error) {
	return f(ctx, history, model)
}

type fixture struct {
	conf        *config.Config
	messages    *memstore.MessageStore
	chats       *memstore.ChatStore
	sessions    *memstore.SessionStore
	activities  *memstore.ActivityStore
	broadcaster *recordingBroadcaster
	publisher   *recordingPublisher

	collab *collaborationUsecase
	chat   ChatUsecase
	graph  GraphUsecase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conf := &config.Config{}
	conf.Collab.LivenessTimeout = time.Second
	conf.Collab.ActivityPageLimit = 50

	f := &fixture{
		conf:        conf,
		messages:    memstore.NewMessageStore(),
		chats:       memstore.NewChatStore(),
		sessions:    memstore.NewSessionStore(),
		activities:  memstore.NewActivityStore(),
		broadcaster: &recordingBroadcaster{},
		publisher:   &recordingPublisher{},
	}
	f.collab = NewCollaborationUsecase(conf, f.chats, f.sessions, f.broadcaster).(*collaborationUsecase)
	f.chat = NewChatUsecase(conf, f.chats, f.activities)
	f.graph = NewGraphUsecase(f.messages, f.collab, f.broadcaster, f.publisher)
	return f
}

func (f *fixture) newChat(t *testing.T, owner models.User, collaborative bool) *models.Chat {
	t.Helper()
	chat, err := f.chat.CreateChat(context.Background(), owner, "plans")
	require.NoError(t, err)
	if collaborative {
		require.NoError(t, f.chat.SetCollaborative(context.Background(), chat.ID, owner, true))
		chat.IsCollaborative = true
	}
	return chat
}

func (f *fixture) newNode(t *testing.T, user models.User, chatID models.ObjectID, parent *models.Message, content string) *models.Message {
	t.Helper()
	params := CreateNodeParams{ChatID: chatID, Role: models.RoleUser, Content: content}
	if parent != nil {
		params.ParentID = &parent.ID
	}
	msg, err := f.graph.CreateNode(context.Background(), user, params)
	require.NoError(t, err)
	return msg
}
