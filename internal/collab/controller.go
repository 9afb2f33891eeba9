package collab

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/config"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/repo/realtime"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/usecase"
	log "github.com/nguyentranbao-ct/mindmap-chat/pkg/logger/log_context"
)

type Config struct {
	PositionDebounce time.Duration
	CursorRate       rate.Limit
	CursorBurst      int
	ActivityInterval time.Duration
}

func ConfigFrom(conf *config.Config) Config {
	return Config{
		PositionDebounce: conf.Collab.PositionDebounce,
		CursorRate:       rate.Limit(conf.Collab.CursorRatePerSec),
		CursorBurst:      conf.Collab.CursorBurst,
		ActivityInterval: conf.Collab.ActivityInterval,
	}
}

type PositionSaver interface {
	UpdatePositions(ctx context.Context, user models.User, chatID models.ObjectID, updates []models.PositionUpdate) error
}

// ActivityRecorder keeps the collaboration session of a chat alive.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, chatID models.ObjectID, user models.User) error
}

type Deps struct {
	Transport   realtime.Transport
	Broadcaster usecase.Broadcaster
	Registry    *Registry
	Positions   PositionSaver
	Activity    ActivityRecorder
}

type cursor struct {
	pos models.Position
	at  time.Time
}

// Controller owns the collaboration state of one open chat view. Deliver
// receives every room event sent by someone else.
type Controller struct {
	cfg     Config
	deps    Deps
	chatID  models.ObjectID
	user    models.User
	deliver func(models.Event)
	limiter *rate.Limiter
	active  rate.Sometimes

	mu       sync.Mutex
	ctx      context.Context
	self     models.CollaborativeUser
	presence map[string]models.CollaborativeUser
	cursors  map[string]cursor
	pending  map[models.ObjectID]models.Position
	timer    *time.Timer
	// trailing holds the newest throttled cursor until trailTimer sends it
	trailing   *models.Position
	trailTimer *time.Timer
	sub      realtime.Subscription
	started  bool
	closed   bool
}

const defaultActivityInterval = 30 * time.Second

func NewController(cfg Config, deps Deps, chatID models.ObjectID, user models.User, deliver func(models.Event)) *Controller {
	burst := cfg.CursorBurst
	if burst <= 0 {
		burst = 1
	}
	if cfg.ActivityInterval <= 0 {
		cfg.ActivityInterval = defaultActivityInterval
	}
	return &Controller{
		cfg:      cfg,
		deps:     deps,
		chatID:   chatID,
		user:     user,
		deliver:  deliver,
		limiter:  rate.NewLimiter(cfg.CursorRate, burst),
		active:   rate.Sometimes{Interval: cfg.ActivityInterval},
		ctx:      context.Background(),
		presence: make(map[string]models.CollaborativeUser),
		cursors:  make(map[string]cursor),
		pending:  make(map[models.ObjectID]models.Position),
	}
}

func (c *Controller) room() string {
	return c.chatID.String()
}

// Start joins the room and announces the viewer.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.ctx = context.WithoutCancel(ctx)
	c.self = c.deps.Registry.Join(c.room(), c.user)
	for _, u := range c.deps.Registry.Users(c.room()) {
		c.presence[u.ID] = u
	}
	c.mu.Unlock()

	sub, err := c.deps.Transport.Subscribe(ctx, c.room(), c.receive)
	if err != nil {
		c.deps.Registry.Leave(c.room(), c.user.ID)
		return fmt.Errorf("subscribe %s: %w", c.room(), err)
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	c.publish(ctx, models.Event{Type: models.EventUserJoin})
	return nil
}

func (c *Controller) Self() models.CollaborativeUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// Presence lists the known viewers, the caller included.
func (c *Controller) Presence() []models.CollaborativeUser {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.CollaborativeUser, 0, len(c.presence))
	for id, u := range c.presence {
		if cur, ok := c.cursors[id]; ok {
			u.Cursor = &cur.pos
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Controller) Cursors() map[string]models.Position {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]models.Position, len(c.cursors))
	for id, cur := range c.cursors {
		out[id] = cur.pos
	}
	return out
}

func (c *Controller) stamp(event models.Event) models.Event {
	c.mu.Lock()
	self := c.self
	c.mu.Unlock()

	event.ChatID = c.room()
	event.UserID = self.ID
	event.UserName = self.Name
	event.UserColor = self.Color
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return event
}

func (c *Controller) publish(ctx context.Context, event models.Event) {
	c.deps.Broadcaster.Broadcast(ctx, c.stamp(event))
}

// receive runs on the transport's goroutine.
func (c *Controller) receive(event models.Event) {
	if event.UserID == c.user.ID {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	switch event.Type {
	case models.EventUserLeave:
		delete(c.presence, event.UserID)
		delete(c.cursors, event.UserID)
	default:
		if _, ok := c.presence[event.UserID]; !ok && event.UserID != "" {
			c.presence[event.UserID] = models.CollaborativeUser{
				ID:       event.UserID,
				Name:     event.UserName,
				Color:    event.UserColor,
				OnlineAt: event.Timestamp,
			}
		}
	}
	if event.Type == models.EventCursorMove && event.Position != nil {
		if prev, ok := c.cursors[event.UserID]; !ok || !event.Timestamp.Before(prev.at) {
			c.cursors[event.UserID] = cursor{pos: *event.Position, at: event.Timestamp}
		}
	}
	c.mu.Unlock()

	if c.deliver != nil {
		c.deliver(event)
	}
}

// Handle applies an event sent by this viewer and forwards it to the room.
func (c *Controller) Handle(ctx context.Context, event models.Event) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return realtime.ErrClosed
	}

	switch event.Type {
	case models.EventCursorMove:
		if event.Position == nil {
			return fmt.Errorf("cursor position required: %w", models.ErrValidation)
		}
		if !c.limiter.Allow() {
			c.holdCursor(*event.Position)
			break
		}
		c.mu.Lock()
		c.trailing = nil
		c.mu.Unlock()
		c.sendCursor(ctx, *event.Position)

	case models.EventNodeSelect:
		c.publish(ctx, event)

	case models.EventNodeMove:
		id := models.ObjectID(event.NodeID)
		if !id.IsValid() || event.Position == nil {
			return fmt.Errorf("node id and position required: %w", models.ErrValidation)
		}
		c.queueMove(id, *event.Position)
		event.Data = map[string]any{"dragging": true}
		c.publish(ctx, event)

	default:
		return fmt.Errorf("event %q cannot be sent by clients: %w", event.Type, models.ErrValidation)
	}

	c.recordActivity(ctx)
	return nil
}

func (c *Controller) recordActivity(ctx context.Context) {
	if c.deps.Activity == nil {
		return
	}
	c.active.Do(func() {
		if err := c.deps.Activity.RecordActivity(ctx, c.chatID, c.user); err != nil {
			log.Warnw(ctx, "failed to record session activity", "chat_id", c.chatID, "error", err)
		}
	})
}

func (c *Controller) sendCursor(ctx context.Context, pos models.Position) {
	event := c.stamp(models.Event{Type: models.EventCursorMove, Position: &pos})
	c.mu.Lock()
	c.cursors[event.UserID] = cursor{pos: pos, at: event.Timestamp}
	c.mu.Unlock()
	c.deps.Broadcaster.Broadcast(ctx, event)
}

// holdCursor keeps the newest throttled position and sends it once the
// limiter has room again, so viewers always end on the resting position.
func (c *Controller) holdCursor(pos models.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.trailing = &pos
	if c.trailTimer != nil {
		return
	}
	c.trailTimer = time.AfterFunc(c.trailDelay(), func() {
		c.mu.Lock()
		c.trailTimer = nil
		latest := c.trailing
		c.trailing = nil
		closed := c.closed
		c.mu.Unlock()

		if latest != nil && !closed {
			c.sendCursor(c.ctx, *latest)
		}
	})
}

func (c *Controller) trailDelay() time.Duration {
	const fallback = 50 * time.Millisecond
	limit := c.limiter.Limit()
	if limit <= 0 || limit == rate.Inf {
		return fallback
	}
	return time.Duration(float64(time.Second) / float64(limit))
}

func (c *Controller) queueMove(id models.ObjectID, pos models.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending[id] = pos
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.cfg.PositionDebounce, func() {
		if err := c.Flush(c.ctx); err != nil {
			log.Warnw(c.ctx, "debounced position save failed", "chat_id", c.chatID, "error", err)
		}
	})
}

// Flush saves the pending node moves as one batch.
func (c *Controller) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return nil
	}
	updates := make([]models.PositionUpdate, 0, len(c.pending))
	for id, pos := range c.pending {
		updates = append(updates, models.PositionUpdate{ID: id, X: pos.X, Y: pos.Y})
	}
	c.pending = make(map[models.ObjectID]models.Position)
	c.mu.Unlock()

	sort.Slice(updates, func(i, j int) bool { return updates[i].ID < updates[j].ID })
	if err := c.deps.Positions.UpdatePositions(ctx, c.user, c.chatID, updates); err != nil {
		return fmt.Errorf("save %d positions: %w", len(updates), err)
	}
	return nil
}

// Close flushes pending moves, leaves the room and announces the departure
// when this was the user's last view of the chat.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	sub := c.sub
	if c.trailTimer != nil {
		c.trailTimer.Stop()
		c.trailTimer = nil
	}
	c.mu.Unlock()

	flushErr := c.Flush(ctx)
	if !started {
		return flushErr
	}
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			log.Warnw(ctx, "unsubscribe failed", "chat_id", c.chatID, "error", err)
		}
	}
	if c.deps.Registry.Leave(c.room(), c.user.ID) {
		c.publish(ctx, models.Event{Type: models.EventUserLeave})
	}
	return flushErr
}
