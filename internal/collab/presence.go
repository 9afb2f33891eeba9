// Package collab holds the per-view collaboration state of a chat: who is
// looking at it, where their cursors are and which node moves are waiting
// to be saved.
package collab

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

var Palette = []string{
	"#ef4444",
	"#f97316",
	"#eab308",
	"#22c55e",
	"#06b6d4",
	"#3b82f6",
	"#8b5cf6",
	"#ec4899",
}

// PickColor returns the first palette color not in used. When every color is
// taken it picks one at random.
func PickColor(used map[string]bool) string {
	for _, c := range Palette {
		if !used[c] {
			return c
		}
	}
	return Palette[rand.IntN(len(Palette))]
}

// Registry tracks the viewers of each chat on this instance. A user with
// several open views keeps one color.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]map[string]*viewer
}

type viewer struct {
	user  models.CollaborativeUser
	views int
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[string]*viewer)}
}

func (r *Registry) Join(chatID string, user models.User) models.CollaborativeUser {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[chatID]
	if room == nil {
		room = make(map[string]*viewer)
		r.rooms[chatID] = room
	}
	if v, ok := room[user.ID]; ok {
		v.views++
		return v.user
	}

	used := make(map[string]bool, len(room))
	for _, v := range room {
		used[v.user.Color] = true
	}
	v := &viewer{
		user: models.CollaborativeUser{
			ID:       user.ID,
			Name:     user.Name,
			Color:    PickColor(used),
			OnlineAt: time.Now(),
		},
		views: 1,
	}
	room[user.ID] = v
	return v.user
}

// Leave reports whether the user has no open view of the chat left.
func (r *Registry) Leave(chatID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[chatID]
	v, ok := room[userID]
	if !ok {
		return true
	}
	v.views--
	if v.views > 0 {
		return false
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(r.rooms, chatID)
	}
	return true
}

func (r *Registry) Users(chatID string) []models.CollaborativeUser {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.CollaborativeUser, 0, len(r.rooms[chatID]))
	for _, v := range r.rooms[chatID] {
		out = append(out, v.user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OnlineAt.Before(out[j].OnlineAt) })
	return out
}
