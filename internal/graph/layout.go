package graph

import (
	"math"
	"sync"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

const (
	NodeWidth    = 250
	NodeHeight   = 100
	NodeMargin   = 20
	ChildOffsetX = 300
	ChildOffsetY = 50
	RowWidth     = 1000
	MaxAttempts  = 100
)

// DefaultOrigin is where a root node lands.
var DefaultOrigin = models.Position{X: 100, Y: 100}

// Layout places new nodes next to their parent without overlapping the
// footprints it already knows about. Placement is best effort: after
// MaxAttempts probes the last candidate is returned.
type Layout struct {
	mu       sync.Mutex
	occupied []models.Position
}

func NewLayout(occupied ...models.Position) *Layout {
	return &Layout{occupied: occupied}
}

func LayoutFromMessages(messages []*models.Message) *Layout {
	l := &Layout{occupied: make([]models.Position, 0, len(messages))}
	for _, m := range messages {
		l.occupied = append(l.occupied, m.Position())
	}
	return l
}

// AssignPosition picks a free spot for a child of parent (or a root when
// parent is nil) and reserves it.
func (l *Layout) AssignPosition(parent *models.Position) models.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := DefaultOrigin
	if parent != nil {
		start = models.Position{X: parent.X + ChildOffsetX, Y: parent.Y + ChildOffsetY}
	}

	pos := start
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if !l.overlaps(pos) {
			break
		}
		pos.X += NodeWidth + NodeMargin
		if pos.X-start.X > RowWidth {
			pos.X = start.X
			pos.Y += NodeHeight + NodeMargin
		}
	}
	l.occupied = append(l.occupied, pos)
	return pos
}

// Reserve records a node placed elsewhere.
func (l *Layout) Reserve(pos models.Position) {
	l.mu.Lock()
	l.occupied = append(l.occupied, pos)
	l.mu.Unlock()
}

func (l *Layout) overlaps(pos models.Position) bool {
	for _, o := range l.occupied {
		if Overlap(pos, o) {
			return true
		}
	}
	return false
}

// Overlap reports whether two node footprints, padded by the margin, intersect.
func Overlap(a, b models.Position) bool {
	return math.Abs(a.X-b.X) < NodeWidth+NodeMargin &&
		math.Abs(a.Y-b.Y) < NodeHeight+NodeMargin
}
