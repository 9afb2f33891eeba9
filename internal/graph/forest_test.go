package graph

import (
	"fmt"
	"testing"
	"time"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func msg(id, parent string, offset int) *models.Message {
	m := &models.Message{
		ID:        models.ObjectID(id),
		ChatID:    "chat",
		Role:      models.RoleUser,
		CreatedAt: base.Add(time.Duration(offset) * time.Second),
	}
	if parent != "" {
		p := models.ObjectID(parent)
		m.ParentID = &p
	}
	return m
}

func ids(list []*models.Message) []models.ObjectID {
	out := make([]models.ObjectID, len(list))
	for i, m := range list {
		out[i] = m.ID
	}
	return out
}

func TestBuildForest(t *testing.T) {
	forest := BuildForest([]*models.Message{
		msg("c", "a", 3),
		msg("a", "", 0),
		msg("b", "a", 1),
		msg("orphan", "missing", 2),
		msg("d", "b", 4),
	})

	assert.Equal(t, 5, forest.Len())
	assert.Equal(t, models.ObjectID("chat"), forest.ChatID())
	assert.Equal(t, []models.ObjectID{"a", "orphan"}, ids(forest.Roots()))
	assert.Equal(t, []models.ObjectID{"b", "c"}, ids(forest.Children("a")))
	assert.Empty(t, forest.Children("c"))

	t.Run("every node reachable from exactly one root", func(t *testing.T) {
		seen := map[models.ObjectID]int{}
		for _, r := range forest.Roots() {
			for _, id := range forest.SubtreeIDs(r.ID) {
				seen[id]++
			}
		}
		assert.Len(t, seen, forest.Len())
		for id, n := range seen {
			assert.Equal(t, 1, n, id)
		}
	})

	t.Run("siblings with equal timestamps ordered by id", func(t *testing.T) {
		f := BuildForest([]*models.Message{msg("r", "", 0), msg("y", "r", 1), msg("x", "r", 1)})
		assert.Equal(t, []models.ObjectID{"x", "y"}, ids(f.Children("r")))
	})
}

func TestAncestorPath(t *testing.T) {
	forest := BuildForest([]*models.Message{
		msg("a", "", 0),
		msg("b", "a", 1),
		msg("c", "b", 2),
		msg("x", "a", 3),
	})

	t.Run("root to node", func(t *testing.T) {
		path, err := forest.AncestorPath("c")
		require.NoError(t, err)
		assert.Equal(t, []models.ObjectID{"a", "b", "c"}, ids(path))
	})

	t.Run("root alone", func(t *testing.T) {
		path, err := forest.AncestorPath("a")
		require.NoError(t, err)
		assert.Equal(t, []models.ObjectID{"a"}, ids(path))
	})

	t.Run("branch isolation", func(t *testing.T) {
		path, err := forest.ConversationContext("x")
		require.NoError(t, err)
		assert.Equal(t, []models.ObjectID{"a", "x"}, ids(path))
	})

	t.Run("unknown node", func(t *testing.T) {
		_, err := forest.AncestorPath("nope")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("cycle", func(t *testing.T) {
		f := BuildForest([]*models.Message{msg("p", "q", 0), msg("q", "p", 1)})
		_, err := f.AncestorPath("p")
		assert.ErrorIs(t, err, models.ErrGraphCorruption)
	})

	t.Run("depth limit", func(t *testing.T) {
		list := []*models.Message{msg("n0", "", 0)}
		for i := 1; i <= MaxDepth; i++ {
			list = append(list, msg(idOf(i), idOf(i-1), i))
		}
		f := BuildForest(list)
		_, err := f.AncestorPath(models.ObjectID(idOf(MaxDepth - 1)))
		require.NoError(t, err)
		_, err = f.AncestorPath(models.ObjectID(idOf(MaxDepth)))
		assert.ErrorIs(t, err, models.ErrGraphCorruption)
	})
}

func idOf(i int) string {
	return fmt.Sprintf("n%d", i)
}

func TestSubtreeIDs(t *testing.T) {
	// root -> A, B ; A -> A1, A2
	forest := BuildForest([]*models.Message{
		msg("root", "", 0),
		msg("A", "root", 1),
		msg("B", "root", 2),
		msg("A1", "A", 3),
		msg("A2", "A", 4),
	})

	assert.Equal(t, []models.ObjectID{"A", "A1", "A2"}, forest.SubtreeIDs("A"))
	assert.Equal(t, []models.ObjectID{"root", "A", "B", "A1", "A2"}, forest.SubtreeIDs("root"))
	assert.Nil(t, forest.SubtreeIDs("missing"))
}

func TestCheckParent(t *testing.T) {
	forest := BuildForest([]*models.Message{
		msg("a", "", 0),
		msg("b", "a", 1),
		msg("c", "b", 2),
	})

	tests := []struct {
		name    string
		child   models.ObjectID
		parent  models.ObjectID
		wantErr error
	}{
		{name: "new root", child: "", parent: ""},
		{name: "new child", child: "", parent: "c"},
		{name: "move to sibling branch", child: "c", parent: "a"},
		{name: "missing parent", child: "", parent: "zz", wantErr: models.ErrNotFound},
		{name: "self parent", child: "b", parent: "b", wantErr: models.ErrValidation},
		{name: "cycle", child: "a", parent: "c", wantErr: models.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := forest.CheckParent(tt.child, tt.parent)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("cross chat parent", func(t *testing.T) {
		other := msg("o", "", 5)
		other.ChatID = "other"
		f := BuildForest([]*models.Message{msg("a", "", 0), other})
		assert.ErrorIs(t, f.CheckParent("", "o"), models.ErrValidation)
	})
}

func TestView(t *testing.T) {
	forest := BuildForest([]*models.Message{msg("a", "", 0), msg("b", "a", 1)})
	v := forest.View()
	assert.Equal(t, []models.ObjectID{"a"}, v.Roots)
	assert.Equal(t, []models.ObjectID{"b"}, v.Children["a"])
	assert.Len(t, v.Nodes, 2)
}
