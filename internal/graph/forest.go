// Package graph holds the in-memory view of a chat's conversation tree.
package graph

import (
	"fmt"
	"sort"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

// MaxDepth bounds ancestor walks so a corrupted parent chain cannot loop forever.
const MaxDepth = 10000

type Forest struct {
	chatID   models.ObjectID
	nodes    map[models.ObjectID]*models.Message
	children map[models.ObjectID][]*models.Message
	roots    []*models.Message
}

// BuildForest indexes messages of one chat by parent. A message whose parent
// is not in the set is treated as a root.
func BuildForest(messages []*models.Message) *Forest {
	f := &Forest{
		nodes:    make(map[models.ObjectID]*models.Message, len(messages)),
		children: make(map[models.ObjectID][]*models.Message),
	}
	for _, m := range messages {
		if m == nil {
			continue
		}
		if f.chatID == "" {
			f.chatID = m.ChatID
		}
		f.nodes[m.ID] = m
	}
	for _, m := range f.nodes {
		parentID := m.ParentKey()
		if _, ok := f.nodes[parentID]; parentID == "" || !ok || parentID == m.ID {
			f.roots = append(f.roots, m)
			continue
		}
		f.children[parentID] = append(f.children[parentID], m)
	}
	sortMessages(f.roots)
	for _, list := range f.children {
		sortMessages(list)
	}
	return f
}

func sortMessages(list []*models.Message) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

func (f *Forest) ChatID() models.ObjectID {
	return f.chatID
}

func (f *Forest) Len() int {
	return len(f.nodes)
}

func (f *Forest) Node(id models.ObjectID) (*models.Message, bool) {
	m, ok := f.nodes[id]
	return m, ok
}

func (f *Forest) Roots() []*models.Message {
	return f.roots
}

func (f *Forest) Children(id models.ObjectID) []*models.Message {
	return f.children[id]
}

// AncestorPath returns the chain from the root down to nodeID, inclusive.
func (f *Forest) AncestorPath(nodeID models.ObjectID) ([]*models.Message, error) {
	node, ok := f.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", nodeID, models.ErrNotFound)
	}

	visited := make(map[models.ObjectID]struct{})
	var path []*models.Message
	for cur := node; cur != nil; {
		if _, seen := visited[cur.ID]; seen {
			return nil, fmt.Errorf("cycle at node %s: %w", cur.ID, models.ErrGraphCorruption)
		}
		if len(path) >= MaxDepth {
			return nil, fmt.Errorf("depth exceeds %d at node %s: %w", MaxDepth, nodeID, models.ErrGraphCorruption)
		}
		visited[cur.ID] = struct{}{}
		path = append(path, cur)

		parentID := cur.ParentKey()
		if parentID == "" {
			break
		}
		cur = f.nodes[parentID]
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// ConversationContext is the history fed to the generator when replying to nodeID.
func (f *Forest) ConversationContext(nodeID models.ObjectID) ([]*models.Message, error) {
	return f.AncestorPath(nodeID)
}

// SubtreeIDs lists nodeID and all of its descendants in breadth-first order.
func (f *Forest) SubtreeIDs(nodeID models.ObjectID) []models.ObjectID {
	if _, ok := f.nodes[nodeID]; !ok {
		return nil
	}
	seen := map[models.ObjectID]struct{}{nodeID: {}}
	ids := []models.ObjectID{nodeID}
	for i := 0; i < len(ids); i++ {
		for _, child := range f.children[ids[i]] {
			if _, ok := seen[child.ID]; ok {
				continue
			}
			seen[child.ID] = struct{}{}
			ids = append(ids, child.ID)
		}
	}
	return ids
}

// CheckParent validates attaching childID under parentID. An empty childID
// means the child is a new node.
func (f *Forest) CheckParent(childID, parentID models.ObjectID) error {
	if parentID == "" {
		return nil
	}
	parent, ok := f.nodes[parentID]
	if !ok {
		return fmt.Errorf("parent %s: %w", parentID, models.ErrNotFound)
	}
	if f.chatID != "" && parent.ChatID != f.chatID {
		return fmt.Errorf("parent %s belongs to another chat: %w", parentID, models.ErrValidation)
	}
	if childID == "" {
		return nil
	}
	if childID == parentID {
		return fmt.Errorf("node %s cannot be its own parent: %w", childID, models.ErrValidation)
	}
	path, err := f.AncestorPath(parentID)
	if err != nil {
		return err
	}
	for _, m := range path {
		if m.ID == childID {
			return fmt.Errorf("parent %s is a descendant of %s: %w", parentID, childID, models.ErrValidation)
		}
	}
	return nil
}

// View is the serialisable shape of the forest.
type View struct {
	Nodes    []*models.Message                     `json:"nodes"`
	Roots    []models.ObjectID                     `json:"roots"`
	Children map[models.ObjectID][]models.ObjectID `json:"children"`
}

func (f *Forest) View() View {
	v := View{
		Nodes:    make([]*models.Message, 0, len(f.nodes)),
		Roots:    make([]models.ObjectID, 0, len(f.roots)),
		Children: make(map[models.ObjectID][]models.ObjectID, len(f.children)),
	}
	for _, r := range f.roots {
		v.Roots = append(v.Roots, r.ID)
		for _, id := range f.SubtreeIDs(r.ID) {
			v.Nodes = append(v.Nodes, f.nodes[id])
		}
	}
	for parentID, list := range f.children {
		ids := make([]models.ObjectID, len(list))
		for i, m := range list {
			ids[i] = m.ID
		}
		v.Children[parentID] = ids
	}
	return v
}
