package models

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type NodeType string

const (
	NodeTypeConversation   NodeType = "conversation"
	NodeTypeBranchingPoint NodeType = "branching_point"
	NodeTypeInsight        NodeType = "insight"
)

func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeConversation, NodeTypeBranchingPoint, NodeTypeInsight:
		return true
	}
	return false
}

// Message is a node of a chat's conversation tree.
// Content, role and model are written once; only layout and the
// collapse/lock flags change afterwards.
type Message struct {
	ID           ObjectID   `bson:"_id,omitempty" json:"id"`
	ChatID       ObjectID   `bson:"chat_id" json:"chat_id"`
	ParentID     *ObjectID  `bson:"parent_id" json:"parent_id"`
	Role         Role       `bson:"role" json:"role"`
	Content      string     `bson:"content" json:"content"`
	Model        *string    `bson:"model,omitempty" json:"model,omitempty"`
	BranchName   *string    `bson:"branch_name,omitempty" json:"branch_name,omitempty"`
	XPosition    float64    `bson:"x_position" json:"x_position"`
	YPosition    float64    `bson:"y_position" json:"y_position"`
	NodeType     NodeType   `bson:"node_type" json:"node_type"`
	IsCollapsed  bool       `bson:"is_collapsed" json:"is_collapsed"`
	IsLocked     bool       `bson:"is_locked" json:"is_locked"`
	LastEditedBy *string    `bson:"last_edited_by,omitempty" json:"last_edited_by,omitempty"`
	EditedAt     *time.Time `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
}

func (Message) CollectionName() string {
	return "messages"
}

func (m Message) GetObjectID() ObjectID {
	return m.ID
}

// GetUpdates returns the mutable subset of the document.
func (m Message) GetUpdates() any {
	return MessageUpdates{
		XPosition:    m.XPosition,
		YPosition:    m.YPosition,
		IsCollapsed:  m.IsCollapsed,
		IsLocked:     m.IsLocked,
		LastEditedBy: m.LastEditedBy,
		EditedAt:     m.EditedAt,
	}
}

type MessageUpdates struct {
	XPosition    float64    `bson:"x_position"`
	YPosition    float64    `bson:"y_position"`
	IsCollapsed  bool       `bson:"is_collapsed"`
	IsLocked     bool       `bson:"is_locked"`
	LastEditedBy *string    `bson:"last_edited_by,omitempty"`
	EditedAt     *time.Time `bson:"edited_at,omitempty"`
}

func (m *Message) IsRoot() bool {
	return m.ParentID == nil || *m.ParentID == ""
}

func (m *Message) ParentKey() ObjectID {
	if m.IsRoot() {
		return ""
	}
	return *m.ParentID
}

func (m *Message) Position() Position {
	return Position{X: m.XPosition, Y: m.YPosition}
}

// LockedFor reports whether userID is blocked from editing the node.
func (m *Message) LockedFor(userID string) bool {
	if !m.IsLocked {
		return false
	}
	return m.LastEditedBy == nil || *m.LastEditedBy != userID
}

type Position struct {
	X float64 `json:"x" bson:"x"`
	Y float64 `json:"y" bson:"y"`
}

type PositionUpdate struct {
	ID ObjectID `json:"id" validate:"required"`
	X  float64  `json:"x"`
	Y  float64  `json:"y"`
}

type FlagsUpdate struct {
	IsCollapsed *bool `json:"is_collapsed"`
	IsLocked    *bool `json:"is_locked"`
}
