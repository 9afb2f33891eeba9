package models

import (
	"time"
)

type EventType string

const (
	EventCursorMove   EventType = "cursor_move"
	EventNodeSelect   EventType = "node_select"
	EventNodeMove     EventType = "node_move"
	EventNodeCreate   EventType = "node_create"
	EventNodeDelete   EventType = "node_delete"
	EventUserJoin     EventType = "user_join"
	EventUserLeave    EventType = "user_leave"
	EventBranchStatus EventType = "branch_status"
	EventSessionEnd   EventType = "session_end"
)

func (t EventType) Valid() bool {
	switch t {
	case EventCursorMove, EventNodeSelect, EventNodeMove, EventNodeCreate, EventNodeDelete,
		EventUserJoin, EventUserLeave, EventBranchStatus, EventSessionEnd:
		return true
	}
	return false
}

// Structural reports whether receivers should refresh the graph on this event.
func (t EventType) Structural() bool {
	return t == EventNodeCreate || t == EventNodeDelete || t == EventNodeMove
}

// Event is the envelope published on a chat's realtime room.
type Event struct {
	Type      EventType `json:"type" validate:"required"`
	ChatID    string    `json:"chatId" validate:"required"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName,omitempty"`
	UserColor string    `json:"userColor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"nodeId,omitempty"`
	Position  *Position `json:"position,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// GraphEvent is a structural edit published to the event log.
type GraphEvent struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	NodeIDs   []string  `json:"node_ids"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
