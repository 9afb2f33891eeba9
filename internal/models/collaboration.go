package models

import "time"

const (
	// SessionInactivityWindow is how long a session stays joinable without activity.
	SessionInactivityWindow = 5 * time.Minute
	// SessionRetentionWindow is how long an idle session is kept before the sweep deletes it.
	SessionRetentionWindow = 30 * time.Minute
)

type ParticipantRole string

const (
	ParticipantOwner        ParticipantRole = "owner"
	ParticipantCollaborator ParticipantRole = "collaborator"
	ParticipantViewer       ParticipantRole = "viewer"
)

func (r ParticipantRole) Valid() bool {
	switch r {
	case ParticipantOwner, ParticipantCollaborator, ParticipantViewer:
		return true
	}
	return false
}

func (r ParticipantRole) CanEdit() bool {
	return r == ParticipantOwner || r == ParticipantCollaborator
}

type CollaborationSession struct {
	ID           ObjectID  `bson:"_id,omitempty" json:"id"`
	ChatID       ObjectID  `bson:"chat_id" json:"chat_id"`
	ActiveSince  time.Time `bson:"active_since" json:"active_since"`
	LastActivity time.Time `bson:"last_activity" json:"last_activity"`

	Participants []Participant `bson:"-" json:"participants"`
}

func (CollaborationSession) CollectionName() string {
	return "collaboration_sessions"
}

func (s CollaborationSession) GetObjectID() ObjectID {
	return s.ID
}

func (s CollaborationSession) GetUpdates() any {
	return struct {
		LastActivity time.Time `bson:"last_activity"`
	}{s.LastActivity}
}

// Expired reports whether the session is idle past the inactivity window at now.
func (s *CollaborationSession) Expired(now time.Time) bool {
	return now.Sub(s.LastActivity) > SessionInactivityWindow
}

func (s *CollaborationSession) Participant(userID string) (*Participant, bool) {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i], true
		}
	}
	return nil, false
}

type Participant struct {
	ID           ObjectID        `bson:"_id,omitempty" json:"-"`
	SessionID    ObjectID        `bson:"session_id" json:"session_id"`
	UserID       string          `bson:"user_id" json:"user_id"`
	Role         ParticipantRole `bson:"role" json:"role"`
	JoinedAt     time.Time       `bson:"joined_at" json:"joined_at"`
	LastActivity time.Time       `bson:"last_activity" json:"last_activity"`
}

func (Participant) CollectionName() string {
	return "collaboration_participants"
}

func (p Participant) GetObjectID() ObjectID {
	return p.ID
}

func (p Participant) GetUpdates() any {
	return struct {
		Role         ParticipantRole `bson:"role"`
		LastActivity time.Time       `bson:"last_activity"`
	}{p.Role, p.LastActivity}
}

// User is the already-authenticated caller identity.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CollaborativeUser is the ephemeral presence record of a viewer.
type CollaborativeUser struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Color    string    `json:"color"`
	Cursor   *Position `json:"cursor,omitempty"`
	OnlineAt time.Time `json:"online_at"`
}
