package usecase

import (
	"context"
	"time"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/graph"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) (*models.Message, error)
	GetByID(ctx context.Context, id models.ObjectID) (*models.Message, error)
	ListByChat(ctx context.Context, chatID models.ObjectID) ([]*models.Message, error)
	ListChildren(ctx context.Context, parentID models.ObjectID) ([]*models.Message, error)
	// UpdatePositionsBatch applies every update or none. An id outside chatID fails the batch with ErrForbidden.
	UpdatePositionsBatch(ctx context.Context, chatID models.ObjectID, updates []models.PositionUpdate, editedBy string) error
	UpdateFlags(ctx context.Context, id models.ObjectID, flags models.FlagsUpdate, editedBy string) (*models.Message, error)
	// DeleteSubtree removes rootID and its descendants and returns the removed ids.
	DeleteSubtree(ctx context.Context, rootID models.ObjectID) ([]models.ObjectID, error)
}

type ChatStore interface {
	Create(ctx context.Context, chat *models.Chat) (*models.Chat, error)
	GetByID(ctx context.Context, id models.ObjectID) (*models.Chat, error)
	SetCollaborative(ctx context.Context, id models.ObjectID, collaborative bool) error
}

type SessionStore interface {
	Create(ctx context.Context, session *models.CollaborationSession) (*models.CollaborationSession, error)
	// FindByChat returns the session of chatID with its participants, or ErrNotFound.
	FindByChat(ctx context.Context, chatID models.ObjectID) (*models.CollaborationSession, error)
	GetByID(ctx context.Context, id models.ObjectID) (*models.CollaborationSession, error)
	Touch(ctx context.Context, id models.ObjectID, at time.Time) error
	// UpsertParticipant keeps one record per (session, user).
	UpsertParticipant(ctx context.Context, p *models.Participant) (*models.Participant, error)
	// RemoveParticipant returns how many participants remain.
	RemoveParticipant(ctx context.Context, sessionID models.ObjectID, userID string) (int64, error)
	Delete(ctx context.Context, id models.ObjectID) error
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type ActivityStore interface {
	Create(ctx context.Context, activity *models.Activity) error
	ListByChat(ctx context.Context, chatID models.ObjectID, limit int) ([]*models.Activity, error)
}

// Generator produces the assistant reply for the last message of history.
type Generator interface {
	Generate(ctx context.Context, history []*models.Message, model string, onChunk func(string)) (string, error)
}

// Broadcaster fans events out to a chat room. Delivery is best effort.
type Broadcaster interface {
	Broadcast(ctx context.Context, event models.Event)
}

// GraphEventPublisher appends structural edits to the event log.
type GraphEventPublisher interface {
	PublishGraphEvent(ctx context.Context, event models.GraphEvent)
}

type ChatUsecase interface {
	CreateChat(ctx context.Context, user models.User, title string) (*models.Chat, error)
	GetChat(ctx context.Context, chatID models.ObjectID) (*models.Chat, error)
	// CanView returns the chat when user owns it or it is shared.
	CanView(ctx context.Context, chatID models.ObjectID, user models.User) (*models.Chat, error)
	SetCollaborative(ctx context.Context, chatID models.ObjectID, user models.User, collaborative bool) error
	ListActivities(ctx context.Context, chatID models.ObjectID, limit int) ([]*models.Activity, error)
}

type GraphUsecase interface {
	Forest(ctx context.Context, chatID models.ObjectID) (*graph.Forest, error)
	ConversationContext(ctx context.Context, chatID, nodeID models.ObjectID) ([]*models.Message, error)
	CreateNode(ctx context.Context, user models.User, params CreateNodeParams) (*models.Message, error)
	UpdatePositions(ctx context.Context, user models.User, chatID models.ObjectID, updates []models.PositionUpdate) error
	UpdateFlags(ctx context.Context, user models.User, chatID, nodeID models.ObjectID, flags models.FlagsUpdate) (*models.Message, error)
	DeleteSubtree(ctx context.Context, user models.User, chatID, nodeID models.ObjectID) ([]models.ObjectID, error)
}

type BranchUsecase interface {
	Start(ctx context.Context, user models.User, req models.BranchRequest) (*models.BranchRun, error)
	Wait(ctx context.Context, runID string) (*models.BranchRun, error)
	GetRun(runID string) (*models.BranchRun, error)
	CancelRun(runID string, model string) error
}

type CollaborationUsecase interface {
	Join(ctx context.Context, chatID models.ObjectID, user models.User) (*models.CollaborationSession, error)
	Heartbeat(ctx context.Context, sessionID models.ObjectID, user models.User) error
	Leave(ctx context.Context, sessionID models.ObjectID, user models.User) error
	EndSession(ctx context.Context, chatID models.ObjectID, user models.User) error
	SetParticipantRole(ctx context.Context, chatID models.ObjectID, owner models.User, userID string, role models.ParticipantRole) error
	ActiveSession(ctx context.Context, chatID models.ObjectID) (*models.CollaborationSession, bool)
	CanEdit(ctx context.Context, chatID models.ObjectID, user models.User) error
	RecordActivity(ctx context.Context, chatID models.ObjectID, user models.User) error
	Sweep(ctx context.Context, now time.Time) (int64, error)
}
