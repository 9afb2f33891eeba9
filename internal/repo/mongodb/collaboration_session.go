package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CollaborationSessionRepository interface {
	Create(ctx context.Context, session *models.CollaborationSession) (*models.CollaborationSession, error)
	FindByChat(ctx context.Context, chatID models.ObjectID) (*models.CollaborationSession, error)
	GetByID(ctx context.Context, id models.ObjectID) (*models.CollaborationSession, error)
	Touch(ctx context.Context, id models.ObjectID, at time.Time) error
	UpsertParticipant(ctx context.Context, p *models.Participant) (*models.Participant, error)
	RemoveParticipant(ctx context.Context, sessionID models.ObjectID, userID string) (int64, error)
	Delete(ctx context.Context, id models.ObjectID) error
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type collaborationSessionRepo struct {
	sessions     baseRepo[models.CollaborationSession]
	participants baseRepo[models.Participant]
	db           *DB
}

func NewCollaborationSessionRepository(db *DB) CollaborationSessionRepository {
	return &collaborationSessionRepo{
		sessions:     newBaseRepo[models.CollaborationSession](db.Database),
		participants: newBaseRepo[models.Participant](db.Database),
		db:           db,
	}
}

func (r *collaborationSessionRepo) Create(ctx context.Context, session *models.CollaborationSession) (*models.CollaborationSession, error) {
	s := *session
	if s.ID == "" {
		s.ID = models.NewObjectID()
	}
	s.Participants = nil

	// chat_id is unique; an expired leftover is replaced
	created, err := r.sessions.UpsertOne(ctx,
		bson.M{"chat_id": s.ChatID},
		bson.M{"active_since": s.ActiveSince, "last_activity": s.LastActivity},
		UpsertOpts{},
	)
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}
	if _, err := r.participants.DeleteMany(ctx, bson.M{"session_id": created.ID}); err != nil {
		return nil, fmt.Errorf("reset participants: %w", err)
	}
	return created, nil
}

func (r *collaborationSessionRepo) FindByChat(ctx context.Context, chatID models.ObjectID) (*models.CollaborationSession, error) {
	s, err := r.sessions.FindOne(ctx, bson.M{"chat_id": chatID})
	if err != nil {
		return nil, err
	}
	return r.withParticipants(ctx, s)
}

func (r *collaborationSessionRepo) GetByID(ctx context.Context, id models.ObjectID) (*models.CollaborationSession, error) {
	s, err := r.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.withParticipants(ctx, s)
}

func (r *collaborationSessionRepo) withParticipants(ctx context.Context, s *models.CollaborationSession) (*models.CollaborationSession, error) {
	ps, err := r.participants.Find(ctx,
		bson.M{"session_id": s.ID},
		options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find participants: %w", err)
	}
	s.Participants = ps
	return s, nil
}

func (r *collaborationSessionRepo) Touch(ctx context.Context, id models.ObjectID, at time.Time) error {
	return r.sessions.UpdateByID(ctx, id, models.CollaborationSession{LastActivity: at})
}

func (r *collaborationSessionRepo) UpsertParticipant(ctx context.Context, p *models.Participant) (*models.Participant, error) {
	set := bson.M{"last_activity": p.LastActivity}
	onInsert := bson.M{"joined_at": p.JoinedAt}
	if p.Role != "" {
		set["role"] = p.Role
	}
	return r.participants.UpsertOne(ctx,
		bson.M{"session_id": p.SessionID, "user_id": p.UserID},
		set,
		UpsertOpts{SetOnInsert: onInsert},
	)
}

func (r *collaborationSessionRepo) RemoveParticipant(ctx context.Context, sessionID models.ObjectID, userID string) (int64, error) {
	if _, err := r.participants.DeleteMany(ctx, bson.M{"session_id": sessionID, "user_id": userID}); err != nil {
		return 0, fmt.Errorf("delete participant: %w", err)
	}
	return r.participants.Count(ctx, bson.M{"session_id": sessionID})
}

func (r *collaborationSessionRepo) Delete(ctx context.Context, id models.ObjectID) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		if err := r.sessions.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
			return err
		}
		_, err := r.participants.DeleteMany(ctx, bson.M{"session_id": id})
		return err
	})
}

func (r *collaborationSessionRepo) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	idle, err := r.sessions.Find(ctx, bson.M{"last_activity": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("find idle sessions: %w", err)
	}
	if len(idle) == 0 {
		return 0, nil
	}
	ids := make([]models.ObjectID, len(idle))
	for i, s := range idle {
		ids[i] = s.ID
	}
	if _, err := r.participants.DeleteMany(ctx, bson.M{"session_id": bson.M{"$in": ids}}); err != nil {
		return 0, fmt.Errorf("delete idle participants: %w", err)
	}
	return r.sessions.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
}
