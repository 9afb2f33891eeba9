package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/config"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	log "github.com/nguyentranbao-ct/mindmap-chat/pkg/logger/log_context"
)

type collaborationUsecase struct {
	chats           ChatStore
	sessions        SessionStore
	broadcaster     Broadcaster
	livenessTimeout time.Duration
	now             func() time.Time
}

func NewCollaborationUsecase(
	conf *config.Config,
	chats ChatStore,
	sessions SessionStore,
	broadcaster Broadcaster,
) CollaborationUsecase {
	return &collaborationUsecase{
		chats:           chats,
		sessions:        sessions,
		broadcaster:     broadcaster,
		livenessTimeout: conf.Collab.LivenessTimeout,
		now:             time.Now,
	}
}

// activeSession returns the chat's session, treating an expired one as absent.
func (uc *collaborationUsecase) activeSession(ctx context.Context, chatID models.ObjectID) (*models.CollaborationSession, error) {
	sess, err := uc.sessions.FindByChat(ctx, chatID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if sess.Expired(uc.now()) {
		return nil, nil
	}
	return sess, nil
}

func (uc *collaborationUsecase) Join(ctx context.Context, chatID models.ObjectID, user models.User) (*models.CollaborationSession, error) {
	chat, err := uc.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	isOwner := chat.IsOwner(user.ID)
	if !isOwner && !chat.IsCollaborative {
		return nil, models.ErrAccessDenied
	}

	sess, err := uc.activeSession(ctx, chatID)
	if err != nil {
		return nil, err
	}
	now := uc.now()
	if sess == nil {
		if !isOwner {
			return nil, models.ErrNoActiveSession
		}
		sess, err = uc.sessions.Create(ctx, &models.CollaborationSession{
			ChatID:       chatID,
			ActiveSince:  now,
			LastActivity: now,
		})
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		log.Infow(ctx, "collaboration session started", "chat_id", chatID, "session_id", sess.ID, "owner", user.ID)
	}

	participant := &models.Participant{
		SessionID:    sess.ID,
		UserID:       user.ID,
		JoinedAt:     now,
		LastActivity: now,
	}
	if _, exists := sess.Participant(user.ID); !exists {
		participant.Role = models.ParticipantCollaborator
		if isOwner {
			participant.Role = models.ParticipantOwner
		}
	}
	if _, err := uc.sessions.UpsertParticipant(ctx, participant); err != nil {
		return nil, fmt.Errorf("upsert participant: %w", err)
	}
	if err := uc.sessions.Touch(ctx, sess.ID, now); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	return uc.sessions.GetByID(ctx, sess.ID)
}

func (uc *collaborationUsecase) Heartbeat(ctx context.Context, sessionID models.ObjectID, user models.User) error {
	if sessionID == "" {
		return models.ErrSessionIDRequired
	}
	sess, err := uc.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrNoActiveSession
	}
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	now := uc.now()
	if sess.Expired(now) {
		return models.ErrNoActiveSession
	}
	if _, ok := sess.Participant(user.ID); !ok {
		return models.ErrAccessDenied
	}

	return uc.refresh(ctx, sess.ID, user.ID, now)
}

// refresh moves the participant's and the session's last activity to now.
func (uc *collaborationUsecase) refresh(ctx context.Context, sessionID models.ObjectID, userID string, now time.Time) error {
	if _, err := uc.sessions.UpsertParticipant(ctx, &models.Participant{
		SessionID:    sessionID,
		UserID:       userID,
		LastActivity: now,
	}); err != nil {
		return fmt.Errorf("refresh participant: %w", err)
	}
	return uc.sessions.Touch(ctx, sessionID, now)
}

func (uc *collaborationUsecase) Leave(ctx context.Context, sessionID models.ObjectID, user models.User) error {
	if sessionID == "" {
		return models.ErrSessionIDRequired
	}
	sess, err := uc.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrNoActiveSession
	}
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	remaining, err := uc.sessions.RemoveParticipant(ctx, sessionID, user.ID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	if remaining == 0 {
		if err := uc.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("delete session: %w", err)
		}
		log.Infow(ctx, "collaboration session closed by last leaver", "chat_id", sess.ChatID, "session_id", sessionID)
	}

	uc.broadcaster.Broadcast(ctx, models.Event{
		Type:     models.EventUserLeave,
		ChatID:   sess.ChatID.String(),
		UserID:   user.ID,
		UserName: user.Name,
	})
	return nil
}

func (uc *collaborationUsecase) EndSession(ctx context.Context, chatID models.ObjectID, user models.User) error {
	chat, err := uc.chats.GetByID(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get chat: %w", err)
	}
	if !chat.IsOwner(user.ID) {
		return fmt.Errorf("only the owner can end a session: %w", models.ErrForbidden)
	}

	sess, err := uc.sessions.FindByChat(ctx, chatID)
	switch {
	case errors.Is(err, models.ErrNotFound):
	case err != nil:
		return fmt.Errorf("find session: %w", err)
	default:
		if err := uc.sessions.Delete(ctx, sess.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	if err := uc.chats.SetCollaborative(ctx, chatID, false); err != nil {
		return fmt.Errorf("clear collaborative flag: %w", err)
	}

	uc.broadcaster.Broadcast(ctx, models.Event{
		Type:     models.EventSessionEnd,
		ChatID:   chatID.String(),
		UserID:   user.ID,
		UserName: user.Name,
	})
	return nil
}

func (uc *collaborationUsecase) SetParticipantRole(ctx context.Context, chatID models.ObjectID, owner models.User, userID string, role models.ParticipantRole) error {
	if role != models.ParticipantCollaborator && role != models.ParticipantViewer {
		return fmt.Errorf("role %q: %w", role, models.ErrValidation)
	}
	chat, err := uc.chats.GetByID(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get chat: %w", err)
	}
	if !chat.IsOwner(owner.ID) {
		return fmt.Errorf("only the owner can change roles: %w", models.ErrForbidden)
	}
	if chat.IsOwner(userID) {
		return fmt.Errorf("owner role is fixed: %w", models.ErrValidation)
	}

	sess, err := uc.activeSession(ctx, chatID)
	if err != nil {
		return err
	}
	if sess == nil {
		return models.ErrNoActiveSession
	}
	p, ok := sess.Participant(userID)
	if !ok {
		return fmt.Errorf("participant %s: %w", userID, models.ErrNotFound)
	}
	_, err = uc.sessions.UpsertParticipant(ctx, &models.Participant{
		SessionID:    sess.ID,
		UserID:       userID,
		Role:         role,
		LastActivity: p.LastActivity,
	})
	return err
}

// ActiveSession reports the chat's live session. A slow store is reported as no session.
func (uc *collaborationUsecase) ActiveSession(ctx context.Context, chatID models.ObjectID) (*models.CollaborationSession, bool) {
	if uc.livenessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.livenessTimeout)
		defer cancel()
	}

	sess, err := uc.activeSession(ctx, chatID)
	if err != nil {
		log.Warnw(ctx, "session liveness query failed", "chat_id", chatID, "error", err)
		return nil, false
	}
	return sess, sess != nil
}

// CanEdit allows the owner, and editors of an active session on a
// collaborative chat. An allowed participant counts as active.
func (uc *collaborationUsecase) CanEdit(ctx context.Context, chatID models.ObjectID, user models.User) error {
	chat, err := uc.chats.GetByID(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get chat: %w", err)
	}
	isOwner := chat.IsOwner(user.ID)
	if !isOwner && !chat.IsCollaborative {
		return fmt.Errorf("chat %s is not collaborative: %w", chatID, models.ErrForbidden)
	}

	sess, err := uc.activeSession(ctx, chatID)
	switch {
	case err != nil && isOwner:
		log.Warnw(ctx, "session lookup failed", "chat_id", chatID, "error", err)
		return nil
	case err != nil:
		return err
	case sess == nil && isOwner:
		return nil
	case sess == nil:
		return models.ErrNoActiveSession
	}

	p, ok := sess.Participant(user.ID)
	if !isOwner && (!ok || !p.Role.CanEdit()) {
		return fmt.Errorf("user %s cannot edit chat %s: %w", user.ID, chatID, models.ErrForbidden)
	}
	if ok {
		if err := uc.refresh(ctx, sess.ID, user.ID, uc.now()); err != nil {
			log.Warnw(ctx, "failed to record participant activity", "session_id", sess.ID, "user_id", user.ID, "error", err)
		}
	}
	return nil
}

// RecordActivity keeps the chat's session alive for a participant acting
// outside the HTTP API. Non-participants are ignored.
func (uc *collaborationUsecase) RecordActivity(ctx context.Context, chatID models.ObjectID, user models.User) error {
	sess, err := uc.activeSession(ctx, chatID)
	if err != nil || sess == nil {
		return err
	}
	if _, ok := sess.Participant(user.ID); !ok {
		return nil
	}
	return uc.refresh(ctx, sess.ID, user.ID, uc.now())
}

func (uc *collaborationUsecase) Sweep(ctx context.Context, now time.Time) (int64, error) {
	n, err := uc.sessions.DeleteIdleBefore(ctx, now.Add(-models.SessionRetentionWindow))
	if err != nil {
		return 0, fmt.Errorf("delete idle sessions: %w", err)
	}
	if n > 0 {
		log.Infow(ctx, "idle collaboration sessions removed", "count", n)
	}
	return n, nil
}
