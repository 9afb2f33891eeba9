package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

type SessionStore struct {
	mu           sync.RWMutex
	sessions     map[models.ObjectID]models.CollaborationSession
	participants map[models.ObjectID]map[string]models.Participant
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:     make(map[models.ObjectID]models.CollaborationSession),
		participants: make(map[models.ObjectID]map[string]models.Participant),
	}
}

func (s *SessionStore) Create(_ context.Context, session *models.CollaborationSession) (*models.CollaborationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.sessions {
		if existing.ChatID == session.ChatID {
			// one session per chat
			delete(s.sessions, id)
			delete(s.participants, id)
		}
	}
	c := *session
	if c.ID == "" {
		c.ID = models.NewObjectID()
	}
	c.Participants = nil
	s.sessions[c.ID] = c
	s.participants[c.ID] = make(map[string]models.Participant)
	return &c, nil
}

func (s *SessionStore) FindByChat(_ context.Context, chatID models.ObjectID) (*models.CollaborationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, sess := range s.sessions {
		if sess.ChatID == chatID {
			return s.withParticipants(id, sess), nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *SessionStore) GetByID(_ context.Context, id models.ObjectID) (*models.CollaborationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s.withParticipants(id, sess), nil
}

func (s *SessionStore) withParticipants(id models.ObjectID, sess models.CollaborationSession) *models.CollaborationSession {
	sess.Participants = make([]models.Participant, 0, len(s.participants[id]))
	for _, p := range s.participants[id] {
		sess.Participants = append(sess.Participants, p)
	}
	sort.Slice(sess.Participants, func(i, j int) bool {
		return sess.Participants[i].JoinedAt.Before(sess.Participants[j].JoinedAt)
	})
	return &sess
}

func (s *SessionStore) Touch(_ context.Context, id models.ObjectID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return models.ErrNotFound
	}
	sess.LastActivity = at
	s.sessions[id] = sess
	return nil
}

func (s *SessionStore) UpsertParticipant(_ context.Context, p *models.Participant) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.participants[p.SessionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if existing, ok := set[p.UserID]; ok {
		existing.LastActivity = p.LastActivity
		if p.Role != "" {
			existing.Role = p.Role
		}
		set[p.UserID] = existing
		return &existing, nil
	}
	c := *p
	if c.ID == "" {
		c.ID = models.NewObjectID()
	}
	set[c.UserID] = c
	return &c, nil
}

func (s *SessionStore) RemoveParticipant(_ context.Context, sessionID models.ObjectID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.participants[sessionID]
	if !ok {
		return 0, models.ErrNotFound
	}
	delete(set, userID)
	return int64(len(set)), nil
}

func (s *SessionStore) Delete(_ context.Context, id models.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.sessions, id)
	delete(s.participants, id)
	return nil
}

func (s *SessionStore) DeleteIdleBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			delete(s.participants, id)
			n++
		}
	}
	return n, nil
}
