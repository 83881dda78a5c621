// internal/pkg/session/manager.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

type Manager struct {
	client redis.UniversalClient
	logger *zap.Logger
}

func NewManager(client redis.UniversalClient, logger *zap.Logger) *Manager {
	return &Manager{
		client: client,
		logger: logger,
	}
}

// CreateSession stores a new session and indexes it under its subject
func (m *Manager) CreateSession(ctx context.Context, session *SessionData) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	pipe := m.client.Pipeline()
	pipe.Set(ctx, m.sessionKey(session.ID), data, ttl)
	pipe.SAdd(ctx, m.subjectKey(session.Subject), session.ID)
	pipe.Expire(ctx, m.subjectKey(session.Subject), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}

	return nil
}

// GetSession retrieves a session by id
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*SessionData, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	data, err := m.client.Get(ctx, m.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session SessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// TouchSession updates the last activity timestamp without extending expiry
func (m *Manager) TouchSession(ctx context.Context, session *SessionData) error {
	session.LastActivityAt = time.Now()

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return ErrSessionNotFound
	}
	return m.client.Set(ctx, m.sessionKey(session.ID), data, ttl).Err()
}

// InvalidateSession removes a session. Unknown ids are not an error.
func (m *Manager) InvalidateSession(ctx context.Context, sessionID string) (*SessionData, error) {
	session, err := m.GetSession(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	pipe := m.client.Pipeline()
	pipe.Del(ctx, m.sessionKey(sessionID))
	pipe.SRem(ctx, m.subjectKey(session.Subject), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to delete session: %w", err)
	}

	return session, nil
}

// InvalidateAllForSubject removes every session of a subject and returns how many were removed
func (m *Manager) InvalidateAllForSubject(ctx context.Context, subject string) (int, error) {
	ids, err := m.client.SMembers(ctx, m.subjectKey(subject)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	removed := 0
	for _, id := range ids {
		n, err := m.client.Del(ctx, m.sessionKey(id)).Result()
		if err != nil {
			m.logger.Warn("failed to delete session",
				zap.String("session_id", id),
				zap.Error(err),
			)
			continue
		}
		removed += int(n)
	}

	if err := m.client.Del(ctx, m.subjectKey(subject)).Err(); err != nil {
		return removed, fmt.Errorf("failed to delete session index: %w", err)
	}

	return removed, nil
}

// ListForSubject returns the live sessions of a subject, pruning expired index entries
func (m *Manager) ListForSubject(ctx context.Context, subject string) ([]*SessionData, error) {
	ids, err := m.client.SMembers(ctx, m.subjectKey(subject)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*SessionData, 0, len(ids))
	for _, id := range ids {
		session, err := m.GetSession(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			m.client.SRem(ctx, m.subjectKey(subject), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}

func (m *Manager) sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func (m *Manager) subjectKey(subject string) string {
	return fmt.Sprintf("user_sessions:%s", subject)
}
