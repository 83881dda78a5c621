package authstate

import (
	"sync"

	"objettrouve-service/internal/domain/auth"
)

// TokenStore holds the provider credential session on the client side.
type TokenStore interface {
	Load() (*auth.CredentialSession, bool)
	Save(session *auth.CredentialSession)
	Clear()
}

// MemoryTokenStore keeps the credential session in process memory.
type MemoryTokenStore struct {
	mu      sync.RWMutex
	session *auth.CredentialSession
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load() (*auth.CredentialSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, false
	}
	cp := *s.session
	return &cp, true
}

func (s *MemoryTokenStore) Save(session *auth.CredentialSession) {
	cp := *session
	s.mu.Lock()
	s.session = &cp
	s.mu.Unlock()
}

func (s *MemoryTokenStore) Clear() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}
