package repository

import (
	"context"
	"sync"
	"time"

	"github.com/wa-platform/core/domain/flow"
)

// MemoryFlowSessionStore implements flow.Store with an in-memory map. Data
// is lost on restart; intended for single-process/dev deployments.
type MemoryFlowSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*flow.Session
	locks    map[string]*sync.Mutex
}

func NewMemoryFlowSessionStore() *MemoryFlowSessionStore {
	return &MemoryFlowSessionStore{
		sessions: make(map[string]*flow.Session),
		locks:    make(map[string]*sync.Mutex),
	}
}

func sessionKey(tenantID, contactID string) string {
	return tenantID + "|" + contactID
}

func (s *MemoryFlowSessionStore) Get(_ context.Context, tenantID, contactID string) (*flow.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionKey(tenantID, contactID)]
	if !ok {
		return nil, false, nil
	}
	clone := *sess
	clone.Variables = sess.Variables.Clone()
	return &clone, true, nil
}

func (s *MemoryFlowSessionStore) Save(_ context.Context, sess *flow.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.LastInteraction = time.Now()
	clone := *sess
	clone.Variables = sess.Variables.Clone()
	s.sessions[sessionKey(sess.TenantID, sess.ContactID)] = &clone
	return nil
}

func (s *MemoryFlowSessionStore) Delete(_ context.Context, tenantID, contactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionKey(tenantID, contactID))
	return nil
}

func (s *MemoryFlowSessionStore) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *MemoryFlowSessionStore) WithLock(ctx context.Context, tenantID, contactID string, fn func(ctx context.Context) error) error {
	l := s.keyLock(sessionKey(tenantID, contactID))
	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}
