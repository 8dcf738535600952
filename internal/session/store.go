// Package session provides storage backends for opaque session tokens.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Store records active session tokens with an absolute expiry. Validation
// fails closed: unknown and expired tokens are both invalid.
type Store interface {
	Create(ctx context.Context, ttl time.Duration) (string, error)
	Validate(ctx context.Context, token string) (bool, error)
	Revoke(ctx context.Context, token string) error
	Ping(ctx context.Context) error
	Close() error
}

// NewToken returns a 256-bit random token, hex encoded.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// MemoryStore keeps sessions in process memory. Nothing survives a restart,
// which is the contract: sessions are re-established by logging in again.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]time.Time
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, ttl time.Duration) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.sessions[token] = s.now().Add(ttl)
	s.mu.Unlock()
	return token, nil
}

// Validate reports whether the token is active. Expired entries are evicted
// on lookup; there is no background sweep.
func (s *MemoryStore) Validate(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt, ok := s.sessions[token]
	if !ok {
		return false, nil
	}
	if !s.now().Before(expiresAt) {
		delete(s.sessions, token)
		return false, nil
	}
	return true, nil
}

// Revoke removes the token. Revoking an unknown token is a no-op.
func (s *MemoryStore) Revoke(ctx context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
