package signature

import (
	"context"
	"sync"

	id "cratekeeper/pkg/domain"
	"cratekeeper/pkg/platform/sentinel"
)

// MemoryCredentialStore keeps password hashes in memory. Used in tests and in
// single-node deployments without a user database.
type MemoryCredentialStore struct {
	mu     sync.RWMutex
	hashes map[id.UserID]string
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{hashes: make(map[id.UserID]string)}
}

func (s *MemoryCredentialStore) PasswordHash(_ context.Context, userID id.UserID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.hashes[userID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return hash, nil
}

// SetPassword hashes and stores a password for the user.
func (s *MemoryCredentialStore) SetPassword(userID id.UserID, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[userID] = hash
	return nil
}
