package services

import (
	"errors"
	"fmt"

	"duocall/internal/core/domain"
	"duocall/pkg/config"

	"golang.org/x/crypto/bcrypt"
)

// CredentialStore verifies passwords against bcrypt hashes.
type CredentialStore struct {
	hashes map[string][]byte
	// dummy is compared against for unknown users so a miss costs the
	// same as a wrong password.
	dummy []byte
}

func NewCredentialStore(users []config.User) *CredentialStore {
	s := &CredentialStore{hashes: make(map[string][]byte, len(users))}
	for _, u := range users {
		s.hashes[u.Username] = []byte(u.PasswordHash)
	}
	s.dummy, _ = bcrypt.GenerateFromPassword([]byte("duocall-dummy"), bcrypt.MinCost)
	return s
}

// DemoCredentialStore returns the two demo accounts used when no users
// are configured.
func DemoCredentialStore(cost int) (*CredentialStore, error) {
	demo := map[string]string{
		"alice": "password123",
		"bob":   "secure456",
	}
	users := make([]config.User, 0, len(demo))
	for name, password := range demo {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash demo password for %s: %w", name, err)
		}
		users = append(users, config.User{Username: name, PasswordHash: string(hash)})
	}
	return NewCredentialStore(users), nil
}

func (s *CredentialStore) Verify(username, password string) error {
	hash, ok := s.hashes[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(password))
		return domain.ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return domain.ErrInvalidCredential
		}
		return fmt.Errorf("failed to verify password: %w", err)
	}
	return nil
}

func (s *CredentialStore) Len() int {
	return len(s.hashes)
}
