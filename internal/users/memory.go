package users

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps users in a map.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(_ context.Context, email string) (User, error) {
	if err := ValidateEmail(email); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[email]; ok {
		return User{}, fmt.Errorf("%w: %s", ErrUserAlreadyExists, email)
	}
	user := User{Email: email}
	s.users[email] = user
	return user, nil
}

func (s *MemoryStore) Get(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[email]
	if !ok {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return user, nil
}

func (s *MemoryStore) SetHasBina(_ context.Context, email string, hasBina bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	user.HasBina = hasBina
	s.users[email] = user
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, email)
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]User)
	return nil
}
