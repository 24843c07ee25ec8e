package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"userdir/internal/user/engine"
	"userdir/internal/user/models"
	id "userdir/pkg/domain"
	"userdir/pkg/platform/sentinel"
)

// InMemoryUserStore keeps users in a map guarded by a RWMutex. Records are
// copied on the way in and out so callers never share memory with the store.
type InMemoryUserStore struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
	seq     atomic.Int64
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

// Save inserts a record when its ID is zero (assigning the next ID) and
// overwrites the record with that ID otherwise. Overwriting an absent record
// returns sentinel.ErrNotFound.
func (s *InMemoryUserStore) Save(_ context.Context, user *models.User) (*models.User, error) {
	if user == nil {
		return nil, fmt.Errorf("save nil user: %w", sentinel.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byEmail[user.Email]; ok && owner != user.ID {
		return nil, fmt.Errorf("email %s: %w", user.Email, sentinel.ErrConflict)
	}

	stored := *user
	if stored.ID.IsZero() {
		stored.ID = id.UserID(s.seq.Add(1))
	} else {
		prev, ok := s.users[stored.ID]
		if !ok {
			return nil, sentinel.ErrNotFound
		}
		if prev.Email != stored.Email {
			delete(s.byEmail, prev.Email)
		}
	}
	s.users[stored.ID] = &stored
	s.byEmail[stored.Email] = stored.ID

	out := stored
	return &out, nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		out := *u
		return &out, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if userID, ok := s.byEmail[email]; ok {
		out := *s.users[userID]
		return &out, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryUserStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[email]
	return ok, nil
}

// FindByBirthDateRange returns users born within [from, to], both inclusive,
// ordered by birth date then ID.
func (s *InMemoryUserStore) FindByBirthDateRange(_ context.Context, from, to id.Date) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.User, 0)
	for _, u := range s.users {
		if u.BirthDate.Before(from) || u.BirthDate.After(to) {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	engine.SortByBirthDate(out)
	return out, nil
}

// DeleteByID removes a user. Returns sentinel.ErrNotFound when absent.
func (s *InMemoryUserStore) DeleteByID(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byEmail, u.Email)
	delete(s.users, userID)
	return nil
}
