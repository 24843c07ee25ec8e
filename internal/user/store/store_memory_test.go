package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"userdir/internal/user/models"
	id "userdir/pkg/domain"
	"userdir/pkg/platform/sentinel"
)

// Justification: store invariants (ID assignment, email uniqueness, inclusive
// range ordering, ErrNotFound on delete) are relied on by the service.
type InMemoryUserStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryUserStore
}

func TestInMemoryUserStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryUserStoreSuite))
}

func (s *InMemoryUserStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryUserStore()
}

func newUser(email string, birth id.Date) *models.User {
	return &models.User{
		Email:     email,
		Password:  "hash",
		Role:      models.RoleBasic,
		FirstName: "Jane",
		LastName:  "Doe",
		BirthDate: birth,
	}
}

func (s *InMemoryUserStoreSuite) TestSave() {
	s.Run("assigns sequential IDs on insert", func() {
		first, err := s.store.Save(s.ctx, newUser("one@example.com", id.NewDate(1990, time.January, 1)))
		s.Require().NoError(err)
		second, err := s.store.Save(s.ctx, newUser("two@example.com", id.NewDate(1990, time.January, 1)))
		s.Require().NoError(err)

		s.Equal(id.UserID(1), first.ID)
		s.Equal(id.UserID(2), second.ID)
	})

	s.Run("does not mutate the caller's record", func() {
		in := newUser("caller@example.com", id.NewDate(1990, time.January, 1))
		out, err := s.store.Save(s.ctx, in)
		s.Require().NoError(err)
		s.Zero(in.ID)
		s.NotZero(out.ID)
	})

	s.Run("overwrites an existing record and frees its old email", func() {
		saved, err := s.store.Save(s.ctx, newUser("old@example.com", id.NewDate(1990, time.January, 1)))
		s.Require().NoError(err)

		saved.Email = "new@example.com"
		_, err = s.store.Save(s.ctx, saved)
		s.Require().NoError(err)

		exists, err := s.store.ExistsByEmail(s.ctx, "old@example.com")
		s.Require().NoError(err)
		s.False(exists)

		found, err := s.store.FindByEmail(s.ctx, "new@example.com")
		s.Require().NoError(err)
		s.Equal(saved.ID, found.ID)
	})

	s.Run("rejects an email held by another record", func() {
		_, err := s.store.Save(s.ctx, newUser("taken@example.com", id.NewDate(1990, time.January, 1)))
		s.Require().NoError(err)

		_, err = s.store.Save(s.ctx, newUser("taken@example.com", id.NewDate(1991, time.January, 1)))
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("overwriting an unknown ID is ErrNotFound", func() {
		ghost := newUser("ghost@example.com", id.NewDate(1990, time.January, 1))
		ghost.ID = 404
		_, err := s.store.Save(s.ctx, ghost)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("concurrent inserts never reuse an ID", func() {
		st := NewInMemoryUserStore()
		var wg sync.WaitGroup
		ids := make(chan id.UserID, 50)
		for i := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				u, err := st.Save(s.ctx, newUser(fmt.Sprintf("u%d@example.com", i), id.NewDate(1990, time.January, 1)))
				if err == nil {
					ids <- u.ID
				}
			}()
		}
		wg.Wait()
		close(ids)

		seen := map[id.UserID]bool{}
		for uid := range ids {
			s.False(seen[uid], "duplicate id %d", uid)
			seen[uid] = true
		}
		s.Len(seen, 50)
	})
}

func (s *InMemoryUserStoreSuite) TestLookup() {
	saved, err := s.store.Save(s.ctx, newUser("jane.doe@example.com", id.NewDate(1990, time.January, 1)))
	s.Require().NoError(err)

	s.Run("finds by ID", func() {
		found, err := s.store.FindByID(s.ctx, saved.ID)
		s.Require().NoError(err)
		s.Equal(saved, found)
	})

	s.Run("finds by email", func() {
		found, err := s.store.FindByEmail(s.ctx, "jane.doe@example.com")
		s.Require().NoError(err)
		s.Equal(saved.ID, found.ID)
	})

	s.Run("returned records are copies", func() {
		found, err := s.store.FindByID(s.ctx, saved.ID)
		s.Require().NoError(err)
		found.FirstName = "Changed"

		again, err := s.store.FindByID(s.ctx, saved.ID)
		s.Require().NoError(err)
		s.Equal("Jane", again.FirstName)
	})

	s.Run("missing ID is ErrNotFound", func() {
		_, err := s.store.FindByID(s.ctx, 999)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("missing email is ErrNotFound", func() {
		_, err := s.store.FindByEmail(s.ctx, "missing@example.com")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryUserStoreSuite) TestFindByBirthDateRange() {
	for i, birth := range []id.Date{
		id.NewDate(2000, time.March, 1),
		id.NewDate(1990, time.June, 15),
		id.NewDate(1995, time.January, 1),
		id.NewDate(1985, time.December, 31),
		id.NewDate(1995, time.January, 1),
	} {
		_, err := s.store.Save(s.ctx, newUser(fmt.Sprintf("r%d@example.com", i), birth))
		s.Require().NoError(err)
	}

	s.Run("bounds are inclusive and results ordered", func() {
		users, err := s.store.FindByBirthDateRange(s.ctx, id.NewDate(1990, time.June, 15), id.NewDate(2000, time.March, 1))
		s.Require().NoError(err)
		s.Require().Len(users, 4)

		var got []id.UserID
		for _, u := range users {
			got = append(got, u.ID)
		}
		s.Equal([]id.UserID{2, 3, 5, 1}, got)
	})

	s.Run("empty range yields an empty slice", func() {
		users, err := s.store.FindByBirthDateRange(s.ctx, id.NewDate(1970, time.January, 1), id.NewDate(1971, time.January, 1))
		s.Require().NoError(err)
		s.NotNil(users)
		s.Empty(users)
	})
}

func (s *InMemoryUserStoreSuite) TestDeleteByID() {
	saved, err := s.store.Save(s.ctx, newUser("delete.me@example.com", id.NewDate(1990, time.January, 1)))
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeleteByID(s.ctx, saved.ID))

	_, err = s.store.FindByID(s.ctx, saved.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	exists, err := s.store.ExistsByEmail(s.ctx, "delete.me@example.com")
	s.Require().NoError(err)
	s.False(exists, "email is free again after delete")

	s.ErrorIs(s.store.DeleteByID(s.ctx, saved.ID), sentinel.ErrNotFound)
}
