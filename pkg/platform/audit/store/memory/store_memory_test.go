package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "userdir/pkg/domain"
	audit "userdir/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	for i, e := range []audit.Event{
		{ID: "1", Action: audit.EventUserCreated, UserID: 1},
		{ID: "2", Action: audit.EventUserCreated, UserID: 2},
		{ID: "3", Action: audit.EventUserUpdated, UserID: 1},
	} {
		require.NoError(t, s.Append(ctx, e), "append %d", i)
	}

	t.Run("list by user keeps append order", func(t *testing.T) {
		events, err := s.ListByUser(ctx, id.UserID(1))
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "1", events[0].ID)
		assert.Equal(t, "3", events[1].ID)
	})

	t.Run("list recent is bounded", func(t *testing.T) {
		events, err := s.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "2", events[0].ID)

		all, err := s.ListRecent(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("returned slices are copies", func(t *testing.T) {
		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		all[0].ID = "mutated"
		again, _ := s.ListAll(ctx)
		assert.Equal(t, "1", again[0].ID)
	})

	t.Run("clear", func(t *testing.T) {
		s.Clear()
		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}
