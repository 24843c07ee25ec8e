package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "userdir/pkg/domain"
	audit "userdir/pkg/platform/audit"
	"userdir/pkg/platform/audit/store/memory"
	"userdir/pkg/requestcontext"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("broker down") }

func TestPublisherEnrichesFromContext(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := audit.NewPublisher(store)

	now := time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	ctx = requestcontext.WithPrincipal(ctx, id.UserID(1), "admin")
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.1", "curl/8.0", "desktop")

	require.NoError(t, pub.Emit(ctx, audit.Event{Action: audit.EventUserCreated, UserID: 7}))

	events, err := store.ListByUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, events, 1)
	e := events[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, audit.CategoryCompliance, e.Category)
	assert.Equal(t, now, e.Timestamp)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, id.UserID(1), e.ActorID)
	assert.Equal(t, "10.0.0.1", e.ClientIP)
	assert.Equal(t, "curl/8.0", e.UserAgent)
	assert.Equal(t, "desktop", e.Device)
}

func TestPublisherPreservesExplicitFields(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := audit.NewPublisher(store)
	ts := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		ID:        "fixed",
		Action:    audit.EventAuthFailed,
		Timestamp: ts,
		ActorID:   3,
	}))

	events, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "fixed", events[0].ID)
	assert.Equal(t, ts, events[0].Timestamp)
	assert.Equal(t, id.UserID(3), events[0].ActorID)
	assert.Equal(t, audit.CategorySecurity, events[0].Category)
}

func TestPublisherRequiresAction(t *testing.T) {
	pub := audit.NewPublisher(memory.NewInMemoryStore())
	assert.Error(t, pub.Emit(context.Background(), audit.Event{UserID: 1}))
}

func TestPublisherLogsAuditLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	pub := audit.NewPublisher(memory.NewInMemoryStore(), audit.WithLogger(logger))

	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.EventUserDeleted, UserID: 9}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "audit", line["log_type"])
	assert.Equal(t, "user_deleted", line["msg"])
	assert.Equal(t, "9", line["user_id"])
}

func TestPublisherSurfacesStoreErrors(t *testing.T) {
	pub := audit.NewPublisher(failingStore{})
	err := pub.Emit(context.Background(), audit.Event{Action: audit.EventUserCreated, UserID: 1})
	assert.ErrorContains(t, err, "broker down")
}

func TestUnknownActionIsOperations(t *testing.T) {
	assert.Equal(t, audit.CategoryOperations, audit.AuditEvent("something_else").Category())
}

func TestInMemoryStoreListRecent(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	for i := range 5 {
		require.NoError(t, store.Append(ctx, audit.Event{Action: audit.EventUserCreated, UserID: id.UserID(i + 1)}))
	}

	recent, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, id.UserID(4), recent[0].UserID)
	assert.Equal(t, id.UserID(5), recent[1].UserID)

	all, err := store.ListRecent(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	store.Clear()
	all, err = store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
