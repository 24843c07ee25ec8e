package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "userdir/pkg/platform/audit"
)

func TestToMessage(t *testing.T) {
	ts := time.Date(2026, time.October, 18, 9, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	msg := toMessage(audit.Event{
		ID:        "evt-1",
		Action:    audit.EventUserUpdated,
		Category:  audit.CategoryCompliance,
		Timestamp: ts,
		UserID:    7,
		ActorID:   1,
		RequestID: "req-1",
	})

	assert.Equal(t, "user_updated", msg.Action)
	assert.Equal(t, time.UTC, msg.Timestamp.Location())
	assert.True(t, ts.Equal(msg.Timestamp))

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "evt-1", decoded["id"])
	assert.InDelta(t, 7, decoded["user_id"], 0)
	assert.InDelta(t, 1, decoded["actor_id"], 0)
	assert.NotContains(t, decoded, "email")
}

func TestNewStoreOptions(t *testing.T) {
	assert.Equal(t, defaultProduceTimeout, NewStore(nil, "t").produceTimeout)
	assert.Equal(t, 50*time.Millisecond, NewStore(nil, "t", WithProduceTimeout(50*time.Millisecond)).produceTimeout)
	assert.Equal(t, defaultProduceTimeout, NewStore(nil, "t", WithProduceTimeout(0)).produceTimeout)
}

func TestAppendGivesUpOnUnreachableBroker(t *testing.T) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers("127.0.0.1:1"),
		kgo.DefaultProduceTopic("user-events"),
	)
	require.NoError(t, err)
	t.Cleanup(cl.Close)

	store := NewStore(cl, "user-events", WithProduceTimeout(200*time.Millisecond))

	start := time.Now()
	err = store.Append(context.Background(), audit.Event{ID: "evt-1", Action: audit.EventUserCreated, UserID: 1})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
