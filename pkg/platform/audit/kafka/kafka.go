// Package kafka streams audit events to a Kafka topic with franz-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "userdir/pkg/platform/audit"
)

const (
	eventTypeHeader       = "event_type"
	defaultProduceTimeout = 2 * time.Second
)

// Message is the JSON value written for each audit event.
type Message struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	UserID    int64     `json:"user_id,omitempty"`
	ActorID   int64     `json:"actor_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Device    string    `json:"device,omitempty"`
}

func toMessage(e audit.Event) Message {
	return Message{
		ID:        e.ID,
		Action:    string(e.Action),
		Category:  string(e.Category),
		Timestamp: e.Timestamp.UTC(),
		UserID:    int64(e.UserID),
		ActorID:   int64(e.ActorID),
		Email:     e.Email,
		Reason:    e.Reason,
		RequestID: e.RequestID,
		TraceID:   e.TraceID,
		ClientIP:  e.ClientIP,
		UserAgent: e.UserAgent,
		Device:    e.Device,
	}
}

// NewClient builds a producer client for the given brokers. Records default
// to topic and wait for all in-sync replicas.
func NewClient(brokers []string, topic string) (*kgo.Client, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return cl, nil
}

// EnsureTopic creates topic when it does not exist yet.
func EnsureTopic(ctx context.Context, cl *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(cl)
	resp, err := adm.CreateTopic(ctx, partitions, replicationFactor, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

// Store implements audit.Store by producing one record per event, keyed by
// the affected user so a user's history stays in one partition.
type Store struct {
	client         *kgo.Client
	topic          string
	produceTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithProduceTimeout bounds how long Append waits for the broker to
// acknowledge a record. Non-positive values are ignored.
func WithProduceTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.produceTimeout = d
		}
	}
}

func NewStore(client *kgo.Client, topic string, opts ...Option) *Store {
	s := &Store{client: client, topic: topic, produceTimeout: defaultProduceTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(toMessage(event))
	if err != nil {
		return fmt.Errorf("marshal audit message: %w", err)
	}
	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.UserID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: eventTypeHeader, Value: []byte(event.Action)},
		},
	}
	produceCtx, cancel := context.WithTimeout(ctx, s.produceTimeout)
	defer cancel()
	if err := s.client.ProduceSync(produceCtx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce audit record: %w", err)
	}
	return nil
}

// Health pings the brokers.
func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close flushes buffered records and closes the client.
func (s *Store) Close(ctx context.Context) error {
	err := s.client.Flush(ctx)
	s.client.Close()
	return err
}

var _ audit.Store = (*Store)(nil)
