// Package audit records who did what to which user. Events flow through a
// Publisher, which enriches them from the request context, writes a structured
// log line and appends them to a Store (in memory or a Kafka topic).
package audit

import (
	"context"
	"time"

	id "userdir/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers changes to user records.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers authentication outcomes.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	EventUserCreated  AuditEvent = "user_created"
	EventUserReplaced AuditEvent = "user_replaced"
	EventUserUpdated  AuditEvent = "user_updated"
	EventUserDeleted  AuditEvent = "user_deleted"
	EventAdminSeeded  AuditEvent = "admin_seeded"

	EventAuthFailed   AuditEvent = "auth_failed"
	EventTokenIssued  AuditEvent = "token_issued"
	EventTokenRevoked AuditEvent = "token_revoked"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventUserCreated:  CategoryCompliance,
	EventUserReplaced: CategoryCompliance,
	EventUserUpdated:  CategoryCompliance,
	EventUserDeleted:  CategoryCompliance,
	EventAdminSeeded:  CategoryCompliance,

	EventAuthFailed:   CategorySecurity,
	EventTokenRevoked: CategorySecurity,

	EventTokenIssued: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Action    AuditEvent
	Category  EventCategory
	Timestamp time.Time
	// UserID is the user the action applied to; zero when unknown (failed login).
	UserID id.UserID
	// ActorID is the authenticated caller; zero for anonymous requests.
	ActorID   id.UserID
	Email     string
	Reason    string
	RequestID string
	TraceID   string
	ClientIP  string
	UserAgent string
	Device    string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
