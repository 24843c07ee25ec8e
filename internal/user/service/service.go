package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"userdir/internal/platform/metrics"
	"userdir/internal/user/engine"
	"userdir/internal/user/models"
	id "userdir/pkg/domain"
	dErrors "userdir/pkg/domain-errors"
	emailutil "userdir/pkg/email"
	audit "userdir/pkg/platform/audit"
	"userdir/pkg/platform/sentinel"
	"userdir/pkg/requestcontext"
)

const tracerName = "userdir/internal/user/service"

const (
	opCreate       = "create"
	opReplace      = "replace"
	opPatch        = "patch"
	opDelete       = "delete"
	opList         = "list"
	opAuthenticate = "authenticate"
)

// UserStore persists users. Implementations return sentinel.ErrNotFound and
// sentinel.ErrConflict for missing records and duplicate emails.
type UserStore interface {
	Save(ctx context.Context, user *models.User) (*models.User, error)
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	FindByBirthDateRange(ctx context.Context, from, to id.Date) ([]*models.User, error)
	DeleteByID(ctx context.Context, userID id.UserID) error
}

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
	NeedsRehash(hash string) bool
}

// AuditPublisher records audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates user operations: it gathers store facts, lets the
// engine decide, hashes passwords, persists and records the outcome.
type Service struct {
	store   UserStore
	engine  *engine.Engine
	hasher  Hasher
	auditor AuditPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

type Option func(*Service)

func WithAuditor(a AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func New(store UserStore, eng *engine.Engine, hasher Hasher, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("user store is required")
	}
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	if hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	s := &Service{
		store:  store,
		engine: eng,
		hasher: hasher,
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create validates and stores a new user and returns it with its assigned ID.
func (s *Service) Create(ctx context.Context, candidate models.User) (*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "user.Create")
	defer span.End()
	defer s.metrics.ObserveOperation(opCreate, time.Now())

	taken, err := s.store.ExistsByEmail(ctx, strings.TrimSpace(candidate.Email))
	if err != nil {
		return nil, s.fail(ctx, span, opCreate, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check email"))
	}
	user, err := s.engine.ValidateCreate(candidate, taken)
	if err != nil {
		return nil, s.fail(ctx, span, opCreate, err)
	}
	if user.Password, err = s.hasher.Hash(user.Password); err != nil {
		return nil, s.fail(ctx, span, opCreate, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password"))
	}

	saved, err := s.store.Save(ctx, &user)
	if err != nil {
		return nil, s.fail(ctx, span, opCreate, translateSaveError(err, user.Email))
	}

	span.SetAttributes(attribute.Int64("user.id", int64(saved.ID)))
	s.metrics.IncrementMutation(opCreate)
	s.emit(ctx, audit.Event{Action: audit.EventUserCreated, UserID: saved.ID, Email: saved.Email})
	return saved, nil
}

// Replace overwrites every field of an existing user. The identity is taken
// from userID, never from the candidate.
func (s *Service) Replace(ctx context.Context, userID id.UserID, candidate models.User) (*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "user.Replace", trace.WithAttributes(attribute.Int64("user.id", int64(userID))))
	defer span.End()
	defer s.metrics.ObserveOperation(opReplace, time.Now())

	existing, err := s.findExisting(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, span, opReplace, err)
	}
	user, err := s.engine.ValidateReplace(userID, candidate, existing)
	if err != nil {
		return nil, s.fail(ctx, span, opReplace, err)
	}
	if user.Password, err = s.hasher.Hash(user.Password); err != nil {
		return nil, s.fail(ctx, span, opReplace, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password"))
	}

	saved, err := s.store.Save(ctx, &user)
	if err != nil {
		return nil, s.fail(ctx, span, opReplace, translateSaveError(err, user.Email))
	}

	s.metrics.IncrementMutation(opReplace)
	s.emit(ctx, audit.Event{Action: audit.EventUserReplaced, UserID: saved.ID})
	return saved, nil
}

// Patch applies a partial update on behalf of principal.
func (s *Service) Patch(ctx context.Context, principal models.Principal, userID id.UserID, patch models.Patch) (*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "user.Patch", trace.WithAttributes(
		attribute.Int64("user.id", int64(userID)),
		attribute.Int64("principal.id", int64(principal.UserID)),
		attribute.String("principal.role", principal.Role.String()),
	))
	defer span.End()
	defer s.metrics.ObserveOperation(opPatch, time.Now())

	existing, err := s.findExisting(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, span, opPatch, err)
	}
	user, err := s.engine.ValidatePatch(principal, userID, patch, existing)
	if err != nil {
		return nil, s.fail(ctx, span, opPatch, err)
	}
	if patch.Password != nil {
		if user.Password, err = s.hasher.Hash(user.Password); err != nil {
			return nil, s.fail(ctx, span, opPatch, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password"))
		}
	}

	saved, err := s.store.Save(ctx, &user)
	if err != nil {
		return nil, s.fail(ctx, span, opPatch, translateSaveError(err, user.Email))
	}

	s.metrics.IncrementMutation(opPatch)
	s.emit(ctx, audit.Event{Action: audit.EventUserUpdated, UserID: saved.ID, ActorID: principal.UserID})
	return saved, nil
}

// Delete removes a user. Deleting an absent user succeeds.
func (s *Service) Delete(ctx context.Context, userID id.UserID) error {
	ctx, span := s.tracer.Start(ctx, "user.Delete", trace.WithAttributes(attribute.Int64("user.id", int64(userID))))
	defer span.End()
	defer s.metrics.ObserveOperation(opDelete, time.Now())

	err := s.store.DeleteByID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.logger.DebugContext(ctx, "delete of absent user",
			"user_id", userID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil
	}
	if err != nil {
		return s.fail(ctx, span, opDelete, dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete user"))
	}

	s.metrics.IncrementMutation(opDelete)
	s.emit(ctx, audit.Event{Action: audit.EventUserDeleted, UserID: userID})
	return nil
}

// ListByBirthDate returns users born within [from, to] ordered by birth
// date. A reversed range is rejected before the store is consulted.
func (s *Service) ListByBirthDate(ctx context.Context, from, to id.Date) ([]*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "user.ListByBirthDate", trace.WithAttributes(
		attribute.String("range.from", from.String()),
		attribute.String("range.to", to.String()),
	))
	defer span.End()
	defer s.metrics.ObserveOperation(opList, time.Now())

	if err := s.engine.ValidateRange(from, to); err != nil {
		return nil, s.fail(ctx, span, opList, err)
	}
	users, err := s.store.FindByBirthDateRange(ctx, from, to)
	if err != nil {
		return nil, s.fail(ctx, span, opList, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users"))
	}
	engine.SortByBirthDate(users)
	span.SetAttributes(attribute.Int("result.count", len(users)))
	return users, nil
}

// Authenticate checks email and password credentials. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.Principal, error) {
	ctx, span := s.tracer.Start(ctx, "user.Authenticate")
	defer span.End()
	defer s.metrics.ObserveOperation(opAuthenticate, time.Now())

	invalid := dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")

	user, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.authFailed(ctx, 0, "unknown_email")
		return nil, s.fail(ctx, span, opAuthenticate, invalid)
	}
	if err != nil {
		return nil, s.fail(ctx, span, opAuthenticate, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user"))
	}

	ok, err := s.hasher.Verify(password, user.Password)
	if err != nil {
		return nil, s.fail(ctx, span, opAuthenticate, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password"))
	}
	if !ok {
		s.authFailed(ctx, user.ID, "invalid_password")
		return nil, s.fail(ctx, span, opAuthenticate, invalid)
	}

	if s.hasher.NeedsRehash(user.Password) {
		s.rehash(ctx, user, password)
	}
	return &models.Principal{UserID: user.ID, Role: user.Role}, nil
}

// ResolvePrincipal loads the current role of a token subject.
func (s *Service) ResolvePrincipal(ctx context.Context, userID id.UserID) (*models.Principal, error) {
	user, err := s.store.FindByID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user no longer exists")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return &models.Principal{UserID: user.ID, Role: user.Role}, nil
}

// EnsureAdmin makes sure an administrator with the given email exists. An
// existing user with that email is promoted; otherwise a new one is created
// with the given password. Repeated calls are no-ops.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (*models.User, error) {
	existing, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin {
			return existing, nil
		}
		existing.Role = models.RoleAdmin
		saved, err := s.store.Save(ctx, existing)
		if err != nil {
			return nil, fmt.Errorf("promote administrator: %w", err)
		}
		s.emit(ctx, audit.Event{Action: audit.EventAdminSeeded, UserID: saved.ID, Email: saved.Email, Reason: "promoted"})
		return saved, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, fmt.Errorf("find administrator: %w", err)
	}

	firstName, lastName := emailutil.DeriveNameFromEmail(email)
	candidate, err := s.engine.ValidateCreate(models.User{
		Email:     email,
		Password:  password,
		Role:      models.RoleAdmin,
		FirstName: firstName,
		LastName:  lastName,
		BirthDate: s.engine.Cutoff(),
	}, false)
	if err != nil {
		return nil, fmt.Errorf("invalid administrator: %w", err)
	}
	if candidate.Password, err = s.hasher.Hash(candidate.Password); err != nil {
		return nil, fmt.Errorf("hash administrator password: %w", err)
	}
	saved, err := s.store.Save(ctx, &candidate)
	if err != nil {
		return nil, fmt.Errorf("create administrator: %w", err)
	}
	s.emit(ctx, audit.Event{Action: audit.EventAdminSeeded, UserID: saved.ID, Email: saved.Email, Reason: "created"})
	return saved, nil
}

func (s *Service) findExisting(ctx context.Context, userID id.UserID) (*models.User, error) {
	existing, err := s.store.FindByID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return existing, nil
}

func (s *Service) rehash(ctx context.Context, user *models.User, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash failed", "user_id", user.ID.String(), "error", err)
		return
	}
	updated := *user
	updated.Password = hash
	if _, err := s.store.Save(ctx, &updated); err != nil {
		s.logger.WarnContext(ctx, "password rehash not saved", "user_id", user.ID.String(), "error", err)
	}
}

func (s *Service) authFailed(ctx context.Context, userID id.UserID, reason string) {
	s.metrics.IncrementAuthFailure("basic")
	s.emit(ctx, audit.Event{Action: audit.EventAuthFailed, UserID: userID, Reason: reason})
}

// emit records an audit event. Audit failures are logged, never returned:
// the mutation they describe has already been persisted.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"action", string(event.Action),
			"user_id", event.UserID.String(),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

// fail records a rejected or failed operation and returns err unchanged.
func (s *Service) fail(ctx context.Context, span trace.Span, op string, err error) error {
	code := dErrors.CodeInternal
	if de, ok := dErrors.As(err); ok {
		code = de.Code
	}
	s.metrics.IncrementRejection(op, string(code))
	span.SetAttributes(attribute.String("error.code", string(code)))

	if code == dErrors.CodeInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.ErrorContext(ctx, "user operation failed",
			"operation", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		s.logger.InfoContext(ctx, "user operation rejected",
			"operation", op,
			"code", string(code),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return err
}

func translateSaveError(err error, email string) error {
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "user with email "+email+" already exists")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save user")
	}
}
