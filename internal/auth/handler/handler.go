// Package handler exposes token issuance and logout over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"userdir/internal/auth/token"
	"userdir/internal/platform/middleware"
	id "userdir/pkg/domain"
	dErrors "userdir/pkg/domain-errors"
	audit "userdir/pkg/platform/audit"
	"userdir/pkg/platform/httputil"
	"userdir/pkg/requestcontext"
)

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(userID id.UserID, role string, ttl time.Duration) (token.Issued, error)
}

// Revoker records a revoked token ID until the token would have expired.
type Revoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

// AuditPublisher records audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Authenticator guards routes that need a resolved principal.
type Authenticator interface {
	RequireAuth(next http.Handler) http.Handler
}

// TokenResponse is the body of a successful POST /auth/token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Handler handles the /auth endpoints.
type Handler struct {
	tokens   TokenIssuer
	revoker  Revoker
	auth     Authenticator
	auditor  AuditPublisher
	tokenTTL time.Duration
	logger   *slog.Logger
}

func New(tokens TokenIssuer, revoker Revoker, auth Authenticator, auditor AuditPublisher, tokenTTL time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		tokens:   tokens,
		revoker:  revoker,
		auth:     auth,
		auditor:  auditor,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// Register registers the auth routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Use(h.auth.RequireAuth)
		r.Post("/token", h.handleToken)
		r.Post("/logout", h.handleLogout)
	})
}

// handleToken exchanges Basic credentials for a bearer token. A bearer token
// cannot be used to mint another one.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if requestcontext.TokenID(ctx) != "" {
		w.Header().Set("WWW-Authenticate", middleware.Challenge)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "basic credentials required"))
		return
	}

	principal := middleware.PrincipalFromContext(ctx)
	issued, err := h.tokens.Issue(principal.UserID, principal.Role.String(), h.tokenTTL)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue token",
			"user_id", principal.UserID.String(),
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token"))
		return
	}

	h.emit(ctx, audit.Event{Action: audit.EventTokenIssued, UserID: principal.UserID})
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken: issued.Value,
		TokenType:   "Bearer",
		ExpiresIn:   int64(issued.ExpiresAt.Sub(requestcontext.Now(ctx)).Seconds()),
	})
}

// handleLogout revokes the bearer token used on this request.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	jti := requestcontext.TokenID(ctx)
	if jti == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "logout requires a bearer token"))
		return
	}

	if remaining := requestcontext.TokenExpiry(ctx).Sub(requestcontext.Now(ctx)); remaining > 0 {
		if err := h.revoker.Revoke(ctx, jti, remaining); err != nil {
			h.logger.ErrorContext(ctx, "failed to revoke token",
				"jti", jti,
				"request_id", requestID,
				"error", err,
			)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token"))
			return
		}
	}

	h.emit(ctx, audit.Event{Action: audit.EventTokenRevoked, UserID: requestcontext.UserID(ctx)})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) emit(ctx context.Context, event audit.Event) {
	if h.auditor == nil {
		return
	}
	if err := h.auditor.Emit(ctx, event); err != nil {
		h.logger.WarnContext(ctx, "audit emit failed",
			"action", string(event.Action),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}
