package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"userdir/internal/auth/token"
	"userdir/internal/platform/metrics"
	"userdir/internal/user/models"
	id "userdir/pkg/domain"
	dErrors "userdir/pkg/domain-errors"
	"userdir/pkg/platform/httputil"
	"userdir/pkg/requestcontext"
)

// Challenge is sent with every 401.
const Challenge = `Basic realm="userdir", Bearer realm="userdir"`

const schemeBearer = "bearer"

// TokenValidator validates bearer access tokens.
type TokenValidator interface {
	Validate(tokenString string) (*token.Claims, error)
}

// RevocationChecker reports whether a token ID has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// PrincipalResolver turns credentials or a token subject into the caller's
// current identity and role.
type PrincipalResolver interface {
	Authenticate(ctx context.Context, email, password string) (*models.Principal, error)
	ResolvePrincipal(ctx context.Context, userID id.UserID) (*models.Principal, error)
}

// Authenticator resolves the caller from the Authorization header. Basic
// credentials are checked against the user store; bearer tokens are validated,
// checked for revocation and then re-resolved so a role change or deletion
// takes effect immediately.
type Authenticator struct {
	tokens     TokenValidator
	revoked    RevocationChecker
	principals PrincipalResolver
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewAuthenticator(tokens TokenValidator, revoked RevocationChecker, principals PrincipalResolver, logger *slog.Logger, m *metrics.Metrics) *Authenticator {
	return &Authenticator{
		tokens:     tokens,
		revoked:    revoked,
		principals: principals,
		logger:     logger,
		metrics:    m,
	}
}

// RequireAuth rejects anonymous requests with 401 and stores the principal in
// the request context otherwise.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		authHeader := r.Header.Get("Authorization")

		var (
			principal *models.Principal
			err       error
		)
		if raw, ok := strings.CutPrefix(authHeader, "Bearer "); ok && a.tokens != nil {
			ctx, principal, err = a.bearer(ctx, strings.TrimSpace(raw))
		} else if email, password, ok := r.BasicAuth(); ok {
			principal, err = a.principals.Authenticate(ctx, email, password)
		} else {
			err = dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header")
		}

		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
				a.logger.WarnContext(ctx, "unauthorized access",
					"reason", err.Error(),
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("WWW-Authenticate", Challenge)
			}
			httputil.WriteError(w, err)
			return
		}

		ctx = requestcontext.WithPrincipal(ctx, principal.UserID, principal.Role.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) bearer(ctx context.Context, raw string) (context.Context, *models.Principal, error) {
	claims, err := a.tokens.Validate(raw)
	if err != nil {
		a.metrics.IncrementAuthFailure(schemeBearer)
		return ctx, nil, err
	}
	if a.revoked != nil {
		revoked, err := a.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return ctx, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check token revocation")
		}
		if revoked {
			a.metrics.IncrementAuthFailure(schemeBearer)
			return ctx, nil, dErrors.New(dErrors.CodeUnauthorized, "token has been revoked")
		}
	}
	userID, err := claims.UserID()
	if err != nil {
		a.metrics.IncrementAuthFailure(schemeBearer)
		return ctx, nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	principal, err := a.principals.ResolvePrincipal(ctx, userID)
	if err != nil {
		return ctx, nil, err
	}
	ctx = requestcontext.WithToken(ctx, claims.ID, claims.ExpiresAt.Time)
	return ctx, principal, nil
}

// RequireRole allows only principals with the given role; everyone else gets
// an empty 403. It must run after RequireAuth.
func RequireRole(role models.Role, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.Role(ctx) != role.String() {
				logger.InfoContext(ctx, "forbidden",
					"required_role", role.String(),
					"user_id", requestcontext.UserID(ctx).String(),
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext rebuilds the principal stored by RequireAuth.
func PrincipalFromContext(ctx context.Context) models.Principal {
	role, _ := models.ParseRole(requestcontext.Role(ctx))
	return models.Principal{UserID: requestcontext.UserID(ctx), Role: role}
}
