package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"userdir/internal/auth/revocation"
	"userdir/internal/auth/token"
	"userdir/internal/platform/metrics"
	"userdir/internal/user/models"
	id "userdir/pkg/domain"
	dErrors "userdir/pkg/domain-errors"
	"userdir/pkg/requestcontext"
)

type stubPrincipals struct {
	users map[id.UserID]models.Role
	creds map[string]id.UserID
}

func (s *stubPrincipals) Authenticate(_ context.Context, email, password string) (*models.Principal, error) {
	userID, ok := s.creds[email+":"+password]
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}
	return &models.Principal{UserID: userID, Role: s.users[userID]}, nil
}

func (s *stubPrincipals) ResolvePrincipal(_ context.Context, userID id.UserID) (*models.Principal, error) {
	role, ok := s.users[userID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user no longer exists")
	}
	return &models.Principal{UserID: userID, Role: role}, nil
}

// Justification: the middleware is the only gate in front of mutating routes;
// every rejection path must produce a 401 challenge or an empty 403.
type AuthMiddlewareSuite struct {
	suite.Suite
	tokens     *token.Service
	revoked    *revocation.InMemoryList
	principals *stubPrincipals
	metrics    *metrics.Metrics
	router     http.Handler
	seen       models.Principal
	seenJTI    string
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.tokens = token.NewService("test-signing-key", "userdir")
	s.revoked = revocation.NewInMemoryList()
	s.principals = &stubPrincipals{
		users: map[id.UserID]models.Role{1: models.RoleAdmin, 2: models.RoleBasic},
		creds: map[string]id.UserID{"admin@example.com:pw": 1, "jane@example.com:pw": 2},
	}
	s.metrics = metrics.New(prometheus.NewRegistry())
	auth := NewAuthenticator(s.tokens, s.revoked, s.principals, logger, s.metrics)

	s.seen = models.Principal{}
	s.seenJTI = ""
	record := func(w http.ResponseWriter, r *http.Request) {
		s.seen = PrincipalFromContext(r.Context())
		s.seenJTI = requestcontext.TokenID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}

	r := chi.NewRouter()
	r.With(auth.RequireAuth).Get("/me", record)
	r.With(auth.RequireAuth, RequireRole(models.RoleAdmin, logger)).Get("/admin", record)
	s.router = r
}

func (s *AuthMiddlewareSuite) do(path string, prepare func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if prepare != nil {
		prepare(req)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *AuthMiddlewareSuite) bearer(userID id.UserID, ttl time.Duration) (string, string) {
	issued, err := s.tokens.Issue(userID, "", ttl)
	s.Require().NoError(err)
	return "Bearer " + issued.Value, issued.JTI
}

func (s *AuthMiddlewareSuite) TestMissingCredentials() {
	rr := s.do("/me", nil)
	s.Equal(http.StatusUnauthorized, rr.Code)
	s.Equal(Challenge, rr.Header().Get("WWW-Authenticate"))
}

func (s *AuthMiddlewareSuite) TestBasicAuth() {
	s.Run("valid credentials", func() {
		rr := s.do("/me", func(r *http.Request) { r.SetBasicAuth("jane@example.com", "pw") })
		s.Equal(http.StatusNoContent, rr.Code)
		s.Equal(models.Principal{UserID: 2, Role: models.RoleBasic}, s.seen)
		s.Empty(s.seenJTI)
	})

	s.Run("wrong password", func() {
		rr := s.do("/me", func(r *http.Request) { r.SetBasicAuth("jane@example.com", "nope") })
		s.Equal(http.StatusUnauthorized, rr.Code)
		s.NotEmpty(rr.Header().Get("WWW-Authenticate"))
	})
}

func (s *AuthMiddlewareSuite) TestBearerAuth() {
	s.Run("valid token resolves the current role", func() {
		header, jti := s.bearer(2, time.Minute)
		rr := s.do("/me", func(r *http.Request) { r.Header.Set("Authorization", header) })
		s.Equal(http.StatusNoContent, rr.Code)
		s.Equal(models.RoleBasic, s.seen.Role)
		s.Equal(jti, s.seenJTI)
	})

	s.Run("garbage token", func() {
		rr := s.do("/me", func(r *http.Request) { r.Header.Set("Authorization", "Bearer not-a-jwt") })
		s.Equal(http.StatusUnauthorized, rr.Code)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.AuthFailures.WithLabelValues("bearer")))
	})

	s.Run("revoked token", func() {
		header, jti := s.bearer(2, time.Minute)
		s.Require().NoError(s.revoked.Revoke(context.Background(), jti, time.Minute))
		rr := s.do("/me", func(r *http.Request) { r.Header.Set("Authorization", header) })
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("deleted subject", func() {
		header, _ := s.bearer(99, time.Minute)
		rr := s.do("/me", func(r *http.Request) { r.Header.Set("Authorization", header) })
		s.Equal(http.StatusUnauthorized, rr.Code)
	})
}

func (s *AuthMiddlewareSuite) TestRequireRole() {
	s.Run("basic user is forbidden with empty body", func() {
		rr := s.do("/admin", func(r *http.Request) { r.SetBasicAuth("jane@example.com", "pw") })
		s.Equal(http.StatusForbidden, rr.Code)
		s.Zero(rr.Body.Len())
	})

	s.Run("administrator passes", func() {
		rr := s.do("/admin", func(r *http.Request) { r.SetBasicAuth("admin@example.com", "pw") })
		s.Equal(http.StatusNoContent, rr.Code)
	})

	s.Run("anonymous is unauthorized before forbidden", func() {
		rr := s.do("/admin", nil)
		s.Equal(http.StatusUnauthorized, rr.Code)
	})
}
