// Package handler exposes the user directory over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"userdir/internal/platform/middleware"
	"userdir/internal/user/models"
	id "userdir/pkg/domain"
	dErrors "userdir/pkg/domain-errors"
	"userdir/pkg/platform/httputil"
	"userdir/pkg/requestcontext"
)

// Service defines the user operations the handler delegates to.
type Service interface {
	Create(ctx context.Context, candidate models.User) (*models.User, error)
	Replace(ctx context.Context, userID id.UserID, candidate models.User) (*models.User, error)
	Patch(ctx context.Context, principal models.Principal, userID id.UserID, patch models.Patch) (*models.User, error)
	Delete(ctx context.Context, userID id.UserID) error
	ListByBirthDate(ctx context.Context, from, to id.Date) ([]*models.User, error)
}

// Authenticator guards routes that need a resolved principal.
type Authenticator interface {
	RequireAuth(next http.Handler) http.Handler
}

// Handler handles the /users endpoints.
type Handler struct {
	users  Service
	auth   Authenticator
	logger *slog.Logger
}

func New(users Service, auth Authenticator, logger *slog.Logger) *Handler {
	return &Handler{
		users:  users,
		auth:   auth,
		logger: logger,
	}
}

// Register registers the user routes with the chi router. Listing and full
// replacement are open; patching needs any principal; creating and deleting
// need an administrator.
func (h *Handler) Register(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Put("/{id}", h.handleReplace)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.RequireAuth)
			r.Patch("/{id}", h.handlePatch)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin, h.logger))
				r.Post("/", h.handleCreate)
				r.Delete("/{id}", h.handleDelete)
			})
		})
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[UserRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	created, err := h.users.Create(ctx, req.toModel())
	if err != nil {
		h.writeServiceError(ctx, w, "create user", err)
		return
	}

	h.logger.InfoContext(ctx, "user created",
		"user_id", created.ID.String(),
		"request_id", requestID,
	)
	w.Header().Set("Location", "/users/"+url.PathEscape(created.ID.String()))
	httputil.WriteJSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) handleReplace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UserRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	replaced, err := h.users.Replace(ctx, userID, req.toModel())
	if err != nil {
		h.writeServiceError(ctx, w, "replace user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(replaced))
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[PatchUserRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	principal := middleware.PrincipalFromContext(ctx)
	patched, err := h.users.Patch(ctx, principal, userID, req.toModel())
	if err != nil {
		h.writeServiceError(ctx, w, "patch user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(patched))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.users.Delete(ctx, userID); err != nil {
		h.writeServiceError(ctx, w, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	from, err := dateParam(r, "from")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := dateParam(r, "to")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	users, err := h.users.ListByBirthDate(ctx, from, to)
	if err != nil {
		h.writeServiceError(ctx, w, "list users", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponses(users))
}

func dateParam(r *http.Request, name string) (id.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return id.Date{}, dErrors.New(dErrors.CodeBadRequest,
			"Required request parameter "+name+" in format yyyy-MM-dd")
	}
	return id.ParseDate(raw)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, action string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) || !hasDomainCode(err) {
		h.logger.ErrorContext(ctx, "failed to "+action,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

func hasDomainCode(err error) bool {
	_, ok := dErrors.As(err)
	return ok
}
