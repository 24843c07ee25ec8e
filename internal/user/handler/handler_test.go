package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"userdir/internal/user/handler/mocks"
	"userdir/internal/user/models"
	id "userdir/pkg/domain"
	dErrors "userdir/pkg/domain-errors"
	"userdir/pkg/testutil"
)

// Justification: the handler owns the HTTP contract: route guards, status
// lines, Location headers and the error envelope. The service is mocked so
// each case isolates one translation.
type UserHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  http.Handler
}

func TestUserHandlerSuite(t *testing.T) {
	suite.Run(t, new(UserHandlerSuite))
}

func (s *UserHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	auth := mocks.NewMockAuthenticator(ctrl)
	auth.EXPECT().RequireAuth(gomock.Any()).DoAndReturn(testutil.PassThroughAuth).AnyTimes()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	New(s.service, auth, logger).Register(r)
	s.router = r
}

func (s *UserHandlerSuite) as(req *http.Request, userID id.UserID, role models.Role) *http.Request {
	return testutil.WithPrincipal(req, userID, role.String())
}

func (s *UserHandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, req)
}

func sampleUser(userID id.UserID) *models.User {
	return &models.User{
		ID:        userID,
		Email:     "jane.doe@example.com",
		Password:  "$2a$10$hash",
		Role:      models.RoleBasic,
		FirstName: "Jane",
		LastName:  "Doe",
		BirthDate: id.NewDate(1990, time.May, 17),
	}
}

func createBody() map[string]any {
	return map[string]any{
		"id":         42,
		"email":      " jane.doe@example.com ",
		"password":   "s3cret",
		"first_name": "Jane",
		"last_name":  "Doe",
		"birth_date": "1990-05-17",
	}
}

func (s *UserHandlerSuite) TestCreate() {
	s.Run("administrator creates and gets a Location", func() {
		s.service.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u models.User) (*models.User, error) {
			s.Zero(u.ID)
			s.Equal("jane.doe@example.com", u.Email)
			s.Equal(id.NewDate(1990, time.May, 17), u.BirthDate)
			return sampleUser(5), nil
		})

		req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPost, "/users", createBody()), 1, models.RoleAdmin)
		rr := s.do(req)

		s.Equal(http.StatusCreated, rr.Code)
		s.Equal("/users/5", rr.Header().Get("Location"))
		s.NotContains(rr.Body.String(), "password")
		s.NotContains(rr.Body.String(), "$2a$")
		resp := testutil.UnmarshalResponse[UserResponse](s.T(), rr)
		s.Equal(id.UserID(5), resp.ID)
		s.Equal("basic", resp.Role)
	})

	s.Run("basic user is forbidden", func() {
		req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPost, "/users", createBody()), 2, models.RoleBasic)
		testutil.AssertEmptyBody(s.T(), s.do(req), http.StatusForbidden)
	})

	s.Run("anonymous is unauthorized", func() {
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/users", createBody()))
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("malformed JSON", func() {
		req := s.as(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/users", "{"), 1, models.RoleAdmin)
		testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusBadRequest, "bad_request")
	})

	s.Run("malformed birth date", func() {
		body := createBody()
		body["birth_date"] = "17/05/1990"
		req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPost, "/users", body), 1, models.RoleAdmin)
		testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusBadRequest, "bad_request")
	})

	s.Run("field violations are reported together", func() {
		s.service.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, dErrors.NewFieldErrors(map[string]string{
			"email":      "Invalid email",
			"first_name": "must not be blank",
		}))

		req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPost, "/users", createBody()), 1, models.RoleAdmin)
		body := testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusBadRequest, "validation_error")
		s.Len(body.Fields, 2)
	})

	s.Run("duplicate email is a 400 conflict", func() {
		s.service.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(dErrors.CodeConflict, "taken"))

		req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPost, "/users", createBody()), 1, models.RoleAdmin)
		testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusBadRequest, "conflict")
	})

	s.Run("oversized password never reaches the service", func() {
		body := createBody()
		body["password"] = string(make([]byte, 73))
		req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPost, "/users", body), 1, models.RoleAdmin)
		testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusBadRequest, "validation_error")
	})
}

func (s *UserHandlerSuite) TestReplace() {
	s.Run("replaces without authentication and keeps the path ID", func() {
		s.service.EXPECT().Replace(gomock.Any(), id.UserID(3), gomock.Any()).Return(sampleUser(3), nil)

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPut, "/users/3", createBody()))
		s.Equal(http.StatusOK, rr.Code)
		s.Equal(id.UserID(3), testutil.UnmarshalResponse[UserResponse](s.T(), rr).ID)
	})

	s.Run("unknown user is an empty 404", func() {
		s.service.EXPECT().Replace(gomock.Any(), id.UserID(9), gomock.Any()).Return(nil, dErrors.New(dErrors.CodeNotFound, "user not found"))

		testutil.AssertEmptyBody(s.T(), s.do(testutil.NewJSONRequest(s.T(), http.MethodPut, "/users/9", createBody())), http.StatusNotFound)
	})

	s.Run("non-numeric ID is a bad request", func() {
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPut, "/users/abc", createBody()))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *UserHandlerSuite) TestPatch() {
	s.Run("passes the principal and only the supplied fields", func() {
		s.service.EXPECT().Patch(gomock.Any(), models.Principal{UserID: 4, Role: models.RoleBasic}, id.UserID(4), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ models.Principal, _ id.UserID, p models.Patch) (*models.User, error) {
				s.Require().NotNil(p.Address)
				s.Equal("1 Main St", *p.Address)
				s.Nil(p.Password)
				s.Nil(p.FirstName)
				s.Nil(p.BirthDate)
				return sampleUser(4), nil
			})

		body := map[string]any{"address": "1 Main St", "email": "new@example.com", "role": "admin"}
		req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPatch, "/users/4", body), 4, models.RoleBasic)
		rr := s.do(req)
		s.Equal(http.StatusOK, rr.Code)
		s.Equal("jane.doe@example.com", testutil.UnmarshalResponse[UserResponse](s.T(), rr).Email)
	})

	s.Run("forbidden is an empty 403", func() {
		s.service.EXPECT().Patch(gomock.Any(), gomock.Any(), id.UserID(4), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "not owner"))

		req := s.as(testutil.NewJSONRequest(s.T(), http.MethodPatch, "/users/4", map[string]any{}), 5, models.RoleBasic)
		testutil.AssertEmptyBody(s.T(), s.do(req), http.StatusForbidden)
	})

	s.Run("anonymous is unauthorized", func() {
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPatch, "/users/4", map[string]any{}))
		s.Equal(http.StatusUnauthorized, rr.Code)
	})
}

func (s *UserHandlerSuite) TestDelete() {
	s.Run("administrator deletes", func() {
		s.service.EXPECT().Delete(gomock.Any(), id.UserID(7)).Return(nil)

		req := s.as(httptest.NewRequest(http.MethodDelete, "/users/7", nil), 1, models.RoleAdmin)
		s.Equal(http.StatusOK, s.do(req).Code)
	})

	s.Run("basic user is forbidden", func() {
		req := s.as(httptest.NewRequest(http.MethodDelete, "/users/7", nil), 7, models.RoleBasic)
		testutil.AssertEmptyBody(s.T(), s.do(req), http.StatusForbidden)
	})

	s.Run("internal failure hides the cause", func() {
		s.service.EXPECT().Delete(gomock.Any(), id.UserID(7)).Return(dErrors.New(dErrors.CodeInternal, "db down"))

		req := s.as(httptest.NewRequest(http.MethodDelete, "/users/7", nil), 1, models.RoleAdmin)
		body := testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusInternalServerError, "internal_error")
		s.Empty(body.ErrorDescription)
	})
}

func (s *UserHandlerSuite) TestList() {
	s.Run("returns the service order", func() {
		from, to := id.NewDate(1980, time.January, 1), id.NewDate(2000, time.December, 31)
		older, younger := sampleUser(2), sampleUser(1)
		older.BirthDate = id.NewDate(1981, time.March, 3)
		s.service.EXPECT().ListByBirthDate(gomock.Any(), from, to).Return([]*models.User{older, younger}, nil)

		rr := s.do(httptest.NewRequest(http.MethodGet, "/users?from=1980-01-01&to=2000-12-31", nil))
		s.Equal(http.StatusOK, rr.Code)
		resp := *testutil.UnmarshalResponse[[]UserResponse](s.T(), rr)
		s.Require().Len(resp, 2)
		s.Equal(id.UserID(2), resp[0].ID)
		s.Equal(id.UserID(1), resp[1].ID)
	})

	s.Run("empty result is an empty array", func() {
		s.service.EXPECT().ListByBirthDate(gomock.Any(), gomock.Any(), gomock.Any()).Return([]*models.User{}, nil)

		rr := s.do(httptest.NewRequest(http.MethodGet, "/users?from=1980-01-01&to=1980-01-01", nil))
		s.Equal(http.StatusOK, rr.Code)
		s.JSONEq(`[]`, rr.Body.String())
	})

	s.Run("missing parameter names it", func() {
		rr := s.do(httptest.NewRequest(http.MethodGet, "/users?from=1980-01-01", nil))
		body := testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
		s.Equal("Required request parameter to in format yyyy-MM-dd", body.ErrorDescription)
	})

	s.Run("malformed parameter", func() {
		rr := s.do(httptest.NewRequest(http.MethodGet, "/users?from=1980-1-1&to=2000-01-01", nil))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("reversed range", func() {
		s.service.EXPECT().ListByBirthDate(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeBadRequest, "from must not be after to"))

		rr := s.do(httptest.NewRequest(http.MethodGet, "/users?from=2000-01-02&to=2000-01-01", nil))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}
