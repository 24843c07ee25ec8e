package handler

import (
	"strings"

	"userdir/internal/user/models"
	id "userdir/pkg/domain"
)

// UserRequest is the body of POST /users and PUT /users/{id}. A client-supplied
// id is accepted and ignored.
type UserRequest struct {
	ID          *int64  `json:"id,omitempty"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	Role        string  `json:"role"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	BirthDate   id.Date `json:"birth_date"`
	Address     string  `json:"address"`
	PhoneNumber string  `json:"phone_number"`
}

func (r *UserRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	return nil
}

func (r *UserRequest) toModel() models.User {
	return models.User{
		Email:       r.Email,
		Password:    r.Password,
		Role:        models.Role(r.Role),
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		BirthDate:   r.BirthDate,
		Address:     r.Address,
		PhoneNumber: r.PhoneNumber,
	}
}

// PatchUserRequest is the body of PATCH /users/{id}. Absent fields are left
// unchanged. email and role are not patchable and are ignored when present.
// Field values are checked by the service once the caller is authorized, so
// birth_date stays a string here. A body that is not JSON is still a 400.
type PatchUserRequest struct {
	Password    *string  `json:"password,omitempty"`
	FirstName   *string  `json:"first_name,omitempty"`
	LastName    *string  `json:"last_name,omitempty"`
	BirthDate   *string  `json:"birth_date,omitempty"`
	Address     *string  `json:"address,omitempty"`
	PhoneNumber *string  `json:"phone_number,omitempty"`
}

func (r *PatchUserRequest) Validate() error {
	return nil
}

func (r *PatchUserRequest) toModel() models.Patch {
	return models.Patch{
		Password:    r.Password,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		BirthDate:   r.BirthDate,
		Address:     r.Address,
		PhoneNumber: r.PhoneNumber,
	}
}
