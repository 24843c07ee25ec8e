package models

import (
	"strings"

	id "userdir/pkg/domain"
	dErrors "userdir/pkg/domain-errors"
)

// Role is the closed set of authorization roles.
type Role string

const (
	RoleBasic Role = "basic"
	RoleAdmin Role = "admin"
)

// ParseRole accepts role names case-insensitively.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleBasic:
		return RoleBasic, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unknown role "+s)
	}
}

func (r Role) IsValid() bool {
	return r == RoleBasic || r == RoleAdmin
}

func (r Role) String() string { return string(r) }

// User is the stored identity record.
//
// Invariants:
//   - ID is assigned once by the store and never changes
//   - Email is unique across records
//   - BirthDate is never after the age-policy cutoff at write time
//   - Password holds a hash once persisted
type User struct {
	ID          id.UserID
	Email       string
	Password    string
	Role        Role
	FirstName   string
	LastName    string
	BirthDate   id.Date
	Address     string
	PhoneNumber string
}

// SameEntity reports identity equality. Two records with the same ID are the
// same user regardless of their other fields.
func (u *User) SameEntity(other *User) bool {
	if u == nil || other == nil {
		return false
	}
	return u.ID == other.ID
}

// Patch carries the optional fields of a partial update. Nil means "leave
// unchanged". Email and role are deliberately absent: they are not patchable.
type Patch struct {
	Password    *string
	FirstName   *string
	LastName    *string
	BirthDate   *string // yyyy-MM-dd, parsed after authorization
	Address     *string
	PhoneNumber *string
}

// Principal is the resolved identity of the caller.
type Principal struct {
	UserID id.UserID
	Role   Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Owns reports whether the principal is the user identified by target.
func (p Principal) Owns(target id.UserID) bool {
	return !p.UserID.IsZero() && p.UserID == target
}
