// Package engine decides whether a user mutation is accepted and, when it is,
// what the resulting record looks like. It is pure: callers resolve the
// existing record and any store facts first and pass them in.
package engine

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/asaskevich/govalidator"

	"userdir/internal/user/models"
	id "userdir/pkg/domain"
	dErrors "userdir/pkg/domain-errors"
)

// EmailPattern is the accepted shape of an email address.
const EmailPattern = "^[a-zA-Z0-9_!#$%&’*+/=?`{|}~^.-]+@[a-zA-Z0-9.-]+$"

var emailRx = regexp.MustCompile(EmailPattern)

// Field names as they appear in request bodies and error responses.
const (
	FieldEmail       = "email"
	FieldPassword    = "password"
	FieldRole        = "role"
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldBirthDate   = "birth_date"
	FieldAddress     = "address"
	FieldPhoneNumber = "phone_number"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

const (
	msgBlank      = "must not be blank"
	msgMissing    = "must not be null"
	msgTooLong    = "must be at most 72 bytes"
	msgDateFormat = "must be in format yyyy-MM-dd"
)

// CutoffSource provides the current minimum-age cutoff.
type CutoffSource interface {
	Cutoff() id.Date
	MinAge() int
}

// Engine applies the validation and authorization rules.
type Engine struct {
	ages CutoffSource
}

func New(ages CutoffSource) *Engine {
	return &Engine{ages: ages}
}

// Cutoff is the latest birth date currently accepted.
func (e *Engine) Cutoff() id.Date {
	return e.ages.Cutoff()
}

// ValidateCreate checks a new user. Field checks are collected in bulk; the
// business rules that follow short-circuit:
//  1. field validation (all violations reported together)
//  2. email uniqueness (conflict)
//  3. birth date not after the cutoff
//
// The returned record never carries a client-supplied ID.
func (e *Engine) ValidateCreate(candidate models.User, emailTaken bool) (models.User, error) {
	u := normalize(candidate)
	if err := validateFields(u); err != nil {
		return models.User{}, err
	}
	if emailTaken {
		return models.User{}, dErrors.New(dErrors.CodeConflict, "user with email "+u.Email+" already exists")
	}
	if err := e.checkBirthDate(u.BirthDate); err != nil {
		return models.User{}, err
	}
	u.ID = 0
	return u, nil
}

// ValidateReplace checks a full replacement of an existing user. Email
// uniqueness is left to the store because the identity is kept. The result
// always carries the path ID and the existing role: replace is open to
// anonymous callers, so it must not grant or revoke administrator rights.
func (e *Engine) ValidateReplace(userID id.UserID, candidate models.User, existing *models.User) (models.User, error) {
	if existing == nil {
		return models.User{}, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	u := normalize(candidate)
	if err := validateFields(u); err != nil {
		return models.User{}, err
	}
	if err := e.checkBirthDate(u.BirthDate); err != nil {
		return models.User{}, err
	}
	u.ID = userID
	u.Role = existing.Role
	return u, nil
}

// ValidatePatch authorizes and applies a partial update.
// Rule priority (fail-fast):
//  1. target exists
//  2. caller owns the target or is an administrator
//  3. each supplied field, in order, is valid
//
// Birth date arrives unparsed so that a malformed value from a caller who may
// not patch the target is still answered with forbidden.
// Email, role and ID are never touched. The existing record is not modified;
// a copy with the patch applied is returned.
func (e *Engine) ValidatePatch(principal models.Principal, userID id.UserID, patch models.Patch, existing *models.User) (models.User, error) {
	if existing == nil || existing.ID != userID {
		return models.User{}, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if !principal.Owns(existing.ID) && !principal.IsAdmin() {
		return models.User{}, dErrors.New(dErrors.CodeForbidden, "only the owner or an administrator may update this user")
	}

	u := *existing
	if patch.Password != nil {
		if isBlank(*patch.Password) {
			return models.User{}, dErrors.NewFieldError(FieldPassword, msgBlank)
		}
		if len(*patch.Password) > MaxPasswordBytes {
			return models.User{}, dErrors.NewFieldError(FieldPassword, msgTooLong)
		}
		u.Password = *patch.Password
	}
	if patch.FirstName != nil {
		if isBlank(*patch.FirstName) {
			return models.User{}, dErrors.NewFieldError(FieldFirstName, msgBlank)
		}
		u.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		if isBlank(*patch.LastName) {
			return models.User{}, dErrors.NewFieldError(FieldLastName, msgBlank)
		}
		u.LastName = *patch.LastName
	}
	if patch.BirthDate != nil {
		if isBlank(*patch.BirthDate) {
			return models.User{}, dErrors.NewFieldError(FieldBirthDate, msgMissing)
		}
		birthDate, err := id.ParseDate(strings.TrimSpace(*patch.BirthDate))
		if err != nil {
			return models.User{}, dErrors.NewFieldError(FieldBirthDate, msgDateFormat)
		}
		if err := e.checkBirthDate(birthDate); err != nil {
			return models.User{}, err
		}
		u.BirthDate = birthDate
	}
	if patch.Address != nil {
		if isBlank(*patch.Address) {
			return models.User{}, dErrors.NewFieldError(FieldAddress, msgBlank)
		}
		u.Address = *patch.Address
	}
	if patch.PhoneNumber != nil {
		if isBlank(*patch.PhoneNumber) {
			return models.User{}, dErrors.NewFieldError(FieldPhoneNumber, msgBlank)
		}
		u.PhoneNumber = *patch.PhoneNumber
	}
	return u, nil
}

// ValidateRange rejects a birth-date range whose start is after its end.
// Equal bounds are a valid single-day range.
func (e *Engine) ValidateRange(from, to id.Date) error {
	if from.After(to) {
		return dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("from (%s) must not be after to (%s)", from, to))
	}
	return nil
}

// SortByBirthDate orders users by ascending birth date, ties broken by ID.
func SortByBirthDate(users []*models.User) {
	slices.SortStableFunc(users, func(a, b *models.User) int {
		if c := a.BirthDate.Compare(b.BirthDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// ValidEmail reports whether email matches the accepted pattern and is
// syntactically well formed.
func ValidEmail(email string) bool {
	return govalidator.StringLength(email, "3", "254") &&
		emailRx.MatchString(email) &&
		govalidator.IsEmail(email)
}

func (e *Engine) checkBirthDate(birthDate id.Date) error {
	if birthDate.After(e.ages.Cutoff()) {
		return dErrors.NewFieldError(FieldBirthDate, fmt.Sprintf(
			"Only users who are more than %d years are allowed to use resource. Provided birth date: %s",
			e.ages.MinAge(), birthDate))
	}
	return nil
}

func normalize(u models.User) models.User {
	u.Email = strings.TrimSpace(u.Email)
	if u.Role == "" {
		u.Role = models.RoleBasic
	}
	return u
}

func validateFields(u models.User) error {
	violations := map[string]string{}
	if !ValidEmail(u.Email) {
		violations[FieldEmail] = "Invalid email. Email should match pattern " + EmailPattern
	}
	if isBlank(u.Password) {
		violations[FieldPassword] = msgBlank
	} else if len(u.Password) > MaxPasswordBytes {
		violations[FieldPassword] = msgTooLong
	}
	if !u.Role.IsValid() {
		violations[FieldRole] = fmt.Sprintf("unknown role %q, expected %q or %q", u.Role, models.RoleBasic, models.RoleAdmin)
	}
	if isBlank(u.FirstName) {
		violations[FieldFirstName] = msgBlank
	}
	if isBlank(u.LastName) {
		violations[FieldLastName] = msgBlank
	}
	if u.BirthDate.IsZero() {
		violations[FieldBirthDate] = msgMissing
	}
	if len(violations) > 0 {
		return dErrors.NewFieldErrors(violations)
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
