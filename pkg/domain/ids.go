package domain

import (
	"strconv"
	"strings"

	dErrors "userdir/pkg/domain-errors"
)

// UserID is the store-assigned identifier of a user record. Zero means
// "not yet assigned".
type UserID int64

// ParseUserID validates a user identifier received at a trust boundary
// (path segment, token subject). Identifiers are positive integers.
func ParseUserID(s string) (UserID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeBadRequest, "user id is required")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "user id must be a positive integer")
	}
	return UserID(n), nil
}

func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// IsZero reports whether the identifier has not been assigned.
func (id UserID) IsZero() bool {
	return id == 0
}
