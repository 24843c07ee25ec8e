// Package email holds helpers over email address strings.
package email

import (
	"strings"
	"unicode"
)

const fallbackName = "User"

// DeriveNameFromEmail guesses a first and last name from the local part of
// an address: "jane.doe@x" gives ("Jane", "Doe"), "root@x" gives
// ("Root", "User"). Used when a record must be created without a human
// supplying names.
func DeriveNameFromEmail(address string) (first, last string) {
	local, _, _ := strings.Cut(address, "@")
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return fallbackName, fallbackName
	}
	first = capitalize(parts[0])
	last = fallbackName
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}
	return first, last
}

func capitalize(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
