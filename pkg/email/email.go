// Package email holds the email handling shared by registration and login:
// normalization for tenant-scoped uniqueness checks, and display-name
// derivation for accounts created without an explicit name.
package email

import (
	"strings"
	"unicode"

	dErrors "cradle/pkg/domain-errors"
)

// Normalize lowercases and trims an address for storage and lookup. Lookups
// and uniqueness checks always operate on the normalized form.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate applies the minimal structural check used at trust boundaries:
// non-empty, a single '@' with non-empty local part and a dotted domain.
// Full RFC validation is deliberately not attempted; the mail system is the
// authority on deliverability.
func Validate(email string) error {
	e := Normalize(email)
	if e == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "email is required")
	}
	if strings.Count(e, "@") != 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid email address")
	}
	at := strings.IndexByte(e, '@')
	if at <= 0 || at == len(e)-1 {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid email address")
	}
	domain := e[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid email address")
	}
	return nil
}

// DeriveNameFromEmail splits the local part into a (first, last) pair for
// accounts registered without a display name, e.g. "jane.doe@x.com" ->
// ("Jane", "Doe").
func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

// DeriveFullName joins the derived name pair into one display string.
func DeriveFullName(email string) string {
	first, last := DeriveNameFromEmail(email)
	if last == "User" && first != "User" {
		return first
	}
	return first + " " + last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
