package session

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lenscart/lenscart/internal/errs"
	"github.com/lenscart/lenscart/internal/model"
)

var reEmail = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// validateRegistration checks input against the registration schema
// before any network call, failing fast on the first violated field.
func validateRegistration(name, email, password string, role model.Role) error {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 64 {
		return &errs.ValidationError{Field: "name", Reason: "must be between 2 and 64 characters"}
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	if role != "" && !role.Valid() {
		return &errs.ValidationError{Field: "role", Reason: "unknown role"}
	}
	return nil
}

func validateEmail(email string) error {
	if !reEmail.MatchString(email) {
		return &errs.ValidationError{Field: "email", Reason: "must be a valid email address"}
	}
	return nil
}

// validatePassword enforces the password policy: at least 8 characters
// with at least one letter and one digit.
func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < 8 {
		return &errs.ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return &errs.ValidationError{Field: "password", Reason: "must contain a letter and a digit"}
	}
	return nil
}
