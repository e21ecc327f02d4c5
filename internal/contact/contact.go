// Package contact validates contact form submissions and relays them to the
// site owner by email.
package contact

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is the longest message accepted, in characters.
const MaxMessageLength = 5000

// Validation messages returned to the submitter.
const (
	MsgRequired     = "Name, email, and message are required"
	MsgInvalidEmail = "Please enter a valid email address"
	MsgTooLong      = "Message must be 5000 characters or fewer"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidationError is a submission problem the submitter can fix.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Form is a contact form submission.
type Form struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Validate checks the form. Whitespace-only fields count as missing.
func (f Form) Validate() error {
	if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.Email) == "" || strings.TrimSpace(f.Message) == "" {
		return &ValidationError{Message: MsgRequired}
	}
	if !emailPattern.MatchString(f.Email) {
		return &ValidationError{Message: MsgInvalidEmail}
	}
	if utf8.RuneCountInString(f.Message) > MaxMessageLength {
		return &ValidationError{Message: MsgTooLong}
	}
	return nil
}

// MaskUser shows the first three characters of an account name.
func MaskUser(user string) string {
	r := []rune(user)
	if len(r) > 3 {
		r = r[:3]
	}
	return string(r) + "..."
}
