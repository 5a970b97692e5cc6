package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	controlChars    = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._@\-]{3,64}$`)
)

// ValidateUsername accepts 3 to 64 letters, digits or . _ @ -
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("invalid username %q: use 3-64 letters, digits or . _ @ -", username)
	}
	return nil
}

// ValidatePassword enforces a minimum length counted in characters
func ValidatePassword(password string, minLength int) error {
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password must not be blank")
	}
	if utf8.RuneCountInString(password) < minLength {
		return fmt.Errorf("password must have at least %d characters", minLength)
	}
	return nil
}

// SanitizeString removes control characters
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}
