package validator

import (
	"errors"
	"net/mail"
	"strings"
)

// NormalizeEmail checks that email is a bare address and returns it trimmed and lowercased.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", errors.New("email is required")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", errors.New("invalid email format")
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 || !strings.Contains(parts[1], ".") {
		return "", errors.New("invalid email domain")
	}

	return strings.ToLower(email), nil
}
