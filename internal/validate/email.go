package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	maxEmailLength       = 254
	maxEmailLocalLength  = 64
	maxEmailDomainLength = 253
)

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Common domain typos mapped to the likely intended domain.
var typoDomains = map[string]string{
	"gmial.com":   "gmail.com",
	"gmai.com":    "gmail.com",
	"yahooo.com":  "yahoo.com",
	"hotmial.com": "hotmail.com",
	"outlok.com":  "outlook.com",
}

var ErrEmailRequired = errors.New("email is required")

// NormalizeEmail lowercases and trims an address without validating it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CheckEmail normalizes and validates an email address, returning the
// normalized form. Suspected domain typos are rejected with a suggestion
// instead of being accepted.
func CheckEmail(email string) (string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return "", ErrEmailRequired
	}
	if len(normalized) > maxEmailLength {
		return "", errors.New("email address is too long")
	}
	if !emailRe.MatchString(normalized) {
		return "", errors.New("invalid email format")
	}

	at := strings.LastIndex(normalized, "@")
	local, domain := normalized[:at], normalized[at+1:]

	if len(local) > maxEmailLocalLength {
		return "", errors.New("email local part is too long")
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return "", errors.New("email local part cannot start or end with a period")
	}
	if strings.Contains(local, "..") {
		return "", errors.New("email local part cannot contain consecutive periods")
	}
	if len(domain) > maxEmailDomainLength {
		return "", errors.New("email domain is too long")
	}

	if suggested, ok := typoDomains[domain]; ok {
		return "", fmt.Errorf("did you mean %s@%s?", local, suggested)
	}

	return normalized, nil
}
