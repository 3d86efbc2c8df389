package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ValidateUUID validates an identifier in canonical UUID form
func ValidateUUID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid uuid %q: %w", id, err)
	}
	return nil
}

// NormalizeHandle lowercases a Fanvue handle and strips a leading @
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// ValidateHandle validates a Fanvue handle, with or without leading @
func ValidateHandle(handle string) error {
	normalized := NormalizeHandle(handle)
	if normalized == "" {
		return fmt.Errorf("handle cannot be empty")
	}
	if !handlePattern.MatchString(normalized) {
		return fmt.Errorf("invalid handle %q", handle)
	}
	return nil
}

// ValidateAndNormalizeHandle validates a handle and returns its normalized form
func ValidateAndNormalizeHandle(handle string) (string, error) {
	if err := ValidateHandle(handle); err != nil {
		return "", err
	}
	return NormalizeHandle(handle), nil
}
