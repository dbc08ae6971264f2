package utils

import (
	"regexp"
	"strings"
)

var (
	phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{7,14}$`)
	plateRegex = regexp.MustCompile(`^[A-Za-z0-9 -]{2,16}$`)
)

func IsValidPhone(phone string) bool {
	return phoneRegex.MatchString(strings.TrimSpace(phone))
}

func IsValidPlate(plate string) bool {
	return plateRegex.MatchString(strings.TrimSpace(plate))
}

func IsValidIdempotencyKey(key string) bool {
	if key == "" {
		return true // optional; server falls back to non-idempotent create
	}
	return len(key) <= IdempotencyKeyMaxLength
}

func SanitizeString(input string) string {
	return strings.TrimSpace(input)
}
