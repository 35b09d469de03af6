package envfile

import (
	"regexp"
	"strings"

	derrors "git.home.luguber.info/inful/wayfind/internal/foundation/errors"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NormalizeEntry validates an operator-supplied key/value pair and returns the value
// to store. Keys are shell-style identifiers and values a single line; the API key
// is trimmed and must not be blank.
func NormalizeEntry(key, value string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", derrors.ValidationError("invalid configuration key").WithContext("key", key).Build()
	}
	if strings.ContainsAny(value, "\r\n") {
		return "", derrors.ValidationError("configuration values must be a single line").
			WithContext("key", key).Build()
	}
	if key == KeyAPIKey {
		value = strings.TrimSpace(value)
		if value == "" {
			return "", derrors.ValidationError("API key must not be empty").WithContext("key", key).Build()
		}
	}
	return value, nil
}
