package idp

import (
	"strings"
	"unicode/utf8"
)

const maxParamLength = 1024

// requiredString extracts a mandatory scalar string parameter. A missing key,
// a non-string value, an empty value, or a value that fails sanitization all
// report [ErrInvalidRequest].
func requiredString(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", ErrInvalidRequest
	}
	value, ok := raw.(string)
	if !ok {
		return "", ErrInvalidRequest
	}
	if value == "" || !saneParam(value) {
		return "", ErrInvalidRequest
	}
	return value, nil
}

// optionalString extracts an optional scalar string parameter. A missing key
// or a value of the wrong type falls back to the default; a present string
// that fails sanitization still reports [ErrInvalidRequest].
func optionalString(params map[string]any, key, def string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return def, nil
	}
	value, ok := raw.(string)
	if !ok {
		return def, nil
	}
	if value == "" {
		return def, nil
	}
	if !saneParam(value) {
		return "", ErrInvalidRequest
	}
	return value, nil
}

// saneParam rejects null bytes, control characters, invalid UTF-8, and
// oversized values before they can reach storage or a delivery channel.
func saneParam(value string) bool {
	if len(value) > maxParamLength {
		return false
	}
	if !utf8.ValidString(value) {
		return false
	}
	if strings.ContainsRune(value, 0) {
		return false
	}
	for _, r := range value {
		if r < 0x20 && r != '\t' {
			return false
		}
		if r == 0x7f {
			return false
		}
	}
	return true
}
