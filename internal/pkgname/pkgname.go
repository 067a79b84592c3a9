// Package pkgname provides PEP 503 package name normalization.
// The normalized form is the unique key for a package across the index.
package pkgname

import (
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidName indicates a raw name that cannot produce a usable index key.
type ErrInvalidName struct {
	Raw    string
	Reason string
}

func (e ErrInvalidName) Error() string {
	return fmt.Sprintf("invalid package name %q: %s", e.Raw, e.Reason)
}

func (e ErrInvalidName) Is(target error) bool {
	_, ok := target.(ErrInvalidName)
	return ok
}

// Normalize canonicalizes a raw package name according to PEP 503.
// Lowercase, runs of non-alphanumeric characters collapse to a single
// hyphen, leading and trailing separators are stripped. The result is
// the index key; normalizing an already-normalized name is a no-op.
func Normalize(raw string) (string, error) {
	var result strings.Builder
	prevWasSeparator := false

	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			result.WriteRune(r)
			prevWasSeparator = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			lower := unicode.ToLower(r)
			if lower > unicode.MaxASCII {
				return "", ErrInvalidName{Raw: raw, Reason: fmt.Sprintf("character %q is not allowed", r)}
			}
			result.WriteRune(lower)
			prevWasSeparator = false
		default:
			if !prevWasSeparator {
				result.WriteRune('-')
				prevWasSeparator = true
			}
		}
	}

	normalized := strings.Trim(result.String(), "-")
	if normalized == "" {
		return "", ErrInvalidName{Raw: raw, Reason: "normalization produced an empty name"}
	}

	return normalized, nil
}
