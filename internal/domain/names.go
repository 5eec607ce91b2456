package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// MaxNameLength bounds a display name in runes.
const MaxNameLength = 24

// NormalizeName trims a display name, folds full-width latin to narrow and composes it to NFC so
// the same name typed on different keyboards compares equal.
func NormalizeName(name string) (string, error) {
	n := norm.NFC.String(width.Fold.String(strings.TrimSpace(name)))
	if n == "" {
		return "", ErrEmptyName
	}
	if utf8.RuneCountInString(n) > MaxNameLength {
		return "", fmt.Errorf("%w: max %d characters", ErrNameTooLong, MaxNameLength)
	}
	return n, nil
}
