package instance

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxNameLength bounds canonical instance names in bytes. Names double as
// directory components under the instances root, so they stay short.
const MaxNameLength = 64

// CanonicalName normalizes an instance name to NFC and validates it.
//
// Canonicalization guarantees that visually identical names (composed vs
// decomposed Unicode) address the same instance. Valid names consist of
// letters, digits, '-', '_' and '.', must not begin with '.', and must fit
// MaxNameLength bytes after normalization.
func CanonicalName(name string) (string, error) {
	n := norm.NFC.String(strings.TrimSpace(name))
	if n == "" {
		return "", fmt.Errorf("instance name is empty")
	}
	if len(n) > MaxNameLength {
		return "", fmt.Errorf("instance name %q exceeds %d bytes", n, MaxNameLength)
	}
	if strings.HasPrefix(n, ".") {
		return "", fmt.Errorf("instance name %q must not begin with '.'", n)
	}
	for _, r := range n {
		if !isNameRune(r) {
			return "", fmt.Errorf("instance name %q contains invalid character %q", n, r)
		}
	}
	return n, nil
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.'
}
