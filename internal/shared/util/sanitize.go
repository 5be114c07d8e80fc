package util

import (
	"errors"
	"strings"
)

// ErrUnsafeName is returned for names that would escape their directory.
var ErrUnsafeName = errors.New("unsafe file name")

// SanitizeFileName keeps letters, digits, dot, dash and underscore and maps
// every other rune to '_'. Names built from server-provided ids pass through
// here before they become a path or a bucket key.
func SanitizeFileName(name string) (string, error) {
	s := strings.TrimSpace(name)
	if s == "" || strings.Contains(s, "..") {
		return "", ErrUnsafeName
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, s), nil
}
