package network

import (
	"fmt"
	"strings"
	"unicode"
)

// KeyExpr is a validated, '/'-separated topic such as "drone/sensor".
// A chunk of "*" matches exactly one chunk, "**" matches any number.
type KeyExpr string

func NewKeyExpr(s string) (KeyExpr, error) {
	if s == "" {
		return "", fmt.Errorf("invalid key expression %q: empty", s)
	}
	if strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return "", fmt.Errorf("invalid key expression %q: leading or trailing '/'", s)
	}
	for _, chunk := range strings.Split(s, "/") {
		if chunk == "" {
			return "", fmt.Errorf("invalid key expression %q: empty chunk", s)
		}
		if strings.Contains(chunk, "*") && chunk != "*" && chunk != "**" {
			return "", fmt.Errorf("invalid key expression %q: wildcard inside chunk %q", s, chunk)
		}
		for _, r := range chunk {
			if r == '#' || r == '?' || unicode.IsSpace(r) {
				return "", fmt.Errorf("invalid key expression %q: forbidden character %q", s, r)
			}
		}
	}
	return KeyExpr(s), nil
}

// MustKeyExpr is NewKeyExpr for package-level constants; it panics on error.
func MustKeyExpr(s string) KeyExpr {
	k, err := NewKeyExpr(s)
	if err != nil {
		panic(err)
	}
	return k
}

func (k KeyExpr) String() string { return string(k) }

// IsWild reports whether k contains a wildcard chunk.
func (k KeyExpr) IsWild() bool {
	for _, chunk := range strings.Split(string(k), "/") {
		if chunk == "*" || chunk == "**" {
			return true
		}
	}
	return false
}

// Intersects reports whether some concrete key matches both a and b.
func Intersects(a, b KeyExpr) bool {
	return intersectChunks(strings.Split(string(a), "/"), strings.Split(string(b), "/"))
}

func intersectChunks(a, b []string) bool {
	switch {
	case len(a) == 0 && len(b) == 0:
		return true
	case len(a) == 0:
		return allDoubleWild(b)
	case len(b) == 0:
		return allDoubleWild(a)
	}
	if a[0] == "**" {
		// "**" swallows zero chunks of b, or one chunk and stays in place.
		return intersectChunks(a[1:], b) || intersectChunks(a, b[1:])
	}
	if b[0] == "**" {
		return intersectChunks(a, b[1:]) || intersectChunks(a[1:], b)
	}
	if a[0] != "*" && b[0] != "*" && a[0] != b[0] {
		return false
	}
	return intersectChunks(a[1:], b[1:])
}

func allDoubleWild(chunks []string) bool {
	for _, c := range chunks {
		if c != "**" {
			return false
		}
	}
	return true
}
