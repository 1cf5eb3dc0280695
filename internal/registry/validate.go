package registry

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Pure predicates used by catalog validators. Each takes caller-supplied
// values, normalizes them, and answers yes or no; nothing here touches
// the database.

var identifierRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-/]{0,63}$`)

// sensitiveDirs is the denylist of operating-system paths no stored
// document may resolve under.
var sensitiveDirs = []string{
	"/etc", "/bin", "/sbin", "/usr", "/boot", "/dev", "/proc", "/sys",
	"/root", "/lib", "/var",
}

// ValidIdentifier reports whether s is an acceptable external identifier
// (serial numbers, setting keys): short, printable, no whitespace.
// Input is NFC-normalized first so visually identical strings compare
// equal.
func ValidIdentifier(s string) bool {
	return identifierRe.MatchString(norm.NFC.String(s))
}

// ValidDate reports whether s is a calendar date in ISO form YYYY-MM-DD.
func ValidDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// OneOf reports whether v is a string contained in allowed.
func OneOf(v any, allowed ...string) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = norm.NFC.String(s)
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

// NonEmptyString reports whether v is a string with non-blank content.
func NonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != ""
}

// PositiveInt reports whether v is a positive integer. JSON-decoded
// argument bags carry float64, so both int64 and float64 are accepted;
// a float with a fractional part is not.
func PositiveInt(v any) bool {
	switch n := v.(type) {
	case int:
		return n > 0
	case int64:
		return n > 0
	case float64:
		return n > 0 && n == float64(int64(n))
	default:
		return false
	}
}

// SafePath reports whether p is a safe absolute filesystem path for a
// stored document. Rejected: parent-directory and home-directory
// shorthand anywhere in the raw string, relative paths, and paths whose
// cleaned form falls under an operating-system-sensitive directory. If
// managedDir is non-empty the cleaned path must additionally resolve
// inside it.
func SafePath(p, managedDir string) bool {
	p = norm.NFC.String(p)
	if p == "" {
		return false
	}
	// Shorthand tokens are rejected before any normalization: a path
	// that needed cleaning was not written by the host application.
	if strings.Contains(p, "..") || strings.Contains(p, "~") {
		return false
	}
	if !filepath.IsAbs(p) {
		return false
	}

	clean := filepath.Clean(p)
	for _, dir := range sensitiveDirs {
		if clean == dir || strings.HasPrefix(clean, dir+string(filepath.Separator)) {
			return false
		}
	}

	if managedDir != "" {
		managed := filepath.Clean(managedDir)
		if clean != managed && !strings.HasPrefix(clean, managed+string(filepath.Separator)) {
			return false
		}
	}
	return true
}
