// Package validate holds structural input validation for account fields and
// uploaded filenames. Checks are format plausibility only; uniqueness and
// existence are the caller's problem.
package validate

import "regexp"

var (
	emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

	upperRe   = regexp.MustCompile(`[A-Z]`)
	lowerRe   = regexp.MustCompile(`[a-z]`)
	digitRe   = regexp.MustCompile(`[0-9]`)
	specialRe = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)

	unsafeFilenameRe = regexp.MustCompile(`[^A-Za-z0-9.-]`)
	dotRunRe         = regexp.MustCompile(`\.{2,}`)
)

// Email reports whether s looks like a plausible email address.
func Email(s string) bool {
	return emailRe.MatchString(s)
}

// PasswordStrength requires at least 8 characters with uppercase, lowercase,
// digit, and a special character each present.
func PasswordStrength(s string) bool {
	if len(s) < 8 {
		return false
	}
	return upperRe.MatchString(s) &&
		lowerRe.MatchString(s) &&
		digitRe.MatchString(s) &&
		specialRe.MatchString(s)
}

// SanitizeFilename makes an upload name safe for storage: every character
// outside [A-Za-z0-9.-] becomes an underscore, runs of consecutive periods
// collapse to a single period so no ".." traversal sequence survives, and the
// result is truncated to 255 characters.
func SanitizeFilename(s string) string {
	out := unsafeFilenameRe.ReplaceAllString(s, "_")
	out = dotRunRe.ReplaceAllString(out, ".")
	if len(out) > 255 {
		out = out[:255]
	}
	return out
}
