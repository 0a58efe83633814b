package account

import "strings"

// NormalizeUsername canonicalizes a username for storage and lookup.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail canonicalizes an e-mail address for storage and lookup.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeIdentifier canonicalizes a sign-in identifier, which is either a
// username or an e-mail address.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsEmailIdentifier reports whether a normalized identifier names an e-mail.
func IsEmailIdentifier(s string) bool {
	return strings.Contains(s, "@")
}
