package keys

import "strings"

const visiblePrefix = 4

// Mask renders a secret for logs: the first few characters followed by an
// ellipsis. Short secrets are fully hidden.
func Mask(secret string) string {
	if secret == "" {
		return "NOT SET"
	}
	if len(secret) <= visiblePrefix*2 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:visiblePrefix] + "..."
}
