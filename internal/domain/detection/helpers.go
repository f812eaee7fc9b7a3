package detection

import (
	"regexp"
	"strings"
)

var angleAddr = regexp.MustCompile(`<([^>]+)>`)

// splitFrom splits a "Display Name <addr>" From field into display name and
// lowercased address. Without angle brackets the whole field is the address
// and the display name is empty.
func splitFrom(from string) (display, addr string) {
	if loc := angleAddr.FindStringSubmatchIndex(from); loc != nil {
		addr = strings.ToLower(from[loc[2]:loc[3]])
		display = strings.TrimSpace(from[:loc[0]])
		return display, addr
	}
	return "", strings.ToLower(strings.TrimSpace(from))
}

// extractDomain extracts the domain from an email address
func extractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "" // Malformed email address
	}
	return strings.ToLower(parts[1])
}

// containsAny checks if text contains any of the keywords
func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
