package detection

import (
	"strings"

	"github.com/rlmail/rlmail/internal/domain"
)

// DisplayNameStrategy detects brand impersonation via display name spoofing
type DisplayNameStrategy struct{}

// NewDisplayNameStrategy creates a new display name spoofing detection strategy
func NewDisplayNameStrategy() *DisplayNameStrategy {
	return &DisplayNameStrategy{}
}

// Name returns the strategy name
func (s *DisplayNameStrategy) Name() string {
	return "Display Name Spoofing"
}

// Detect checks if the display name carries a corporate brand while the
// sender domain is unrelated to that brand.
func (s *DisplayNameStrategy) Detect(record domain.EmailRecord, context *Context) []Finding {
	display, addr := splitFrom(record.From)
	if display == "" {
		return nil
	}
	senderDomain := extractDomain(addr)
	if senderDomain == "" {
		return nil
	}

	displayLower := strings.ToLower(display)
	if !containsAny(displayLower, context.CorporateKeywords) {
		return nil
	}
	if containsAny(senderDomain, context.CorporateKeywords) {
		return nil
	}

	return []Finding{{
		Sender:     addr,
		Reason:     "Display name spoofing (corporate name with unrelated domain)",
		Confidence: 0.85,
		EmailID:    record.ID,
	}}
}
