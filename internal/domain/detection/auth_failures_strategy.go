package detection

import (
	"fmt"

	"github.com/rlmail/rlmail/internal/domain"
	"github.com/rlmail/rlmail/internal/domain/primitive"
)

// AuthFailuresStrategy detects email authentication failures
//
// Email authentication standards (SPF, DKIM, DMARC) verify that emails are
// legitimately sent from the claimed domain. When these checks fail, it
// indicates potential spoofing.
type AuthFailuresStrategy struct{}

// NewAuthFailuresStrategy creates a new authentication failures detection strategy
func NewAuthFailuresStrategy() *AuthFailuresStrategy {
	return &AuthFailuresStrategy{}
}

// Name returns the strategy name
func (s *AuthFailuresStrategy) Name() string {
	return "Authentication Failures"
}

// Detect flags records whose Authentication-Results header reports an SPF,
// DKIM or DMARC failure.
func (s *AuthFailuresStrategy) Detect(record domain.EmailRecord, context *Context) []Finding {
	auth := primitive.ValidateAuth(record)
	if !auth.Suspicious {
		return nil
	}

	_, addr := splitFrom(record.From)
	return []Finding{{
		Sender:     addr,
		Reason:     fmt.Sprintf("Email authentication failed (SPF: %s, DKIM: %s)", auth.SPF, auth.DKIM),
		Confidence: 0.75,
		EmailID:    record.ID,
		AuthFailed: true,
	}}
}
