package detection

import (
	"fmt"
	"strings"

	"github.com/rlmail/rlmail/internal/domain"
)

// BECRoleStrategy detects executive impersonation attempts
//
// Classic CEO fraud: a display name claiming an executive title while the
// actual sender address sits at a consumer mail provider.
type BECRoleStrategy struct{}

// NewBECRoleStrategy creates a new executive impersonation detection strategy
func NewBECRoleStrategy() *BECRoleStrategy {
	return &BECRoleStrategy{}
}

// Name returns the strategy name
func (s *BECRoleStrategy) Name() string {
	return "Executive Impersonation"
}

// Detect flags exec-title display names sent from freemail domains.
func (s *BECRoleStrategy) Detect(record domain.EmailRecord, context *Context) []Finding {
	display, addr := splitFrom(record.From)
	if display == "" {
		return nil
	}

	execTitles := []string{"ceo", "cfo", "cto", "coo", "president", "chief", "vice president", "vp", "director"}
	if !containsAny(strings.ToLower(display), execTitles) {
		return nil
	}

	senderDomain := extractDomain(addr)
	for _, free := range context.FreemailDomains {
		if senderDomain == free {
			return []Finding{{
				Sender:     addr,
				Reason:     fmt.Sprintf("Executive title '%s' with free email service sender", display),
				Confidence: 0.8,
				EmailID:    record.ID,
			}}
		}
	}
	return nil
}
