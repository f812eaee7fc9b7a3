package detection

import (
	"fmt"

	"github.com/rlmail/rlmail/internal/domain"
	"github.com/rlmail/rlmail/internal/domain/primitive"
)

// squattingThreshold is the bigram similarity above which a sender domain
// counts as a lookalike of a common domain. Tuned to catch single-character
// swaps (goog1e.com) without flagging unrelated domains.
const squattingThreshold = 0.7

// TyposquattingStrategy detects lookalike sender domains
type TyposquattingStrategy struct{}

// NewTyposquattingStrategy creates a new domain squatting detection strategy
func NewTyposquattingStrategy() *TyposquattingStrategy {
	return &TyposquattingStrategy{}
}

// Name returns the strategy name
func (s *TyposquattingStrategy) Name() string {
	return "Domain Squatting"
}

// Detect compares the sender domain against each common domain and flags
// near-matches. An exact match is legitimate mail, not squatting.
func (s *TyposquattingStrategy) Detect(record domain.EmailRecord, context *Context) []Finding {
	_, addr := splitFrom(record.From)
	senderDomain := extractDomain(addr)
	if senderDomain == "" {
		return nil
	}

	var findings []Finding
	for _, legit := range context.CommonDomains {
		if senderDomain == legit {
			continue
		}
		if primitive.BigramSimilarity(senderDomain, legit) > squattingThreshold {
			findings = append(findings, Finding{
				Sender:     addr,
				Reason:     fmt.Sprintf("Possible domain squatting of %s", legit),
				Confidence: 0.9,
				EmailID:    record.ID,
			})
		}
	}
	return findings
}
