package detection

import (
	"github.com/rlmail/rlmail/internal/domain"
)

// Detector runs sender detection strategies over email records
//
// The Detector coordinates multiple SenderStrategy implementations, each
// responsible for one class of suspicious sender behavior (domain squatting,
// display name spoofing, auth failures, reply-to redirection).
//
// This design follows the Strategy pattern, providing:
//   - Modularity: Each detection type is independently developed and tested
//   - Extensibility: New strategies can be added without modifying existing code
//   - Testability: Strategies can be tested in isolation
type Detector struct {
	strategies []SenderStrategy
	context    *Context
}

// NewDetector creates a detector with all standard sender strategies.
func NewDetector() *Detector {
	return &Detector{
		strategies: []SenderStrategy{
			NewTyposquattingStrategy(),
			NewDisplayNameStrategy(),
			NewAuthFailuresStrategy(),
			NewReplyToStrategy(),
			NewBECRoleStrategy(),
		},
		context: NewContext(),
	}
}

// DetectSuspiciousSenders runs every strategy over every record and returns
// findings in record order. Records without a parseable address are skipped.
func (d *Detector) DetectSuspiciousSenders(records []domain.EmailRecord) []Finding {
	findings := []Finding{}
	for _, r := range records {
		_, addr := splitFrom(r.From)
		if extractDomain(addr) == "" {
			continue
		}
		for _, strategy := range d.strategies {
			findings = append(findings, strategy.Detect(r, d.context)...)
		}
	}
	return findings
}
