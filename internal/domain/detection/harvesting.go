package detection

import (
	"strings"

	"github.com/rlmail/rlmail/internal/domain"
)

// HarvestingFinding is one credential harvesting signal.
type HarvestingFinding struct {
	EmailID string `json:"email_id"`
	Subject string `json:"subject"`
	Reason  string `json:"reason"`
}

// phrases an account-takeover lure leans on
var harvestingKeywords = []string{
	"verify account", "confirm password", "update payment", "suspended account",
}

// DetectCredentialHarvesting flags records whose subject or snippet carries
// credential harvesting lure phrases.
func DetectCredentialHarvesting(records []domain.EmailRecord) []HarvestingFinding {
	findings := []HarvestingFinding{}
	for _, r := range records {
		combined := strings.ToLower(r.Subject) + " " + strings.ToLower(r.Snippet)
		if containsAny(combined, harvestingKeywords) {
			findings = append(findings, HarvestingFinding{
				EmailID: r.ID,
				Subject: strings.ToLower(r.Subject),
				Reason:  "Credential harvesting keywords detected",
			})
		}
	}
	return findings
}
