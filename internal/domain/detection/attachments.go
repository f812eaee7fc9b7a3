package detection

import (
	"fmt"
	"strings"

	"github.com/rlmail/rlmail/internal/domain"
)

// RiskLevel grades attachment and URL findings.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// AttachmentFinding is one risky attachment signal.
//
// Metadata-format fetches expose no attachment part details, so filename and
// mime type stay unknown and detection works off textual clues.
type AttachmentFinding struct {
	Filename     string    `json:"filename"`
	MimeType     string    `json:"mime_type"`
	RiskLevel    RiskLevel `json:"risk_level"`
	Reason       string    `json:"reason"`
	EmailID      string    `json:"email_id"`
	EmailSubject string    `json:"email_subject"`
}

// dangerousExtensions can run arbitrary code on the victim's machine
var dangerousExtensions = []string{
	".exe", ".bat", ".cmd", ".com", ".pif", ".scr", ".vbs",
	".js", ".jar", ".ps1", ".msi", ".hta", ".wsf", ".dll",
}

var (
	attachmentWords   = []string{"attachment", "attached", "file", "document"}
	financialKeywords = []string{"invoice", "payment", "receipt", "statement", "tax"}
	urgencyKeywords   = []string{"urgent", "immediate", "action required", "suspended"}
)

// AnalyzeAttachments scans records for attachment mentions and escalates
// risk when dangerous extensions, financial context or urgency language
// co-occur. Only MEDIUM and HIGH findings are emitted.
func AnalyzeAttachments(records []domain.EmailRecord) []AttachmentFinding {
	findings := []AttachmentFinding{}

	for _, r := range records {
		subject := strings.ToLower(r.Subject)
		snippet := strings.ToLower(r.Snippet)
		combined := subject + " " + snippet

		if !containsAny(combined, attachmentWords) {
			continue
		}

		risk := RiskLow
		reason := "Attachment mentioned"

		for _, ext := range dangerousExtensions {
			if strings.Contains(combined, ext) {
				risk = RiskHigh
				reason = fmt.Sprintf("Executable file type detected: %s", ext)
				break
			}
		}

		if risk == RiskLow && containsAny(combined, financialKeywords) {
			risk = RiskMedium
			reason = "Attachment in financial context"
		}

		if containsAny(combined, urgencyKeywords) {
			switch risk {
			case RiskLow:
				risk = RiskMedium
				reason = reason + " with urgency indicators"
			case RiskMedium:
				risk = RiskHigh
				reason = reason + " with urgency indicators"
			}
		}

		if risk == RiskLow {
			continue
		}

		findings = append(findings, AttachmentFinding{
			Filename:     "unknown (metadata limited)",
			MimeType:     "unknown",
			RiskLevel:    risk,
			Reason:       reason,
			EmailID:      r.ID,
			EmailSubject: subject,
		})
	}

	return findings
}
