package workflows

import (
	"context"
	"fmt"
	"strings"

	"github.com/rlmail/rlmail/internal/domain"
	"github.com/rlmail/rlmail/internal/domain/detection"
	"github.com/rlmail/rlmail/internal/rlm"
)

// PhishingReport buckets phishing indicators by technique.
type PhishingReport struct {
	CredentialHarvesting []detection.HarvestingFinding `json:"credential_harvesting"`
	BECAttempts          []detection.Finding           `json:"bec_attempts"`
	BrandImpersonation   []detection.Finding           `json:"brand_impersonation"`
	MaliciousAttachments []detection.AttachmentFinding `json:"malicious_attachments"`
	MaliciousLinks       []detection.URLFinding        `json:"malicious_links"`
	Summary              string                        `json:"summary"`
}

const phishingSummaryPrompt = "Summarize the phishing threat landscape based on this data in 2-3 sentences."

// PhishingAnalysis categorizes phishing activity in the corpus. Suspicious
// senders whose reason mentions spoofing count as brand impersonation, the
// rest as BEC attempts. Only medium and high risk attachments are reported.
func (w *Workflows) PhishingAnalysis(ctx context.Context, corpus *domain.Corpus) (*PhishingReport, error) {
	report := &PhishingReport{
		CredentialHarvesting: []detection.HarvestingFinding{},
		BECAttempts:          []detection.Finding{},
		BrandImpersonation:   []detection.Finding{},
		MaliciousAttachments: []detection.AttachmentFinding{},
		MaliciousLinks:       []detection.URLFinding{},
	}
	if corpus == nil || corpus.Len() == 0 {
		return report, nil
	}
	records := corpus.Records

	for _, finding := range w.detector.DetectSuspiciousSenders(records) {
		if strings.Contains(strings.ToLower(finding.Reason), "spoofing") {
			report.BrandImpersonation = append(report.BrandImpersonation, finding)
		} else {
			report.BECAttempts = append(report.BECAttempts, finding)
		}
	}

	for _, att := range detection.AnalyzeAttachments(records) {
		if att.RiskLevel == detection.RiskHigh || att.RiskLevel == detection.RiskMedium {
			report.MaliciousAttachments = append(report.MaliciousAttachments, att)
		}
	}

	report.MaliciousLinks = detection.AnalyzeURLs(records)
	report.CredentialHarvesting = detection.DetectCredentialHarvesting(records)

	context := fmt.Sprintf(`Phishing Analysis Results:
- Credential Harvesting Attempts: %d
- BEC Attempts: %d
- Brand Impersonation: %d
- Malicious Attachments: %d
- Malicious Links: %d
`,
		len(report.CredentialHarvesting),
		len(report.BECAttempts),
		len(report.BrandImpersonation),
		len(report.MaliciousAttachments),
		len(report.MaliciousLinks))

	summary, err := w.rt.Invoke(ctx, phishingSummaryPrompt, rlm.InvokeOptions{Context: context})
	if err != nil {
		return nil, err
	}
	if rlm.IsSentinel(summary) {
		report.Summary = "Summary generation failed."
	} else {
		report.Summary = summary
	}

	return report, nil
}
