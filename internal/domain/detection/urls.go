package detection

import (
	"regexp"
	"strings"

	"github.com/rlmail/rlmail/internal/domain"
	"github.com/rlmail/rlmail/internal/domain/primitive"
)

// URLFinding is one suspicious link signal.
type URLFinding struct {
	URL          string    `json:"url"`
	DisplayText  string    `json:"display_text"`
	RiskLevel    RiskLevel `json:"risk_level"`
	Reason       string    `json:"reason"`
	EmailID      string    `json:"email_id"`
	EmailSubject string    `json:"email_subject"`
}

var (
	urlShorteners  = []string{"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly", "is.gd"}
	suspiciousTLDs = []string{".xyz", ".top", ".tk", ".ml", ".ga", ".cf", ".gq"}

	urlHost   = regexp.MustCompile(`https?://([^/]+)`)
	ipLiteral = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
)

// AnalyzeURLs extracts links from records and flags shorteners, suspicious
// TLDs, IP-literal hosts and hosts with excessive subdomains. Each signal
// past the first escalates MEDIUM to HIGH; only non-LOW findings are emitted.
func AnalyzeURLs(records []domain.EmailRecord) []URLFinding {
	findings := []URLFinding{}

	for _, r := range records {
		for _, url := range primitive.ExtractURLs(r) {
			m := urlHost.FindStringSubmatch(url)
			if m == nil {
				continue
			}
			host := strings.ToLower(m[1])

			risk := RiskLow
			var reasons []string

			escalate := func(reason string) {
				if risk == RiskLow {
					risk = RiskMedium
				} else {
					risk = RiskHigh
				}
				reasons = append(reasons, reason)
			}

			if containsAny(host, urlShorteners) {
				escalate("URL shortener detected")
			}
			for _, tld := range suspiciousTLDs {
				if strings.HasSuffix(host, tld) {
					escalate("Suspicious TLD")
					break
				}
			}
			if ipLiteral.MatchString(host) {
				escalate("IP address used instead of domain")
			}
			if strings.Count(host, ".") > 3 {
				escalate("Excessive subdomains")
			}

			if risk == RiskLow {
				continue
			}

			findings = append(findings, URLFinding{
				URL:          url,
				DisplayText:  "unknown",
				RiskLevel:    risk,
				Reason:       strings.Join(reasons, "; "),
				EmailID:      r.ID,
				EmailSubject: r.Subject,
			})
		}
	}

	return findings
}
