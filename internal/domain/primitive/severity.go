package primitive

import (
	"strings"

	"github.com/rlmail/rlmail/internal/domain"
)

// severityFields lists the field-as-header names different security tools
// use to carry severity. Alert mails from these tools often copy the field
// into a header of the same name.
var severityFields = []string{
	"severity",       // crowdstrike, microsoft defender
	"urgency",        // splunk
	"alertSeverity",  // azure sentinel
	"threat_severity", // palo alto
	"event.severity", // elastic
	"priority",       // cisco secure
	"level",          // fortinet
}

// severityValues normalizes tool-specific severity values to priorities.
var severityValues = map[string]domain.Severity{
	"critical":      domain.SeverityP1,
	"very high":     domain.SeverityP1,
	"5":             domain.SeverityP1,
	"high":          domain.SeverityP2,
	"4":             domain.SeverityP2,
	"medium":        domain.SeverityP3,
	"moderate":      domain.SeverityP3,
	"3":             domain.SeverityP3,
	"low":           domain.SeverityP4,
	"2":             domain.SeverityP4,
	"info":          domain.SeverityP5,
	"informational": domain.SeverityP5,
	"1":             domain.SeverityP5,
	"0":             domain.SeverityP5,
}

// textual fallback signals checked in priority order
var severitySignals = []struct {
	severity domain.Severity
	words    []string
}{
	{domain.SeverityP1, []string{"critical", "p1", "sev-1", "emergency"}},
	{domain.SeverityP2, []string{"high", "p2", "sev-2", "urgent"}},
	{domain.SeverityP3, []string{"medium", "p3", "sev-3"}},
	{domain.SeverityP4, []string{"low", "p4", "sev-4"}},
	{domain.SeverityP5, []string{"info", "p5", "sev-5", "informational"}},
}

// ExtractSeverity normalizes an alert's severity to P1..P5. It checks
// tool-specific header fields first, then falls back to textual signals in
// subject, snippet and body. Undeterminable alerts default to P3.
func ExtractSeverity(r domain.EmailRecord) domain.Severity {
	for _, field := range severityFields {
		v := strings.ToLower(strings.TrimSpace(r.Header(field)))
		if v == "" {
			continue
		}
		if sev, ok := severityValues[v]; ok {
			return sev
		}
	}

	combined := strings.ToLower(r.CombinedText())
	for _, sig := range severitySignals {
		for _, w := range sig.words {
			if strings.Contains(combined, w) {
				return sig.severity
			}
		}
	}

	return domain.SeverityP3
}

// HasExplicitP3Signal reports whether a record textually carries a medium
// signal, distinguishing a real P3 from the uncertain default.
func HasExplicitP3Signal(r domain.EmailRecord) bool {
	t := strings.ToLower(r.Subject + " " + r.Snippet)
	return strings.Contains(t, "p3") || strings.Contains(t, "medium")
}
