package workflows

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rlmail/rlmail/internal/domain"
	"github.com/rlmail/rlmail/internal/domain/detection"
	"github.com/rlmail/rlmail/internal/domain/primitive"
	"github.com/rlmail/rlmail/internal/rlm"
)

// classifyBatchSize is the number of ambiguous alerts sent per LLM
// classification call.
const classifyBatchSize = 20

// Classifications maps each severity level to its alerts. All five levels
// are always present.
type Classifications map[domain.Severity][]domain.EmailRecord

// NewClassifications returns an empty classification with every level
// allocated, so serialized output always shows all five buckets.
func NewClassifications() Classifications {
	c := make(Classifications, 5)
	for _, sev := range domain.Severities() {
		c[sev] = []domain.EmailRecord{}
	}
	return c
}

// KillChain is one analyzed time window of alerts.
type KillChain struct {
	Window          string               `json:"window"`
	ChainDetected   bool                 `json:"chain_detected"`
	Pattern         string               `json:"pattern"`
	MITRETechniques []string             `json:"mitre_techniques"`
	Severity        domain.Severity      `json:"severity"`
	AlertCount      int                  `json:"alert_count"`
	Alerts          []domain.EmailRecord `json:"alerts"`
}

// IPActivity is the correlated view of one source IP across alerts.
type IPActivity struct {
	AlertCount      int                  `json:"alert_count"`
	TimespanMinutes int                  `json:"timespan_minutes"`
	AttackType      string               `json:"attack_type"`
	Severity        domain.Severity      `json:"severity"`
	FirstSeen       *string              `json:"first_seen"`
	LastSeen        *string              `json:"last_seen"`
	Alerts          []domain.EmailRecord `json:"alerts"`
}

// TriageCounts is the headline summary of a triage run.
type TriageCounts struct {
	TotalAlerts        int `json:"total_alerts"`
	UniqueAlerts       int `json:"unique_alerts"`
	CriticalCount      int `json:"critical_count"`
	KillChainsDetected int `json:"kill_chains_detected"`
}

// TriageResult is the full output of the security triage pipeline.
type TriageResult struct {
	Summary           TriageCounts                  `json:"summary"`
	Classifications   Classifications               `json:"classifications"`
	IOCs              domain.IOCSet                 `json:"iocs"`
	KillChains        []KillChain                   `json:"kill_chains"`
	SourceIPAnalysis  map[string]IPActivity         `json:"source_ip_analysis"`
	SuspiciousSenders []detection.Finding           `json:"suspicious_senders"`
	RiskyAttachments  []detection.AttachmentFinding `json:"risky_attachments"`
	SuspiciousURLs    []detection.URLFinding        `json:"suspicious_urls"`
	ExecutiveSummary  string                        `json:"executive_summary"`
}

// TriageOptions adjusts the triage pipeline.
type TriageOptions struct {
	Deduplicate      bool
	ExecutiveSummary bool
}

// DefaultTriageOptions enables deduplication and the executive summary.
func DefaultTriageOptions() TriageOptions {
	return TriageOptions{Deduplicate: true, ExecutiveSummary: true}
}

const classifyPrompt = `Classify each security alert into priority levels:
- P1 (Critical): Immediate threat, active exploitation, data breach
- P2 (High): Significant risk, needs attention within hours
- P3 (Medium): Moderate risk, needs attention within days
- P4 (Low): Minor issue, routine monitoring
- P5 (Info): Informational, no action required

Respond with only the alert numbers and priorities, one per line:
Alert 1: P1
Alert 2: P3
etc.`

const killChainPrompt = `Analyze these security alerts for kill chain patterns.

A kill chain is a sequence of attack stages like:
- Initial Access -> Execution -> Persistence
- Reconnaissance -> Weaponization -> Delivery -> Exploitation
- Data Collection -> Exfiltration

Respond in this format:
CHAIN_DETECTED: yes/no
PATTERN: [description if detected, e.g., "Phishing -> Execution -> C2"]
SEVERITY: P1/P2/P3/P4/P5
MITRE_TECHNIQUES: [comma-separated T-IDs]`

const ipAnalysisPrompt = `Analyze this IP's activity pattern.

Identify the attack type (e.g., Brute Force, Port Scan, DDoS, Lateral Movement, etc.)
and assign a severity (P1-P5).

Respond in format:
ATTACK_TYPE: [type]
SEVERITY: P1/P2/P3/P4/P5`

const execSummaryPrompt = `Generate a concise executive summary for the CISO based on this security triage.

Include:
1. Overall threat landscape (1-2 sentences)
2. Critical items requiring immediate action (if any)
3. Key trends or patterns
4. Recommended next steps

Keep it under 200 words. Be direct and actionable.`

var (
	priorityPat      = regexp.MustCompile(`(?i)P[1-5]`)
	chainDetectedPat = regexp.MustCompile(`(?i)CHAIN_DETECTED:\s*(\w+)`)
	chainPatternPat  = regexp.MustCompile(`(?i)PATTERN:\s*(.+)`)
	severityPat      = regexp.MustCompile(`(?i)SEVERITY:\s*(P[1-5])`)
	techniquesPat    = regexp.MustCompile(`(?i)MITRE_TECHNIQUES:\s*(.+)`)
	attackTypePat    = regexp.MustCompile(`(?i)ATTACK_TYPE:\s*(.+)`)
)

// ClassifyAlerts buckets alerts into P1-P5. Alerts with an explicit severity
// field or textual signal are classified directly; the rest are batched to
// the model. A failed batch defaults to P3 rather than losing the alerts.
func (w *Workflows) ClassifyAlerts(ctx context.Context, records []domain.EmailRecord) (Classifications, error) {
	cls := NewClassifications()

	var ambiguous []domain.EmailRecord
	for _, r := range records {
		sev := primitive.ExtractSeverity(r)
		switch {
		case sev != domain.SeverityP3:
			cls[sev] = append(cls[sev], r)
		case primitive.HasExplicitP3Signal(r):
			cls[domain.SeverityP3] = append(cls[domain.SeverityP3], r)
		default:
			ambiguous = append(ambiguous, r)
		}
	}

	for start := 0; start < len(ambiguous); start += classifyBatchSize {
		end := start + classifyBatchSize
		if end > len(ambiguous) {
			end = len(ambiguous)
		}
		batch := ambiguous[start:end]

		result, err := w.rt.Invoke(ctx, classifyPrompt, rlm.InvokeOptions{Context: alertContext(batch, false)})
		if err != nil {
			return nil, err
		}
		if rlm.IsSentinel(result) {
			cls[domain.SeverityP3] = append(cls[domain.SeverityP3], batch...)
			continue
		}

		lines := strings.Split(strings.TrimSpace(result), "\n")
		for i, r := range batch {
			sev := domain.SeverityP3
			if i < len(lines) {
				if m := priorityPat.FindString(lines[i]); m != "" {
					sev = domain.Severity(strings.ToUpper(m))
				}
			}
			cls[sev] = append(cls[sev], r)
		}
	}

	return cls, nil
}

// DetectKillChains analyzes each time window of two or more alerts for
// multi-stage attack patterns. Windows with unparsable times are skipped. A
// failed analysis still records its window, marked undetected.
func (w *Workflows) DetectKillChains(ctx context.Context, windows map[string][]domain.EmailRecord) ([]KillChain, error) {
	keys := make([]string, 0, len(windows))
	for k := range windows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	chains := []KillChain{}
	for _, window := range keys {
		alerts := windows[window]
		if window == primitive.UnknownTimeKey || len(alerts) < 2 {
			continue
		}

		result, err := w.rt.Invoke(ctx, killChainPrompt, rlm.InvokeOptions{Context: alertContext(alerts, true)})
		if err != nil {
			return nil, err
		}
		if rlm.IsSentinel(result) {
			chains = append(chains, KillChain{
				Window:          window,
				ChainDetected:   false,
				Pattern:         "Analysis failed: " + result,
				MITRETechniques: []string{},
				Severity:        domain.SeverityP3,
				AlertCount:      len(alerts),
				Alerts:          alerts,
			})
			continue
		}

		chain := KillChain{
			Window:          window,
			Pattern:         "Unknown pattern",
			MITRETechniques: []string{},
			Severity:        domain.SeverityP2,
			AlertCount:      len(alerts),
			Alerts:          alerts,
		}
		if m := chainDetectedPat.FindStringSubmatch(result); m != nil {
			chain.ChainDetected = strings.Contains(strings.ToLower(m[1]), "yes")
		}
		if m := chainPatternPat.FindStringSubmatch(result); m != nil {
			chain.Pattern = strings.TrimSpace(m[1])
		}
		if m := severityPat.FindStringSubmatch(result); m != nil {
			chain.Severity = domain.Severity(strings.ToUpper(m[1]))
		}
		if m := techniquesPat.FindStringSubmatch(result); m != nil {
			chain.MITRETechniques = primitive.ParseTechniqueIDs(m[1])
		}
		chain.MITRETechniques = primitive.MergeTechniques(chain.MITRETechniques, w.keywordTechniques(alerts))
		chains = append(chains, chain)
	}

	return chains, nil
}

// CorrelateBySourceIP groups alerts by the IPs they mention and assesses
// each IP seen in two or more alerts for coordinated activity.
func (w *Workflows) CorrelateBySourceIP(ctx context.Context, records []domain.EmailRecord) (map[string]IPActivity, error) {
	iocs := primitive.ExtractIOCs(records)

	ipToAlerts := map[string][]domain.EmailRecord{}
	for _, r := range records {
		text := r.CombinedText()
		for _, ip := range iocs.IPs {
			if strings.Contains(text, ip) {
				ipToAlerts[ip] = append(ipToAlerts[ip], r)
			}
		}
	}

	ips := make([]string, 0, len(ipToAlerts))
	for ip := range ipToAlerts {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	analysis := map[string]IPActivity{}
	for _, ip := range ips {
		alerts := ipToAlerts[ip]
		if len(alerts) < 2 {
			continue
		}

		activity := IPActivity{
			AlertCount: len(alerts),
			AttackType: "Unknown",
			Severity:   domain.SeverityP3,
			Alerts:     alerts,
		}

		var first, last string
		haveDates := false
		for _, a := range alerts {
			if t, ok := primitive.ParseDate(a.Date); ok {
				iso := t.Format("2006-01-02T15:04:05")
				if !haveDates || iso < first {
					first = iso
				}
				if !haveDates || iso > last {
					last = iso
				}
				haveDates = true
			}
		}
		if haveDates {
			firstCopy, lastCopy := first, last
			activity.FirstSeen = &firstCopy
			activity.LastSeen = &lastCopy
			ft, _ := primitive.ParseDate(first)
			lt, _ := primitive.ParseDate(last)
			activity.TimespanMinutes = int(lt.Sub(ft).Minutes())
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "IP: %s\nAlert count: %d\nTimespan: %d minutes\n\n", ip, len(alerts), activity.TimespanMinutes)
		for i, a := range alerts {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&sb, "- %s\n", a.Subject)
		}

		result, err := w.rt.Invoke(ctx, ipAnalysisPrompt, rlm.InvokeOptions{Context: sb.String()})
		if err != nil {
			return nil, err
		}
		if !rlm.IsSentinel(result) {
			if m := attackTypePat.FindStringSubmatch(result); m != nil {
				activity.AttackType = strings.TrimSpace(m[1])
			}
			if m := severityPat.FindStringSubmatch(result); m != nil {
				activity.Severity = domain.Severity(strings.ToUpper(m[1]))
			}
		}

		analysis[ip] = activity
	}

	return analysis, nil
}

// SecurityTriage runs the complete alert triage pipeline: dedupe,
// classification, IOC extraction, kill chain detection, source IP
// correlation, suspicious sender detection, attachment and URL risk scoring
// and an executive summary.
func (w *Workflows) SecurityTriage(ctx context.Context, corpus *domain.Corpus, opts TriageOptions) (*TriageResult, error) {
	if corpus == nil || corpus.Len() == 0 {
		return &TriageResult{
			Classifications:   NewClassifications(),
			IOCs:              domain.EmptyIOCSet(),
			KillChains:        []KillChain{},
			SourceIPAnalysis:  map[string]IPActivity{},
			SuspiciousSenders: []detection.Finding{},
			RiskyAttachments:  []detection.AttachmentFinding{},
			SuspiciousURLs:    []detection.URLFinding{},
			ExecutiveSummary:  "No alerts to triage.",
		}, nil
	}

	records := corpus.Records
	totalAlerts := len(records)

	if opts.Deduplicate {
		records = primitive.DeduplicateAlerts(records, primitive.DefaultDedupeThreshold)
	}
	uniqueAlerts := len(records)

	classifications, err := w.ClassifyAlerts(ctx, records)
	if err != nil {
		return nil, err
	}
	criticalCount := len(classifications[domain.SeverityP1])

	iocs := primitive.ExtractIOCs(records)

	windows := primitive.ChunkByTime(records, 5)
	allChains, err := w.DetectKillChains(ctx, windows)
	if err != nil {
		return nil, err
	}
	detected := []KillChain{}
	for _, c := range allChains {
		if c.ChainDetected {
			detected = append(detected, c)
		}
	}

	ipAnalysis, err := w.CorrelateBySourceIP(ctx, records)
	if err != nil {
		return nil, err
	}

	suspicious := w.detector.DetectSuspiciousSenders(records)
	attachments := detection.AnalyzeAttachments(records)
	urls := detection.AnalyzeURLs(records)

	executive := ""
	if opts.ExecutiveSummary {
		executive, err = w.executiveSummary(ctx, triageDigest{
			totalAlerts:     totalAlerts,
			uniqueAlerts:    uniqueAlerts,
			classifications: classifications,
			detectedChains:  detected,
			ipAnalysis:      ipAnalysis,
			suspicious:      suspicious,
			attachments:     attachments,
			urls:            urls,
			iocs:            iocs,
		})
		if err != nil {
			return nil, err
		}
	}

	return &TriageResult{
		Summary: TriageCounts{
			TotalAlerts:        totalAlerts,
			UniqueAlerts:       uniqueAlerts,
			CriticalCount:      criticalCount,
			KillChainsDetected: len(detected),
		},
		Classifications:   classifications,
		IOCs:              iocs,
		KillChains:        detected,
		SourceIPAnalysis:  ipAnalysis,
		SuspiciousSenders: suspicious,
		RiskyAttachments:  attachments,
		SuspiciousURLs:    urls,
		ExecutiveSummary:  executive,
	}, nil
}

type triageDigest struct {
	totalAlerts     int
	uniqueAlerts    int
	classifications Classifications
	detectedChains  []KillChain
	ipAnalysis      map[string]IPActivity
	suspicious      []detection.Finding
	attachments     []detection.AttachmentFinding
	urls            []detection.URLFinding
	iocs            domain.IOCSet
}

// executiveSummary densifies the triage findings into a short context and
// asks for a CISO brief. A failed call yields an explanatory placeholder
// instead of an error so the triage data is still returned.
func (w *Workflows) executiveSummary(ctx context.Context, d triageDigest) (string, error) {
	var chainLines strings.Builder
	for i, c := range d.detectedChains {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&chainLines, "- %s (%s)\n", c.Pattern, c.Severity)
	}

	context := fmt.Sprintf(`Security Alert Triage Summary:
- Total Alerts Processed: %d (Unique: %d)
- Critical (P1): %d
- High (P2): %d
- Medium (P3): %d
- Low (P4): %d
- Info (P5): %d

Kill Chains Detected: %d
%s
Suspicious Activity:
- %d unique source IPs with multiple alerts
- %d suspicious sender patterns
- %d risky attachments
- %d suspicious URLs

Top IOCs:
- IPs: %d
- Domains: %d
- File Hashes: %d SHA256
`,
		d.totalAlerts, d.uniqueAlerts,
		len(d.classifications[domain.SeverityP1]),
		len(d.classifications[domain.SeverityP2]),
		len(d.classifications[domain.SeverityP3]),
		len(d.classifications[domain.SeverityP4]),
		len(d.classifications[domain.SeverityP5]),
		len(d.detectedChains), chainLines.String(),
		len(d.ipAnalysis), len(d.suspicious), len(d.attachments), len(d.urls),
		len(d.iocs.IPs), len(d.iocs.Domains), len(d.iocs.FileHashes.SHA256))

	result, err := w.rt.Invoke(ctx, execSummaryPrompt, rlm.InvokeOptions{Context: context})
	if err != nil {
		return "", err
	}
	if rlm.IsSentinel(result) {
		return "Summary generation failed: " + result, nil
	}
	return result, nil
}
