package workflows

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rlmail/rlmail/internal/domain"
	"github.com/rlmail/rlmail/internal/domain/primitive"
	"github.com/rlmail/rlmail/internal/rlm"
)

// AttackChain is one synthesized multi-stage attack.
type AttackChain struct {
	AttackID            string               `json:"attack_id"`
	StartTime           string               `json:"start_time"`
	EndTime             string               `json:"end_time"`
	DurationMinutes     int                  `json:"duration_minutes"`
	Pattern             string               `json:"pattern"`
	MITRETechniques     []string             `json:"mitre_techniques"`
	Severity            domain.Severity      `json:"severity"`
	Confidence          float64              `json:"confidence"`
	ConfidenceReasoning string               `json:"confidence_reasoning,omitempty"`
	AffectedSystems     []string             `json:"affected_systems"`
	AlertCount          int                  `json:"alert_count"`
	Alerts              []domain.EmailRecord `json:"alerts"`
}

const chainConfidencePrompt = `Assess the confidence that this is a genuine multi-stage attack.

Consider:
- Pattern coherence (do the stages logically follow?)
- Timing (are stages occurring in realistic sequence?)
- Affected systems (single target or distributed?)
- MITRE technique validity

Respond with:
CONFIDENCE: [0-100]
REASONING: [brief explanation]`

// baseChainConfidence applies until the model refines the score.
const baseChainConfidence = 0.75

var (
	chainConfidencePat = regexp.MustCompile(`(?i)CONFIDENCE:\s*(\d+)`)
	chainReasoningPat  = regexp.MustCompile(`(?i)REASONING:\s*(.+)`)
	snippetIPPat       = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// DetectAttackChains runs the multi-pass correlation analysis: time-window
// grouping, per-window kill chain detection, filtering to chains of at least
// minAlertsPerChain alerts, and a confidence-scoring follow-up per chain.
// Chains come back sorted by severity then confidence.
func (w *Workflows) DetectAttackChains(ctx context.Context, corpus *domain.Corpus, windowMinutes, minAlertsPerChain int) ([]AttackChain, error) {
	if corpus == nil || corpus.Len() == 0 {
		return []AttackChain{}, nil
	}
	if windowMinutes <= 0 {
		windowMinutes = 5
	}
	if minAlertsPerChain <= 0 {
		minAlertsPerChain = 2
	}

	windows := primitive.ChunkByTime(corpus.Records, windowMinutes)
	windowChains, err := w.DetectKillChains(ctx, windows)
	if err != nil {
		return nil, err
	}

	detected := []KillChain{}
	for _, c := range windowChains {
		if c.ChainDetected && c.AlertCount >= minAlertsPerChain {
			detected = append(detected, c)
		}
	}
	if len(detected) == 0 {
		return []AttackChain{}, nil
	}

	day := time.Now().Format("20060102")
	chains := make([]AttackChain, 0, len(detected))

	for i, wc := range detected {
		chain := AttackChain{
			AttackID:        fmt.Sprintf("chain_%s_%03d", day, i+1),
			StartTime:       wc.Window,
			EndTime:         wc.Window,
			DurationMinutes: windowMinutes,
			Pattern:         wc.Pattern,
			MITRETechniques: wc.MITRETechniques,
			Severity:        wc.Severity,
			Confidence:      baseChainConfidence,
			AffectedSystems: affectedSystems(wc.Alerts),
			AlertCount:      wc.AlertCount,
			Alerts:          wc.Alerts,
		}

		result, err := w.rt.Invoke(ctx, chainConfidencePrompt, rlm.InvokeOptions{Context: chainContext(chain)})
		if err != nil {
			return nil, err
		}
		if !rlm.IsSentinel(result) {
			if m := chainConfidencePat.FindStringSubmatch(result); m != nil {
				var n int
				fmt.Sscanf(m[1], "%d", &n)
				chain.Confidence = float64(n) / 100.0
			}
			if m := chainReasoningPat.FindStringSubmatch(result); m != nil {
				chain.ConfidenceReasoning = strings.TrimSpace(m[1])
			}
		}

		chains = append(chains, chain)
	}

	w.persistChains(chains)

	sort.SliceStable(chains, func(i, j int) bool {
		ri, rj := chains[i].Severity.Rank(), chains[j].Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		return chains[i].Confidence > chains[j].Confidence
	})

	return chains, nil
}

// persistChains records detected chains and their IP indicators in the
// threat store so later runs can correlate against them.
func (w *Workflows) persistChains(chains []AttackChain) {
	if w.intel == nil {
		return
	}
	for _, chain := range chains {
		err := w.intel.AddPattern(domain.AttackPattern{
			PatternType:     "kill_chain",
			Description:     chain.Pattern,
			MITRETechniques: chain.MITRETechniques,
			Severity:        chain.Severity,
			Indicators:      chain.AffectedSystems,
		})
		if err != nil {
			w.log.Warn().Err(err).Str("attack_id", chain.AttackID).Msg("pattern persist failed")
		}
		for _, system := range chain.AffectedSystems {
			if !snippetIPPat.MatchString(system) {
				continue
			}
			err := w.intel.AddObservation(system, "ip", map[string]string{
				"severity": string(chain.Severity),
				"pattern":  chain.Pattern,
			})
			if err != nil {
				w.log.Warn().Err(err).Str("ioc", system).Msg("observation persist failed")
			}
		}
	}
}

// affectedSystems collects users from sender fields and IPs from snippets.
func affectedSystems(alerts []domain.EmailRecord) []string {
	seen := map[string]bool{}
	for _, a := range alerts {
		if strings.Contains(a.From, "@") {
			system := a.From
			if !strings.Contains(a.From, "<") {
				system = strings.SplitN(a.From, "@", 2)[0]
			}
			seen[system] = true
		}
		for _, ip := range snippetIPPat.FindAllString(a.Snippet, -1) {
			seen[ip] = true
		}
	}

	systems := make([]string, 0, len(seen))
	for s := range seen {
		systems = append(systems, s)
	}
	sort.Strings(systems)
	return systems
}

func chainContext(chain AttackChain) string {
	systems := chain.AffectedSystems
	if len(systems) > 5 {
		systems = systems[:5]
	}

	var samples strings.Builder
	for i, a := range chain.Alerts {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&samples, "- %s\n", a.Subject)
	}

	return fmt.Sprintf(`Attack Chain Analysis:
Pattern: %s
MITRE Techniques: %s
Alert Count: %d
Duration: %d minutes
Affected Systems: %s

Sample Alerts:
%s`,
		chain.Pattern,
		strings.Join(chain.MITRETechniques, ", "),
		chain.AlertCount,
		chain.DurationMinutes,
		strings.Join(systems, ", "),
		samples.String())
}
