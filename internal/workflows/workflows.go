// Package workflows composes the domain primitives, the detection strategies
// and the invocation runtime into complete analysis pipelines. Every
// workflow takes its dependencies through the Workflows struct so pipelines
// are testable against a stub endpoint.
package workflows

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rlmail/rlmail/internal/adapters/cache"
	"github.com/rlmail/rlmail/internal/adapters/threatstore"
	"github.com/rlmail/rlmail/internal/domain"
	"github.com/rlmail/rlmail/internal/domain/detection"
	"github.com/rlmail/rlmail/internal/domain/primitive"
	"github.com/rlmail/rlmail/internal/rlm"
)

// Workflows bundles the runtime, detectors and optional persistence the
// pipelines run on.
type Workflows struct {
	rt       *rlm.Runtime
	detector *detection.Detector
	patterns *cache.SecurityCache // nil disables MITRE mapping reuse
	intel    *threatstore.Store   // nil disables cross-session threat history
	log      zerolog.Logger
}

// New creates the workflow library over a runtime.
func New(rt *rlm.Runtime, log zerolog.Logger) *Workflows {
	return &Workflows{
		rt:       rt,
		detector: detection.NewDetector(),
		log:      log,
	}
}

// WithSecurityCache enables reuse of per-alert MITRE mappings across runs.
func (w *Workflows) WithSecurityCache(sc *cache.SecurityCache) *Workflows {
	w.patterns = sc
	return w
}

// WithThreatStore enables cross-session IOC history and pattern persistence.
func (w *Workflows) WithThreatStore(ts *threatstore.Store) *Workflows {
	w.intel = ts
	return w
}

// Runtime exposes the underlying invocation runtime.
func (w *Workflows) Runtime() *rlm.Runtime { return w.rt }

// keywordTechniques maps each alert to ATT&CK techniques by keyword and
// merges the results. Mappings are cached by subject when a security cache
// is attached, since the same alert text recurs across runs.
func (w *Workflows) keywordTechniques(records []domain.EmailRecord) []string {
	lists := make([][]string, 0, len(records))
	for _, r := range records {
		if w.patterns != nil {
			if cached, ok := w.patterns.GetMITREMapping(r.Subject); ok {
				lists = append(lists, cached)
				continue
			}
		}
		techniques := primitive.MapToMITRE(r)
		if w.patterns != nil {
			if err := w.patterns.CacheMITREMapping(r.Subject, techniques); err != nil {
				w.log.Warn().Err(err).Msg("mitre mapping cache write failed")
			}
		}
		lists = append(lists, techniques)
	}
	return primitive.MergeTechniques(lists...)
}

// alertContext renders a numbered block per alert for LLM consumption.
func alertContext(records []domain.EmailRecord, withDates bool) string {
	blocks := make([]string, len(records))
	for i, r := range records {
		if withDates {
			date := r.Date
			if date == "" {
				date = "unknown"
			}
			blocks[i] = fmt.Sprintf("Alert %d (%s):\nSubject: %s\nFrom: %s\nSnippet: %s",
				i+1, date, r.Subject, r.From, r.Snippet)
		} else {
			blocks[i] = fmt.Sprintf("Alert %d:\nSubject: %s\nFrom: %s\nSnippet: %s",
				i+1, r.Subject, r.From, r.Snippet)
		}
	}
	return strings.Join(blocks, "\n\n")
}
