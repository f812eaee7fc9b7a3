package primitive

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rlmail/rlmail/internal/domain"
)

// Filter keeps the records for which keep returns true. The input slice is
// never modified.
func Filter(records []domain.EmailRecord, keep func(domain.EmailRecord) bool) []domain.EmailRecord {
	var out []domain.EmailRecord
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// FilterByKeyword keeps records containing the keyword, case-insensitively,
// in any of the given fields. With no fields it searches subject, snippet and
// body.
func FilterByKeyword(records []domain.EmailRecord, keyword string, fields ...string) []domain.EmailRecord {
	if len(fields) == 0 {
		fields = []string{"subject", "snippet", "body"}
	}
	kw := strings.ToLower(keyword)
	return Filter(records, func(r domain.EmailRecord) bool {
		for _, f := range fields {
			if strings.Contains(strings.ToLower(fieldValue(r, f)), kw) {
				return true
			}
		}
		return false
	})
}

func fieldValue(r domain.EmailRecord, field string) string {
	switch strings.ToLower(field) {
	case "subject":
		return r.Subject
	case "snippet":
		return r.Snippet
	case "body":
		return r.Body
	case "from":
		return r.From
	case "to":
		return r.To
	case "date":
		return r.Date
	}
	return ""
}

// FilterBySender keeps records whose From field contains the pattern,
// case-insensitively.
func FilterBySender(records []domain.EmailRecord, pattern string) []domain.EmailRecord {
	p := strings.ToLower(pattern)
	return Filter(records, func(r domain.EmailRecord) bool {
		return strings.Contains(strings.ToLower(r.From), p)
	})
}

// Sort returns a copy of records ordered by the given field. Dates are
// parsed when possible so chronological order wins over lexical order;
// unparsable dates sort by their raw text. Descending by default mirrors
// newest-first inbox order.
func Sort(records []domain.EmailRecord, by string, descending bool) []domain.EmailRecord {
	out := make([]domain.EmailRecord, len(records))
	copy(out, records)
	less := func(a, b domain.EmailRecord) bool {
		if strings.EqualFold(by, "date") {
			ta, oka := ParseDate(a.Date)
			tb, okb := ParseDate(b.Date)
			switch {
			case oka && okb:
				return ta.Before(tb)
			case oka != okb:
				return !oka
			}
			return a.Date < b.Date
		}
		return strings.ToLower(fieldValue(a, by)) < strings.ToLower(fieldValue(b, by))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if descending {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

// Deduplicate removes records that repeat an already-seen id, keeping the
// first occurrence. Records without an id are always kept.
func Deduplicate(records []domain.EmailRecord) []domain.EmailRecord {
	seen := make(map[string]bool, len(records))
	var out []domain.EmailRecord
	for _, r := range records {
		if r.ID == "" {
			out = append(out, r)
			continue
		}
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

// SenderCount is one entry of a TopSenders tally.
type SenderCount struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}

// TopSenders tallies records per sender address and returns the n busiest,
// most frequent first. Ties break alphabetically so output is deterministic.
func TopSenders(records []domain.EmailRecord, n int) []SenderCount {
	bySender := ChunkBySender(records)
	counts := make([]SenderCount, 0, len(bySender))
	for sender, msgs := range bySender {
		counts = append(counts, SenderCount{Sender: sender, Count: len(msgs)})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Sender < counts[j].Sender
	})
	if n > 0 && len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// ExtractRecordSummary renders one record as compact text for model context.
func ExtractRecordSummary(r domain.EmailRecord) string {
	var parts []string
	if r.From != "" {
		parts = append(parts, "From: "+r.From)
	}
	if r.Subject != "" {
		parts = append(parts, "Subject: "+r.Subject)
	}
	if r.Date != "" {
		parts = append(parts, "Date: "+r.Date)
	}
	if r.Snippet != "" {
		parts = append(parts, "Preview: "+r.Snippet)
	}
	return strings.Join(parts, "\n")
}

// BatchSummaries renders numbered record summaries under a character budget.
// When the budget runs out a trailing "... and N more emails" marker replaces
// the remainder.
func BatchSummaries(records []domain.EmailRecord, maxChars int) string {
	if maxChars <= 0 {
		maxChars = 4000
	}
	var summaries []string
	total := 0
	for i, r := range records {
		s := fmt.Sprintf("[%d] %s", i+1, ExtractRecordSummary(r))
		if total+len(s)+2 > maxChars {
			summaries = append(summaries, fmt.Sprintf("... and %d more emails", len(records)-i))
			break
		}
		summaries = append(summaries, s)
		total += len(s) + 2
	}
	return strings.Join(summaries, "\n\n")
}

// AggregateResults joins non-empty sub-query results with a separator,
// preserving input order.
func AggregateResults(results []string, separator string) string {
	if separator == "" {
		separator = "\n\n---\n\n"
	}
	var kept []string
	for _, r := range results {
		if s := strings.TrimSpace(r); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, separator)
}
