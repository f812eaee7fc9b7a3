package primitive

import (
	"regexp"
	"strings"

	"github.com/rlmail/rlmail/internal/domain"
)

var digitRuns = regexp.MustCompile(`\d+`)

// DefaultDedupeThreshold is the word-level similarity above which two alerts
// count as duplicates.
const DefaultDedupeThreshold = 0.9

// alertSignature normalizes an alert to a comparable signature: lowercased
// subject and the first 100 characters of the lowercased snippet, with digit
// runs masked so the same finding across many hosts or ports collapses.
func alertSignature(r domain.EmailRecord) string {
	subject := digitRuns.ReplaceAllString(strings.ToLower(r.Subject), "N")
	snippet := digitRuns.ReplaceAllString(strings.ToLower(r.Snippet), "N")
	if runes := []rune(snippet); len(runes) > 100 {
		snippet = string(runes[:100])
	}
	return subject + "|" + snippet
}

// wordSimilarity is the Jaccard similarity of the word sets of two texts.
func wordSimilarity(a, b string) float64 {
	wa := map[string]bool{}
	for _, w := range strings.Fields(a) {
		wa[w] = true
	}
	wb := map[string]bool{}
	for _, w := range strings.Fields(b) {
		wb[w] = true
	}
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// DeduplicateAlerts drops alerts whose normalized signature is at least
// threshold-similar to an already retained one, keeping first occurrences in
// input order. A threshold <= 0 uses DefaultDedupeThreshold.
func DeduplicateAlerts(records []domain.EmailRecord, threshold float64) []domain.EmailRecord {
	if len(records) == 0 {
		return nil
	}
	if threshold <= 0 {
		threshold = DefaultDedupeThreshold
	}

	var unique []domain.EmailRecord
	var seen []string
	for _, r := range records {
		sig := alertSignature(r)
		duplicate := false
		for _, s := range seen {
			if wordSimilarity(sig, s) >= threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			unique = append(unique, r)
			seen = append(seen, sig)
		}
	}
	return unique
}

// BigramSimilarity is the Jaccard similarity of the character bigram sets of
// two strings, used for lookalike domain detection.
func BigramSimilarity(a, b string) float64 {
	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}
	inter := 0
	for g := range ba {
		if bb[g] {
			inter++
		}
	}
	union := len(ba) + len(bb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func bigrams(s string) map[string]bool {
	out := map[string]bool{}
	for i := 0; i+2 <= len(s); i++ {
		out[s[i:i+2]] = true
	}
	return out
}
