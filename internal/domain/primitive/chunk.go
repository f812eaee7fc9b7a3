// Package primitive provides the pure helper functions analysis programs
// compose: chunking, filtering, indicator extraction, severity normalization
// and deduplication. Nothing here performs I/O or calls a model; every
// function returns the same output for the same input.
package primitive

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rlmail/rlmail/internal/domain"
)

var angleAddr = regexp.MustCompile(`<([^>]+)>`)

// SenderAddress extracts the email address from a "Name <addr>" From field,
// lowercased. Without angle brackets the whole trimmed field is returned.
func SenderAddress(from string) string {
	if m := angleAddr.FindStringSubmatch(from); m != nil {
		return strings.ToLower(m[1])
	}
	return strings.ToLower(strings.TrimSpace(from))
}

// SenderDomain extracts the domain part of a From field, or "unknown" when
// the address has no @.
func SenderDomain(from string) string {
	addr := SenderAddress(from)
	if i := strings.Index(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return "unknown"
}

// ChunkBySize splits records into consecutive chunks of at most size records.
// The last chunk may be shorter. A size <= 0 yields a single chunk.
func ChunkBySize(records []domain.EmailRecord, size int) [][]domain.EmailRecord {
	if len(records) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]domain.EmailRecord{records}
	}
	var chunks [][]domain.EmailRecord
	for i := 0; i < len(records); i += size {
		end := i + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[i:end])
	}
	return chunks
}

// ChunkBySender groups records by sender address.
func ChunkBySender(records []domain.EmailRecord) map[string][]domain.EmailRecord {
	groups := make(map[string][]domain.EmailRecord)
	for _, r := range records {
		from := r.From
		if from == "" {
			from = "(unknown)"
		}
		key := SenderAddress(from)
		groups[key] = append(groups[key], r)
	}
	return groups
}

// ChunkBySenderDomain groups records by the sender's domain. Records whose
// From field carries no parseable address land under "unknown".
func ChunkBySenderDomain(records []domain.EmailRecord) map[string][]domain.EmailRecord {
	groups := make(map[string][]domain.EmailRecord)
	for _, r := range records {
		from := r.From
		if from == "" {
			from = "(unknown)"
		}
		groups[SenderDomain(from)] = append(groups[SenderDomain(from)], r)
	}
	return groups
}

// ChunkByThread groups records by thread id, falling back to the record id
// and then to "unknown".
func ChunkByThread(records []domain.EmailRecord) map[string][]domain.EmailRecord {
	groups := make(map[string][]domain.EmailRecord)
	for _, r := range records {
		key := r.ThreadID
		if key == "" {
			key = r.ID
		}
		if key == "" {
			key = "unknown"
		}
		groups[key] = append(groups[key], r)
	}
	return groups
}

// dateFormats are tried in order when parsing record dates. Mail sources
// disagree on formats, so parsing is lenient and failure is a bucket, not an
// error.
var dateFormats = []string{
	time.RFC1123Z,          // "Mon, 02 Jan 2006 15:04:05 -0700"
	"2 Jan 2006 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate parses a record's textual date. Returns the zero time and false
// when no known format matches.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, f := range dateFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Period selects the bucket granularity for ChunkByDate.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ChunkByDate groups records by calendar period. Records with unparsable
// dates are collected under "unknown_date".
func ChunkByDate(records []domain.EmailRecord, period Period) map[string][]domain.EmailRecord {
	groups := make(map[string][]domain.EmailRecord)
	for _, r := range records {
		key := dateKey(r.Date, period)
		groups[key] = append(groups[key], r)
	}
	return groups
}

func dateKey(date string, period Period) string {
	t, ok := ParseDate(date)
	if !ok {
		return "unknown_date"
	}
	switch period {
	case PeriodWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case PeriodMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// UnknownTimeKey is the ChunkByTime bucket for records whose dates cannot
// be parsed.
const UnknownTimeKey = "unknown_time"

// ChunkByTime buckets records into fixed time windows for correlation.
// Window keys are the ISO timestamp of the window start; records with
// unparsable dates are collected under UnknownTimeKey.
func ChunkByTime(records []domain.EmailRecord, windowMinutes int) map[string][]domain.EmailRecord {
	if windowMinutes <= 0 {
		windowMinutes = 5
	}
	windows := make(map[string][]domain.EmailRecord)
	for _, r := range records {
		t, ok := ParseDate(r.Date)
		if !ok {
			windows[UnknownTimeKey] = append(windows[UnknownTimeKey], r)
			continue
		}
		t = t.Truncate(time.Minute)
		offset := t.Minute() % windowMinutes
		start := t.Add(-time.Duration(offset) * time.Minute)
		key := start.Format("2006-01-02T15:04:05")
		windows[key] = append(windows[key], r)
	}
	return windows
}
