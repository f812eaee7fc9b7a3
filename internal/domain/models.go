package domain

import (
	"strings"
	"time"
)

// FormatLevel describes how much of each message a mail source fetched.
type FormatLevel string

const (
	FormatMinimal  FormatLevel = "minimal"
	FormatMetadata FormatLevel = "metadata"
	FormatFull     FormatLevel = "full"
)

// EmailRecord represents one normalized email message loaded from a mail source.
//
// Records are created once at corpus load time and never mutated afterwards.
// Date keeps the original textual timestamp from the source; parsing is
// deferred to the helpers that need it, because sources disagree on formats
// and an unparsable date must not block loading.
type EmailRecord struct {
	ID       string            `json:"id"`
	ThreadID string            `json:"threadId"`
	Subject  string            `json:"subject"`
	From     string            `json:"from"`
	To       string            `json:"to"`
	Date     string            `json:"date"`
	Snippet  string            `json:"snippet"`
	Body     string            `json:"body,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// Header returns the named header, matching case-insensitively.
func (e EmailRecord) Header(name string) string {
	if e.Headers == nil {
		return ""
	}
	if v, ok := e.Headers[name]; ok {
		return v
	}
	for k, v := range e.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// CombinedText joins subject, snippet and body for keyword scanning.
func (e EmailRecord) CombinedText() string {
	return e.Subject + " " + e.Snippet + " " + e.Body
}

// CorpusMetadata describes how a corpus was obtained.
type CorpusMetadata struct {
	Query        string      `json:"query"`
	Count        int         `json:"count"`
	Format       FormatLevel `json:"format"`
	PagesFetched int         `json:"pages_fetched,omitempty"`
	SourceFile   string      `json:"source_file,omitempty"`
}

// Corpus is the ordered set of email records one analysis run works on.
// Record IDs are unique within a corpus; loaders enforce this.
type Corpus struct {
	Records  []EmailRecord
	Metadata CorpusMetadata
}

// Len returns the number of records in the corpus.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Records)
}

// Severity is the normalized alert priority used by the security workflows.
type Severity string

const (
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
	SeverityP3 Severity = "P3"
	SeverityP4 Severity = "P4"
	SeverityP5 Severity = "P5"
)

// Rank maps a severity to its sort order, P1 first. Unrecognized values rank
// as P3.
func (s Severity) Rank() int {
	switch s {
	case SeverityP1:
		return 1
	case SeverityP2:
		return 2
	case SeverityP3:
		return 3
	case SeverityP4:
		return 4
	case SeverityP5:
		return 5
	}
	return 3
}

// Severities lists all priority levels in rank order.
func Severities() []Severity {
	return []Severity{SeverityP1, SeverityP2, SeverityP3, SeverityP4, SeverityP5}
}

// FileHashes groups extracted file hashes by algorithm.
type FileHashes struct {
	MD5    []string `json:"md5"`
	SHA1   []string `json:"sha1"`
	SHA256 []string `json:"sha256"`
}

// IOCSet holds indicators of compromise extracted from a set of records.
// All slices are sorted and deduplicated.
type IOCSet struct {
	IPs            []string   `json:"ips"`
	Domains        []string   `json:"domains"`
	FileHashes     FileHashes `json:"file_hashes"`
	EmailAddresses []string   `json:"email_addresses"`
	URLs           []string   `json:"urls"`
}

// EmptyIOCSet returns an IOCSet with every collection allocated but empty, so
// JSON output renders [] rather than null.
func EmptyIOCSet() IOCSet {
	return IOCSet{
		IPs:            []string{},
		Domains:        []string{},
		FileHashes:     FileHashes{MD5: []string{}, SHA1: []string{}, SHA256: []string{}},
		EmailAddresses: []string{},
		URLs:           []string{},
	}
}

// Total returns the number of indicators across all collections.
func (s IOCSet) Total() int {
	return len(s.IPs) + len(s.Domains) + len(s.EmailAddresses) + len(s.URLs) +
		len(s.FileHashes.MD5) + len(s.FileHashes.SHA1) + len(s.FileHashes.SHA256)
}

// AuthResult is the outcome of parsing a record's authentication headers.
type AuthResult struct {
	SPF        string `json:"spf"`
	DKIM       string `json:"dkim"`
	DMARC      string `json:"dmarc"`
	Suspicious bool   `json:"suspicious"`
}

// ThreatObservation is one sighting of an IOC, persisted by the threat store.
type ThreatObservation struct {
	Timestamp time.Time         `json:"timestamp"`
	IOC       string            `json:"ioc"`
	IOCType   string            `json:"ioc_type"`
	Context   map[string]string `json:"context,omitempty"`
	Severity  string            `json:"severity,omitempty"`
}

// AttackPattern is a detected attack pattern persisted for similarity search.
type AttackPattern struct {
	PatternType     string    `json:"pattern_type"`
	Description     string    `json:"description"`
	MITRETechniques []string  `json:"mitre_techniques"`
	Severity        Severity  `json:"severity"`
	Indicators      []string  `json:"indicators,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
