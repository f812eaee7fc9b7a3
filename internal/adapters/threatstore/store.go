// Package threatstore persists observed IOCs and attack patterns across
// sessions, enabling recurring-threat detection and pattern similarity
// search. Data lives as JSON files under one directory with a rolling
// retention window pruned on every write.
package threatstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rlmail/rlmail/internal/domain"
)

// DefaultRetention is how long observations and patterns are kept.
const DefaultRetention = 30 * 24 * time.Hour

const patternsFile = "attack_patterns.json"

// iocRecord is the on-disk shape of one IOC's observation history.
type iocRecord struct {
	IOC              string                     `json:"ioc"`
	IOCType          string                     `json:"ioc_type"`
	Observations     []domain.ThreatObservation `json:"observations"`
	FirstSeen        *time.Time                 `json:"first_seen"`
	LastSeen         *time.Time                 `json:"last_seen"`
	ObservationCount int                        `json:"observation_count"`
}

// ScoredPattern is a historical pattern annotated with its similarity to a
// query pattern.
type ScoredPattern struct {
	domain.AttackPattern
	SimilarityScore float64 `json:"similarity_score"`
}

// Stats summarizes the store contents.
type Stats struct {
	UniqueIOCs        int `json:"unique_iocs"`
	TotalObservations int `json:"total_observations"`
	AttackPatterns    int `json:"attack_patterns"`
	RetentionDays     int `json:"retention_days"`
}

// Store is a file-backed threat pattern store. A single mutex serializes
// read-modify-write cycles on the underlying files.
type Store struct {
	dir       string
	retention time.Duration
	log       zerolog.Logger

	mu sync.Mutex
}

// New creates a store rooted at dir, creating it if missing. A retention
// of <= 0 uses DefaultRetention.
func New(dir string, retention time.Duration, log zerolog.Logger) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "threat_store")
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, retention: retention, log: log}, nil
}

func (s *Store) iocPath(ioc, iocType string) string {
	sum := sha256.Sum256([]byte(iocType + ":" + ioc))
	return filepath.Join(s.dir, "ioc_"+hex.EncodeToString(sum[:])[:16]+".json")
}

// AddObservation records one sighting of an IOC, pruning observations older
// than the retention window.
func (s *Store) AddObservation(ioc, iocType string, context map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.iocPath(ioc, iocType)

	var rec iocRecord
	if data, err := os.ReadFile(path); err == nil {
		if json.Unmarshal(data, &rec) != nil {
			rec = iocRecord{}
		}
	}

	severity := context["severity"]
	if severity == "" {
		severity = "unknown"
	}
	rec.Observations = append(rec.Observations, domain.ThreatObservation{
		Timestamp: time.Now(),
		IOC:       ioc,
		IOCType:   iocType,
		Context:   context,
		Severity:  severity,
	})

	cutoff := time.Now().Add(-s.retention)
	kept := rec.Observations[:0]
	for _, obs := range rec.Observations {
		if obs.Timestamp.After(cutoff) {
			kept = append(kept, obs)
		}
	}
	rec.Observations = kept

	rec.IOC = ioc
	rec.IOCType = iocType
	rec.ObservationCount = len(rec.Observations)
	rec.FirstSeen, rec.LastSeen = nil, nil
	if len(rec.Observations) > 0 {
		first := rec.Observations[0].Timestamp
		last := rec.Observations[len(rec.Observations)-1].Timestamp
		rec.FirstSeen, rec.LastSeen = &first, &last
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// GetHistory returns all recorded observations of an IOC. With an empty
// iocType the common types are all checked.
func (s *Store) GetHistory(ioc, iocType string) []domain.ThreatObservation {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := []string{iocType}
	if iocType == "" {
		types = []string{"ip", "domain", "hash", "email", "url"}
	}

	var all []domain.ThreatObservation
	for _, t := range types {
		data, err := os.ReadFile(s.iocPath(ioc, t))
		if err != nil {
			continue
		}
		var rec iocRecord
		if json.Unmarshal(data, &rec) != nil {
			continue
		}
		all = append(all, rec.Observations...)
	}
	return all
}

// AddPattern appends a detected attack pattern to the patterns log, pruning
// entries past retention.
func (s *Store) AddPattern(pattern domain.AttackPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pattern.Timestamp = time.Now()

	patterns := s.loadPatterns()
	patterns = append(patterns, pattern)

	cutoff := time.Now().Add(-s.retention)
	kept := patterns[:0]
	for _, p := range patterns {
		if p.Timestamp.After(cutoff) {
			kept = append(kept, p)
		}
	}

	data, err := json.MarshalIndent(kept, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, patternsFile), data, 0o644)
}

// SearchSimilar finds historical patterns whose MITRE technique overlap
// (Jaccard) with the query meets minSimilarity. Matching pattern types get
// a 0.2 bonus, capped at 1.0. Results are sorted most similar first.
func (s *Store) SearchSimilar(pattern domain.AttackPattern, minSimilarity float64) []ScoredPattern {
	s.mu.Lock()
	historical := s.loadPatterns()
	s.mu.Unlock()

	current := toSet(pattern.MITRETechniques)

	var similar []ScoredPattern
	for _, hist := range historical {
		histSet := toSet(hist.MITRETechniques)

		similarity := 0.0
		if len(current) > 0 && len(histSet) > 0 {
			inter := 0
			for t := range current {
				if histSet[t] {
					inter++
				}
			}
			union := len(current) + len(histSet) - inter
			if union > 0 {
				similarity = float64(inter) / float64(union)
			}
		}

		if hist.PatternType == pattern.PatternType {
			similarity = math.Min(1.0, similarity+0.2)
		}

		if similarity >= minSimilarity {
			similar = append(similar, ScoredPattern{
				AttackPattern:   hist,
				SimilarityScore: math.Round(similarity*1000) / 1000,
			})
		}
	}

	sort.SliceStable(similar, func(i, j int) bool {
		return similar[i].SimilarityScore > similar[j].SimilarityScore
	})
	return similar
}

// Stats summarizes the store contents.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, _ := filepath.Glob(filepath.Join(s.dir, "ioc_*.json"))
	total := 0
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		var rec iocRecord
		if json.Unmarshal(data, &rec) == nil {
			total += rec.ObservationCount
		}
	}

	return Stats{
		UniqueIOCs:        len(files),
		TotalObservations: total,
		AttackPatterns:    len(s.loadPatterns()),
		RetentionDays:     int(s.retention.Hours() / 24),
	}
}

// Clear removes all stored threat data and returns the number of files
// removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, _ := filepath.Glob(filepath.Join(s.dir, "*.json"))
	count := 0
	for _, f := range files {
		if os.Remove(f) == nil {
			count++
		}
	}
	return count
}

func (s *Store) loadPatterns() []domain.AttackPattern {
	data, err := os.ReadFile(filepath.Join(s.dir, patternsFile))
	if err != nil {
		return nil
	}
	var patterns []domain.AttackPattern
	if json.Unmarshal(data, &patterns) != nil {
		return nil
	}
	return patterns
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}
