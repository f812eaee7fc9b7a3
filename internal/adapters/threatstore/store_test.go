package threatstore

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlmail/rlmail/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), 30*24*time.Hour, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestAddObservationAndHistory(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddObservation("203.0.113.66", "ip", map[string]string{"severity": "P1"}))
	require.NoError(t, s.AddObservation("203.0.113.66", "ip", nil))

	history := s.GetHistory("203.0.113.66", "ip")
	require.Len(t, history, 2)
	assert.Equal(t, "P1", history[0].Severity)
	assert.Equal(t, "unknown", history[1].Severity)

	assert.Empty(t, s.GetHistory("198.51.100.1", "ip"))
}

func TestGetHistoryAnyType(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddObservation("evil.example.com", "domain", nil))

	history := s.GetHistory("evil.example.com", "")
	assert.Len(t, history, 1)
}

func TestSearchSimilar(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddPattern(domain.AttackPattern{
		PatternType:     "kill_chain",
		Description:     "Phishing -> Execution -> C2",
		MITRETechniques: []string{"T1566", "T1059", "T1071"},
		Severity:        domain.SeverityP1,
	}))
	require.NoError(t, s.AddPattern(domain.AttackPattern{
		PatternType:     "brute_force",
		Description:     "Password spray",
		MITRETechniques: []string{"T1110"},
		Severity:        domain.SeverityP2,
	}))

	query := domain.AttackPattern{
		PatternType:     "kill_chain",
		MITRETechniques: []string{"T1566", "T1059"},
	}

	similar := s.SearchSimilar(query, 0.5)
	require.Len(t, similar, 1)
	// 2/3 technique overlap plus the 0.2 same-type bonus.
	assert.InDelta(t, 0.867, similar[0].SimilarityScore, 0.001)
	assert.Equal(t, "Phishing -> Execution -> C2", similar[0].Description)

	assert.Empty(t, s.SearchSimilar(domain.AttackPattern{
		PatternType:     "other",
		MITRETechniques: []string{"T9999"},
	}, 0.5))
}

func TestSearchSimilarCapsAtOne(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddPattern(domain.AttackPattern{
		PatternType:     "kill_chain",
		MITRETechniques: []string{"T1566"},
	}))

	similar := s.SearchSimilar(domain.AttackPattern{
		PatternType:     "kill_chain",
		MITRETechniques: []string{"T1566"},
	}, 0.9)
	require.Len(t, similar, 1)
	assert.Equal(t, 1.0, similar[0].SimilarityScore)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddObservation("1.2.3.4", "ip", nil))
	require.NoError(t, s.AddObservation("1.2.3.4", "ip", nil))
	require.NoError(t, s.AddObservation("evil.com", "domain", nil))
	require.NoError(t, s.AddPattern(domain.AttackPattern{PatternType: "kill_chain"}))

	stats := s.Stats()
	assert.Equal(t, 2, stats.UniqueIOCs)
	assert.Equal(t, 3, stats.TotalObservations)
	assert.Equal(t, 1, stats.AttackPatterns)
	assert.Equal(t, 30, stats.RetentionDays)
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddObservation("1.2.3.4", "ip", nil))
	require.NoError(t, s.AddPattern(domain.AttackPattern{PatternType: "x"}))

	assert.Equal(t, 2, s.Clear())
	assert.Empty(t, s.GetHistory("1.2.3.4", "ip"))
}
