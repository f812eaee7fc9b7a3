package workflows

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlmail/rlmail/internal/adapters/cache"
	"github.com/rlmail/rlmail/internal/adapters/threatstore"
	"github.com/rlmail/rlmail/internal/domain"
)

func TestEnrichWithThreatIntel(t *testing.T) {
	ep := &scriptEndpoint{fn: answer(func(string) string { return "unused" })}
	w := newTestWorkflows(t, ep)

	iocs := domain.EmptyIOCSet()
	iocs.IPs = []string{"203.0.113.7"}
	iocs.Domains = []string{"mail-help.example"}
	iocs.FileHashes.MD5 = []string{"d41d8cd98f00b204e9800998ecf8427e"}
	iocs.EmailAddresses = []string{"ceo.john@gmail.com"}
	iocs.URLs = []string{"http://bit.ly/abc123"}

	report := w.EnrichWithThreatIntel(iocs)

	assert.Equal(t, "pending", report.EnrichmentStatus)
	assert.Contains(t, report.APIsAvailable, "virustotal")

	require.Len(t, report.IPs, 1)
	assert.Equal(t, "203.0.113.7", report.IPs[0].IP)
	assert.Equal(t, "unknown", report.IPs[0].Reputation)
	assert.Nil(t, report.IPs[0].FirstSeen)
	assert.Nil(t, report.IPs[0].Source)

	require.Len(t, report.FileHashes, 1)
	assert.Equal(t, "md5", report.FileHashes[0].HashType)

	require.Len(t, report.EmailAddresses, 1)
	assert.NotNil(t, report.EmailAddresses[0].AssociatedCampaigns)

	require.Len(t, report.URLs, 1)
	assert.Equal(t, "unknown", report.URLs[0].Category)
	assert.Equal(t, 0, ep.callCount())
}

func TestEnrichWithThreatIntelUsesHistory(t *testing.T) {
	ts, err := threatstore.New(t.TempDir(), time.Hour, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, ts.AddObservation("203.0.113.7", "ip", map[string]string{"severity": "P1"}))
	require.NoError(t, ts.AddObservation("203.0.113.7", "ip", map[string]string{"severity": "P2"}))

	ep := &scriptEndpoint{fn: answer(func(string) string { return "unused" })}
	w := newTestWorkflows(t, ep).WithThreatStore(ts)

	iocs := domain.EmptyIOCSet()
	iocs.IPs = []string{"203.0.113.7", "198.51.100.9"}

	report := w.EnrichWithThreatIntel(iocs)
	require.Len(t, report.IPs, 2)

	known := report.IPs[0]
	require.NotNil(t, known.Source)
	assert.Equal(t, "threat_store", *known.Source)
	require.NotNil(t, known.FirstSeen)
	require.NotNil(t, known.LastSeen)
	assert.LessOrEqual(t, *known.FirstSeen, *known.LastSeen)

	unseen := report.IPs[1]
	assert.Nil(t, unseen.Source)
	assert.Nil(t, unseen.FirstSeen)
}

func TestEnrichWithThreatIntelReusesCachedRecords(t *testing.T) {
	sc, err := cache.NewSecurityCache(t.TempDir(), time.Hour, zerolog.Nop())
	require.NoError(t, err)

	// A verdict filled in by an earlier enrichment run.
	require.NoError(t, sc.CacheIOCAnalysis("203.0.113.7", "ip",
		IPEnrichment{IP: "203.0.113.7", Reputation: "malicious"}))

	ep := &scriptEndpoint{fn: answer(func(string) string { return "unused" })}
	w := newTestWorkflows(t, ep).WithSecurityCache(sc)

	iocs := domain.EmptyIOCSet()
	iocs.IPs = []string{"203.0.113.7", "198.51.100.9"}
	iocs.Domains = []string{"mail-help.example"}

	report := w.EnrichWithThreatIntel(iocs)
	require.Len(t, report.IPs, 2)
	assert.Equal(t, "malicious", report.IPs[0].Reputation)
	assert.Equal(t, "unknown", report.IPs[1].Reputation)

	// Fresh indicators are written back for the next run.
	var ip IPEnrichment
	assert.True(t, sc.GetIOCAnalysis("198.51.100.9", "ip", &ip))
	var dom DomainEnrichment
	require.True(t, sc.GetIOCAnalysis("mail-help.example", "domain", &dom))
	assert.Equal(t, "mail-help.example", dom.Domain)
}
