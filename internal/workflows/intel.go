package workflows

import (
	"time"

	"github.com/rlmail/rlmail/internal/domain"
)

// IPEnrichment is one IP structured for threat intel lookup.
type IPEnrichment struct {
	IP         string  `json:"ip"`
	Reputation string  `json:"reputation"`
	Source     *string `json:"source"`
	FirstSeen  *string `json:"first_seen"`
	LastSeen   *string `json:"last_seen"`
	ThreatType *string `json:"threat_type"`
	ASN        *string `json:"asn"`
	Country    *string `json:"country"`
}

// DomainEnrichment is one domain structured for threat intel lookup.
type DomainEnrichment struct {
	Domain       string  `json:"domain"`
	Category     string  `json:"category"`
	Reputation   string  `json:"reputation"`
	Source       *string `json:"source"`
	Registrar    *string `json:"registrar"`
	CreationDate *string `json:"creation_date"`
}

// HashEnrichment is one file hash structured for threat intel lookup.
type HashEnrichment struct {
	Hash           string  `json:"hash"`
	HashType       string  `json:"hash_type"`
	MalwareFamily  *string `json:"malware_family"`
	DetectionCount *int    `json:"detection_count"`
	Source         *string `json:"source"`
}

// EmailEnrichment is one sender address structured for threat intel lookup.
type EmailEnrichment struct {
	Email               string   `json:"email"`
	Reputation          string   `json:"reputation"`
	AssociatedCampaigns []string `json:"associated_campaigns"`
}

// URLEnrichment is one URL structured for threat intel lookup.
type URLEnrichment struct {
	URL                 string `json:"url"`
	Category            string `json:"category"`
	Reputation          string `json:"reputation"`
	ScreenshotAvailable bool   `json:"screenshot_available"`
}

// EnrichmentReport is an IOC set restructured into per-indicator records
// ready for external threat intel APIs.
type EnrichmentReport struct {
	IPs              []IPEnrichment     `json:"ips"`
	Domains          []DomainEnrichment `json:"domains"`
	FileHashes       []HashEnrichment   `json:"file_hashes"`
	EmailAddresses   []EmailEnrichment  `json:"email_addresses"`
	URLs             []URLEnrichment    `json:"urls"`
	EnrichmentStatus string             `json:"enrichment_status"`
	APIsAvailable    []string           `json:"apis_available"`
}

// EnrichWithThreatIntel structures extracted IOCs for enrichment by external
// services. No lookups are performed here; reputations start unknown and
// the status stays pending until an integration fills them in. When a
// security cache is attached, per-indicator records are reused across runs,
// so an integration that fills one in keeps its verdict until the entry
// expires.
func (w *Workflows) EnrichWithThreatIntel(iocs domain.IOCSet) *EnrichmentReport {
	report := &EnrichmentReport{
		IPs:              []IPEnrichment{},
		Domains:          []DomainEnrichment{},
		FileHashes:       []HashEnrichment{},
		EmailAddresses:   []EmailEnrichment{},
		URLs:             []URLEnrichment{},
		EnrichmentStatus: "pending",
		APIsAvailable:    []string{"virustotal", "abuseipdb", "alienvault", "misp"},
	}

	for _, ip := range iocs.IPs {
		var e IPEnrichment
		if w.patterns != nil && w.patterns.GetIOCAnalysis(ip, "ip", &e) {
			report.IPs = append(report.IPs, e)
			continue
		}
		e = IPEnrichment{IP: ip, Reputation: "unknown"}
		if w.intel != nil {
			if hist := w.intel.GetHistory(ip, "ip"); len(hist) > 0 {
				first := hist[0].Timestamp.Format(time.RFC3339)
				last := hist[len(hist)-1].Timestamp.Format(time.RFC3339)
				src := "threat_store"
				e.FirstSeen, e.LastSeen, e.Source = &first, &last, &src
			}
		}
		w.cacheIOC(ip, "ip", e)
		report.IPs = append(report.IPs, e)
	}
	for _, d := range iocs.Domains {
		var e DomainEnrichment
		if w.patterns != nil && w.patterns.GetIOCAnalysis(d, "domain", &e) {
			report.Domains = append(report.Domains, e)
			continue
		}
		e = DomainEnrichment{Domain: d, Category: "unknown", Reputation: "unknown"}
		w.cacheIOC(d, "domain", e)
		report.Domains = append(report.Domains, e)
	}
	for _, h := range iocs.FileHashes.MD5 {
		report.FileHashes = append(report.FileHashes, HashEnrichment{Hash: h, HashType: "md5"})
	}
	for _, h := range iocs.FileHashes.SHA1 {
		report.FileHashes = append(report.FileHashes, HashEnrichment{Hash: h, HashType: "sha1"})
	}
	for _, h := range iocs.FileHashes.SHA256 {
		report.FileHashes = append(report.FileHashes, HashEnrichment{Hash: h, HashType: "sha256"})
	}
	for _, e := range iocs.EmailAddresses {
		report.EmailAddresses = append(report.EmailAddresses, EmailEnrichment{
			Email:               e,
			Reputation:          "unknown",
			AssociatedCampaigns: []string{},
		})
	}
	for _, u := range iocs.URLs {
		report.URLs = append(report.URLs, URLEnrichment{
			URL:        u,
			Category:   "unknown",
			Reputation: "unknown",
		})
	}

	return report
}

func (w *Workflows) cacheIOC(ioc, iocType string, analysis any) {
	if w.patterns == nil {
		return
	}
	if err := w.patterns.CacheIOCAnalysis(ioc, iocType, analysis); err != nil {
		w.log.Warn().Err(err).Str("ioc", ioc).Msg("ioc analysis cache write failed")
	}
}
