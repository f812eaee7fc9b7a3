package primitive

import (
	"regexp"
	"strings"

	"github.com/rlmail/rlmail/internal/domain"
)

// mitrePatterns maps ATT&CK technique ids to the keywords that indicate
// them. Pattern matching covers the common email-borne techniques; anything
// subtler needs the model supplement.
var mitrePatterns = map[string][]string{
	"T1566":     {"phishing", "malicious attachment", "credential harvesting"},
	"T1566.001": {"spearphishing attachment", "weaponized document"},
	"T1566.002": {"spearphishing link", "malicious url"},
	"T1059":     {"command execution", "powershell", "cmd.exe", "bash"},
	"T1059.001": {"powershell", "ps1"},
	"T1059.003": {"windows command shell", "cmd.exe"},
	"T1071":     {"application layer protocol", "http", "https", "dns"},
	"T1082":     {"system information discovery", "reconnaissance"},
	"T1021":     {"remote services", "rdp", "ssh", "smb"},
	"T1021.001": {"remote desktop", "rdp"},
	"T1078":     {"valid accounts", "compromised credentials", "stolen password"},
	"T1110":     {"brute force", "password spray", "credential stuffing"},
	"T1486":     {"ransomware", "file encryption", "crypto locker"},
	"T1204":     {"user execution", "malicious file", "macro"},
	"T1133":     {"external remote services", "vpn", "external access"},
	"T1190":     {"exploit public-facing application", "web exploit", "vulnerability"},
}

var techniqueID = regexp.MustCompile(`T\d{4}(?:\.\d{3})?`)

// MapToMITRE matches an alert's text against the keyword table and returns
// the technique ids hit, sorted.
func MapToMITRE(r domain.EmailRecord) []string {
	combined := strings.ToLower(r.CombinedText())
	hits := map[string]bool{}
	for id, patterns := range mitrePatterns {
		for _, p := range patterns {
			if strings.Contains(combined, p) {
				hits[id] = true
				break
			}
		}
	}
	return sortedKeys(hits)
}

// ParseTechniqueIDs extracts ATT&CK technique ids from free text, such as a
// model reply, sorted and deduplicated.
func ParseTechniqueIDs(text string) []string {
	hits := map[string]bool{}
	for _, id := range techniqueID.FindAllString(text, -1) {
		hits[id] = true
	}
	return sortedKeys(hits)
}

// MergeTechniques combines technique id lists, sorted and deduplicated.
func MergeTechniques(lists ...[]string) []string {
	merged := map[string]bool{}
	for _, l := range lists {
		for _, id := range l {
			merged[id] = true
		}
	}
	return sortedKeys(merged)
}
