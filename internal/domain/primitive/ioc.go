package primitive

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rlmail/rlmail/internal/domain"
)

var (
	ipPattern     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	domainPattern = regexp.MustCompile(`\b(?:[a-zA-Z0-9-]+\.)+[a-zA-Z]{2,}\b`)
	md5Pattern    = regexp.MustCompile(`\b[a-fA-F0-9]{32}\b`)
	sha1Pattern   = regexp.MustCompile(`\b[a-fA-F0-9]{40}\b`)
	sha256Pattern = regexp.MustCompile(`\b[a-fA-F0-9]{64}\b`)
	emailPattern  = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	urlPattern    = regexp.MustCompile(`https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)
)

// image and document suffixes that the domain regex mistakes for hostnames
var domainFalsePositiveSuffixes = []string{".jpg", ".png", ".gif", ".pdf"}

// ValidIPv4 reports whether every octet of a dotted quad is in range. The
// extraction regex alone accepts strings like 999.1.1.1.
func ValidIPv4(ip string) bool {
	octets := strings.Split(ip, ".")
	if len(octets) != 4 {
		return false
	}
	for _, o := range octets {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

// ExtractIOCs scans record text for indicators of compromise: IPv4
// addresses, domains, file hashes, email addresses and URLs. Output
// collections are sorted and deduplicated; IPs failing octet validation and
// image-suffix domain false positives are dropped.
func ExtractIOCs(records []domain.EmailRecord) domain.IOCSet {
	ips := map[string]bool{}
	domains := map[string]bool{}
	md5s := map[string]bool{}
	sha1s := map[string]bool{}
	sha256s := map[string]bool{}
	addrs := map[string]bool{}
	urls := map[string]bool{}

	for _, r := range records {
		text := r.Subject + " " + r.Snippet + " " + r.Body

		for _, ip := range ipPattern.FindAllString(text, -1) {
			if ValidIPv4(ip) {
				ips[ip] = true
			}
		}
		for _, d := range domainPattern.FindAllString(text, -1) {
			d = strings.ToLower(d)
			if hasAnySuffix(d, domainFalsePositiveSuffixes) {
				continue
			}
			domains[d] = true
		}
		for _, h := range md5Pattern.FindAllString(text, -1) {
			md5s[h] = true
		}
		for _, h := range sha1Pattern.FindAllString(text, -1) {
			sha1s[h] = true
		}
		for _, h := range sha256Pattern.FindAllString(text, -1) {
			sha256s[h] = true
		}
		for _, a := range emailPattern.FindAllString(text, -1) {
			addrs[strings.ToLower(a)] = true
		}
		for _, u := range urlPattern.FindAllString(text, -1) {
			urls[u] = true
		}
	}

	return domain.IOCSet{
		IPs:     sortedKeys(ips),
		Domains: sortedKeys(domains),
		FileHashes: domain.FileHashes{
			MD5:    sortedKeys(md5s),
			SHA1:   sortedKeys(sha1s),
			SHA256: sortedKeys(sha256s),
		},
		EmailAddresses: sortedKeys(addrs),
		URLs:           sortedKeys(urls),
	}
}

// ExtractURLs returns all URLs found in a single record's text.
func ExtractURLs(r domain.EmailRecord) []string {
	return urlPattern.FindAllString(r.Subject+" "+r.Snippet+" "+r.Body, -1)
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
