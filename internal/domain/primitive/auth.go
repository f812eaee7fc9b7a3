package primitive

import (
	"strings"

	"github.com/rlmail/rlmail/internal/domain"
)

// ValidateAuth parses a record's Authentication-Results header for SPF, DKIM
// and DMARC outcomes. Missing mechanisms report "none". Suspicious is set
// when any mechanism explicitly failed; absent headers are not suspicious on
// their own since minimal-format fetches carry no headers at all.
func ValidateAuth(r domain.EmailRecord) domain.AuthResult {
	result := domain.AuthResult{SPF: "none", DKIM: "none", DMARC: "none"}

	header := strings.ToLower(r.Header("Authentication-Results"))
	if header == "" {
		return result
	}

	if strings.Contains(header, "spf=") {
		switch {
		case strings.Contains(header, "spf=pass"):
			result.SPF = "pass"
		case strings.Contains(header, "spf=fail"):
			result.SPF = "fail"
		case strings.Contains(header, "spf=neutral"):
			result.SPF = "neutral"
		}
	}
	if strings.Contains(header, "dkim=") {
		switch {
		case strings.Contains(header, "dkim=pass"):
			result.DKIM = "pass"
		case strings.Contains(header, "dkim=fail"):
			result.DKIM = "fail"
		}
	}
	if strings.Contains(header, "dmarc=") {
		switch {
		case strings.Contains(header, "dmarc=pass"):
			result.DMARC = "pass"
		case strings.Contains(header, "dmarc=fail"):
			result.DMARC = "fail"
		}
	}

	result.Suspicious = result.SPF == "fail" || result.DKIM == "fail" || result.DMARC == "fail"
	return result
}
