package primitive

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rlmail/rlmail/internal/domain"
)

func TestValidateAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantSPF    string
		wantDKIM   string
		wantDMARC  string
		suspicious bool
	}{
		{
			"all pass",
			"spf=pass smtp.mailfrom=x.com; dkim=pass; dmarc=pass",
			"pass", "pass", "pass", false,
		},
		{
			"spf fail flags suspicious",
			"spf=fail smtp.mailfrom=x.com; dkim=pass",
			"fail", "pass", "none", true,
		},
		{
			"all fail",
			"spf=fail; dkim=fail; dmarc=fail",
			"fail", "fail", "fail", true,
		},
		{
			"neutral spf",
			"spf=neutral",
			"neutral", "none", "none", false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := domain.EmailRecord{Headers: map[string]string{"Authentication-Results": tt.header}}
			auth := ValidateAuth(r)
			assert.Equal(t, tt.wantSPF, auth.SPF)
			assert.Equal(t, tt.wantDKIM, auth.DKIM)
			assert.Equal(t, tt.wantDMARC, auth.DMARC)
			assert.Equal(t, tt.suspicious, auth.Suspicious)
		})
	}
}

func TestValidateAuthMissingHeader(t *testing.T) {
	auth := ValidateAuth(domain.EmailRecord{})
	assert.Equal(t, domain.AuthResult{SPF: "none", DKIM: "none", DMARC: "none"}, auth)
}

func TestHeaderCaseInsensitive(t *testing.T) {
	r := domain.EmailRecord{Headers: map[string]string{"authentication-results": "spf=fail"}}
	assert.True(t, ValidateAuth(r).Suspicious)
}
