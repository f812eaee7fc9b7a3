package detection

import (
	"github.com/rlmail/rlmail/internal/domain"
)

// Finding is one suspicious-sender detection signal.
type Finding struct {
	Sender     string  `json:"sender"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	EmailID    string  `json:"email_id"`
	AuthFailed bool    `json:"auth_failed"`
}

// SenderStrategy defines the interface all sender detection strategies
// implement
//
// This follows the Strategy pattern, allowing each detection technique to be:
//   - Independently developed and tested
//   - Easily added or removed from the detection pipeline
//   - Configured with different keyword sets and thresholds
type SenderStrategy interface {
	// Detect analyzes a record and returns any findings, or nil when clean
	Detect(record domain.EmailRecord, context *Context) []Finding

	// Name returns the human-readable name of this detection strategy
	Name() string
}

// Context provides shared configuration needed by multiple strategies
type Context struct {
	// CommonDomains are well-known legitimate domains used for lookalike
	// comparison
	CommonDomains []string

	// CorporateKeywords are brand names whose appearance in a display name
	// demands a matching sender domain
	CorporateKeywords []string

	// FreemailDomains are consumer mail providers a corporate Reply-To
	// should never redirect to
	FreemailDomains []string
}

// NewContext creates a detection context with the default keyword sets.
func NewContext() *Context {
	return &Context{
		CommonDomains: []string{
			"google.com", "microsoft.com", "apple.com", "amazon.com",
			"facebook.com", "paypal.com", "netflix.com", "linkedin.com",
		},
		CorporateKeywords: []string{
			"paypal", "apple", "microsoft", "google", "amazon", "bank",
		},
		FreemailDomains: []string{
			"gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "aol.com",
		},
	}
}
