package mailsource

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rlmail/rlmail/internal/domain"
)

// DemoClient is a PageClient that serves a small synthetic corpus of
// security alerts and phishing samples. It stands in for a live provider so
// the full pipeline can run without mailbox credentials.
type DemoClient struct{}

// NewDemoClient creates a demo page client.
func NewDemoClient() *DemoClient {
	return &DemoClient{}
}

// ListPage returns one page containing the demo corpus. The query is
// ignored and no continuation token is issued.
func (c *DemoClient) ListPage(_ context.Context, _ string, limit int, token string, _ domain.FormatLevel) (*Page, error) {
	if token != "" {
		return &Page{}, nil
	}

	now := time.Now()
	stamp := func(d time.Duration) string {
		return now.Add(-d).Format(time.RFC1123Z)
	}

	records := []domain.EmailRecord{
		{
			ID:       uuid.NewString(),
			ThreadID: "demo-thread-1",
			Subject:  "Invoice #4821 - Payment Required",
			From:     "Accounts Payable <accounts@companny.com>",
			To:       "alice@example.com",
			Date:     stamp(2 * time.Hour),
			Snippet:  "Please find attached invoice for immediate payment. Wire transfer to the new account urgently.",
			Headers: map[string]string{
				"Reply-To": "urgent-payments@gmail.com",
			},
		},
		{
			ID:       uuid.NewString(),
			ThreadID: "demo-thread-2",
			Subject:  "Urgent: Wire Transfer Needed",
			From:     "CEO John Smith <john@external-domain.com>",
			To:       "john.doe@company.com",
			Date:     stamp(1 * time.Hour),
			Snippet:  "Please process this wire transfer immediately...",
		},
		{
			ID:       uuid.NewString(),
			ThreadID: "demo-thread-3",
			Subject:  "[P1] IDS Alert: outbound connection to 203.0.113.66",
			From:     "ids@monitoring.example.com",
			To:       "soc@example.com",
			Date:     stamp(30 * time.Minute),
			Snippet:  "Host 10.0.0.12 opened a connection to 203.0.113.66 following execution of payload.exe",
			Headers: map[string]string{
				"X-Priority": "1",
			},
		},
		{
			ID:       uuid.NewString(),
			ThreadID: "demo-thread-4",
			Subject:  "Security alert: sign-in blocked",
			From:     "PayPal Support <support@paypa1-verify.top>",
			To:       "alice@example.com",
			Date:     stamp(28 * time.Minute),
			Snippet:  "Your suspended account needs attention. Verify account at http://bit.ly/3xReset within 24 hours.",
			Headers: map[string]string{
				"Authentication-Results": "spf=fail smtp.mailfrom=paypa1-verify.top; dkim=fail; dmarc=fail",
			},
		},
	}

	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return &Page{Messages: records}, nil
}
