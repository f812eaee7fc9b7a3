package detection

import (
	"fmt"
	"strings"

	"github.com/rlmail/rlmail/internal/domain"
)

// ReplyToStrategy detects Reply-To header mismatches
type ReplyToStrategy struct{}

// NewReplyToStrategy creates a new Reply-To mismatch detection strategy
func NewReplyToStrategy() *ReplyToStrategy {
	return &ReplyToStrategy{}
}

// Name returns the strategy name
func (s *ReplyToStrategy) Name() string {
	return "Reply-To Mismatch"
}

// Detect checks if the Reply-To header differs from the sender and redirects
// responses to a freemail provider. Attackers spoof a corporate From while
// collecting replies at a throwaway mailbox.
func (s *ReplyToStrategy) Detect(record domain.EmailRecord, context *Context) []Finding {
	_, addr := splitFrom(record.From)
	replyTo := strings.ToLower(strings.TrimSpace(record.Header("Reply-To")))
	if m := angleAddr.FindStringSubmatch(replyTo); m != nil {
		replyTo = strings.TrimSpace(m[1])
	}

	if replyTo == "" || replyTo == addr {
		return nil
	}

	senderDomain := extractDomain(addr)
	replyToDomain := extractDomain(replyTo)

	isFreemail := false
	for _, free := range context.FreemailDomains {
		if replyToDomain == free {
			isFreemail = true
			break
		}
	}

	if !isFreemail || replyToDomain == senderDomain {
		return nil
	}

	return []Finding{{
		Sender:     addr,
		Reason:     fmt.Sprintf("Reply-To redirects to free email service (%s)", replyTo),
		Confidence: 0.75,
		EmailID:    record.ID,
	}}
}
