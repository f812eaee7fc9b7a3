package ports

import (
	"context"

	"github.com/rlmail/rlmail/internal/domain"
)

// FetchOptions controls how much a mail source retrieves.
type FetchOptions struct {
	// MaxResults caps the total number of records fetched.
	MaxResults int

	// Format selects how much of each message to retrieve.
	Format domain.FormatLevel
}

// MailSource defines the contract for loading an email corpus, whether from
// a live provider API or a previously saved result file.
type MailSource interface {
	// Fetch retrieves records matching the query. Implementations
	// deduplicate by record id and never return more than
	// opts.MaxResults records.
	Fetch(ctx context.Context, query string, opts FetchOptions) (*domain.Corpus, error)
}
