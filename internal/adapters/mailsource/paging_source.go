package mailsource

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rlmail/rlmail/internal/domain"
	"github.com/rlmail/rlmail/internal/domain/primitive"
	"github.com/rlmail/rlmail/internal/ports"
)

// pageSize is the per-page cap most provider list APIs enforce.
const pageSize = 100

// Page is one page of a provider's list response.
type Page struct {
	Messages  []domain.EmailRecord
	NextToken string
}

// PageClient is the minimal surface of a paging mail provider API. Live
// implementations wrap the provider SDK; tests use a scripted client.
type PageClient interface {
	// ListPage returns at most limit records matching the query, starting
	// at token ("" for the first page). An empty NextToken ends paging.
	ListPage(ctx context.Context, query string, limit int, token string, format domain.FormatLevel) (*Page, error)
}

// PagingSource loads a corpus by paging a provider API until the requested
// maximum is reached or the provider reports no continuation.
type PagingSource struct {
	client PageClient
	log    zerolog.Logger
}

// NewPagingSource creates a source over the given page client.
func NewPagingSource(client PageClient, log zerolog.Logger) *PagingSource {
	return &PagingSource{client: client, log: log}
}

// Fetch pages the provider and assembles a deduplicated corpus.
func (s *PagingSource) Fetch(ctx context.Context, query string, opts ports.FetchOptions) (*domain.Corpus, error) {
	max := opts.MaxResults
	format := opts.Format
	if format == "" {
		format = domain.FormatMetadata
	}

	var records []domain.EmailRecord
	token := ""
	pages := 0

	for {
		limit := pageSize
		if max > 0 && max-len(records) < limit {
			limit = max - len(records)
		}
		if limit <= 0 {
			break
		}

		page, err := s.client.ListPage(ctx, query, limit, token, format)
		if err != nil {
			return nil, fmt.Errorf("mail source: page %d: %w", pages+1, err)
		}
		pages++
		records = append(records, page.Messages...)

		s.log.Debug().Int("page", pages).Int("fetched", len(records)).Msg("fetched page")

		if page.NextToken == "" || len(page.Messages) == 0 {
			break
		}
		token = page.NextToken
	}

	records = primitive.Deduplicate(records)
	if max > 0 && len(records) > max {
		records = records[:max]
	}

	return &domain.Corpus{
		Records: records,
		Metadata: domain.CorpusMetadata{
			Query:        query,
			Count:        len(records),
			Format:       format,
			PagesFetched: pages,
		},
	}, nil
}
