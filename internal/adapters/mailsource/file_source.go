// Package mailsource implements the ports.MailSource contract for saved
// result files and for paging provider APIs.
package mailsource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rlmail/rlmail/internal/domain"
	"github.com/rlmail/rlmail/internal/domain/primitive"
	"github.com/rlmail/rlmail/internal/ports"
)

// savedResult is the on-disk shape of a bulk fetch result.
type savedResult struct {
	Status      string               `json:"status"`
	Query       string               `json:"query"`
	ResultCount int                  `json:"result_count"`
	Messages    []domain.EmailRecord `json:"messages"`
	Metadata    struct {
		PagesFetched int                `json:"pages_fetched"`
		Format       domain.FormatLevel `json:"format"`
	} `json:"metadata"`
}

// FileSource loads a corpus from a previously saved result file.
type FileSource struct {
	path string
}

// NewFileSource creates a source reading the given saved result file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Fetch reads the saved file. The query argument is ignored; the file's own
// recorded query is carried into the corpus metadata. Records are
// deduplicated by id, keeping first occurrences, and capped at
// opts.MaxResults.
func (s *FileSource) Fetch(_ context.Context, _ string, opts ports.FetchOptions) (*domain.Corpus, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("mail source: reading %s: %w", s.path, err)
	}

	var saved savedResult
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("mail source: parsing %s: %w", s.path, err)
	}
	if saved.Status != "" && saved.Status != "success" {
		return nil, fmt.Errorf("mail source: %s records a failed fetch (status %q)", s.path, saved.Status)
	}

	records := primitive.Deduplicate(saved.Messages)
	if opts.MaxResults > 0 && len(records) > opts.MaxResults {
		records = records[:opts.MaxResults]
	}

	format := saved.Metadata.Format
	if format == "" {
		format = domain.FormatMetadata
	}

	return &domain.Corpus{
		Records: records,
		Metadata: domain.CorpusMetadata{
			Query:        saved.Query,
			Count:        len(records),
			Format:       format,
			PagesFetched: saved.Metadata.PagesFetched,
			SourceFile:   s.path,
		},
	}, nil
}
