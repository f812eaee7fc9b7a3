package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rlmail/rlmail/internal/domain"
	"github.com/rlmail/rlmail/internal/domain/primitive"
	"github.com/rlmail/rlmail/internal/rlm"
)

// Inbox triage categories, in display order.
const (
	CategoryUrgent         = "urgent"
	CategoryActionRequired = "action_required"
	CategoryFYI            = "fyi"
	CategoryNewsletter     = "newsletter"
)

// TriageCategories lists the inbox triage buckets in display order.
func TriageCategories() []string {
	return []string{CategoryUrgent, CategoryActionRequired, CategoryFYI, CategoryNewsletter}
}

// triageChunkSize is the number of emails classified per fan-out call.
const triageChunkSize = 20

// InboxTriageResult is the categorized view of an inbox.
type InboxTriageResult struct {
	Categories map[string][]domain.EmailRecord `json:"categories"`
	Counts     map[string]int                  `json:"counts"`
	Summary    string                          `json:"summary"`
}

const inboxTriagePrompt = `Classify each email into exactly one category:
- urgent: needs a response today
- action_required: needs a response or action this week
- fyi: informational, no action needed
- newsletter: bulk mail, digests, promotions

Respond with only the email numbers and categories, one per line:
Email 1: urgent
Email 2: fyi
etc.`

var categoryLinePat = regexp.MustCompile(`(?i)\b(urgent|action_required|fyi|newsletter)\b`)

// InboxTriage classifies the corpus into urgent, action_required, fyi and
// newsletter buckets via a parallel fan-out over fixed-size chunks.
// Unparseable classifications default to fyi.
func (w *Workflows) InboxTriage(ctx context.Context, corpus *domain.Corpus) (*InboxTriageResult, error) {
	result := &InboxTriageResult{
		Categories: map[string][]domain.EmailRecord{},
		Counts:     map[string]int{},
	}
	for _, cat := range TriageCategories() {
		result.Categories[cat] = []domain.EmailRecord{}
		result.Counts[cat] = 0
	}
	if corpus == nil || corpus.Len() == 0 {
		result.Summary = "No emails to triage."
		return result, nil
	}

	chunks := primitive.ChunkBySize(corpus.Records, triageChunkSize)
	replies, err := w.rt.ParallelMap(ctx, inboxTriagePrompt, chunks, func(chunk []domain.EmailRecord) string {
		return emailContext(chunk)
	}, rlm.InvokeOptions{})
	if err != nil {
		return nil, err
	}

	for ci, chunk := range chunks {
		reply := replies[ci]
		var lines []string
		if !rlm.IsSentinel(reply) {
			lines = strings.Split(strings.TrimSpace(reply), "\n")
		}
		for i, r := range chunk {
			cat := CategoryFYI
			if i < len(lines) {
				if m := categoryLinePat.FindString(strings.ToLower(lines[i])); m != "" {
					cat = m
				}
			}
			result.Categories[cat] = append(result.Categories[cat], r)
		}
	}

	var parts []string
	for _, cat := range TriageCategories() {
		result.Counts[cat] = len(result.Categories[cat])
		parts = append(parts, fmt.Sprintf("%s: %d", cat, result.Counts[cat]))
	}
	result.Summary = fmt.Sprintf("Triaged %d emails (%s)", corpus.Len(), strings.Join(parts, ", "))

	return result, nil
}

// WeeklySummaryResult holds per-week summaries and their aggregate.
type WeeklySummaryResult struct {
	Weeks   map[string]string `json:"weeks"`
	Summary string            `json:"summary"`
}

const weeklySummaryPrompt = `Summarize these emails in 2-4 sentences. Focus on who wrote, what they need, and anything time-sensitive.`

// WeeklySummary groups the corpus by ISO week, summarizes each week in
// parallel and aggregates the results.
func (w *Workflows) WeeklySummary(ctx context.Context, corpus *domain.Corpus) (*WeeklySummaryResult, error) {
	result := &WeeklySummaryResult{Weeks: map[string]string{}}
	if corpus == nil || corpus.Len() == 0 {
		result.Summary = "No emails to summarize."
		return result, nil
	}

	groups := primitive.ChunkByDate(corpus.Records, primitive.PeriodWeek)
	weeks := make([]string, 0, len(groups))
	for week := range groups {
		weeks = append(weeks, week)
	}
	sort.Strings(weeks)

	chunks := make([][]domain.EmailRecord, len(weeks))
	for i, week := range weeks {
		chunks[i] = groups[week]
	}

	replies, err := w.rt.ParallelMap(ctx, weeklySummaryPrompt, chunks, func(chunk []domain.EmailRecord) string {
		return primitive.BatchSummaries(chunk, 0)
	}, rlm.InvokeOptions{})
	if err != nil {
		return nil, err
	}

	labeled := make([]string, 0, len(weeks))
	for i, week := range weeks {
		result.Weeks[week] = replies[i]
		labeled = append(labeled, fmt.Sprintf("%s:\n%s", week, replies[i]))
	}
	result.Summary = primitive.AggregateResults(labeled, "")

	return result, nil
}

// ActionItem is one extracted task.
type ActionItem struct {
	Task     string `json:"task"`
	Deadline string `json:"deadline"`
	Sender   string `json:"sender"`
	Priority string `json:"priority"`
}

// ActionItemsResult is the flattened list of tasks found in a corpus.
type ActionItemsResult struct {
	Items []ActionItem `json:"action_items"`
	Count int          `json:"count"`
}

const actionItemsPrompt = `Extract every action item from these emails. For each one capture the task, its deadline (empty string if none stated), the sender who asked, and a priority of high, medium or low.

Return JSON: {"action_items": [{"task": "...", "deadline": "...", "sender": "...", "priority": "..."}]}`

const actionItemsSchema = `{
  "type": "object",
  "required": ["action_items"],
  "properties": {
    "action_items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["task", "deadline", "sender", "priority"],
        "properties": {
          "task": {"type": "string"},
          "deadline": {"type": "string"},
          "sender": {"type": "string"},
          "priority": {"type": "string"}
        }
      }
    }
  }
}`

// FindActionItems extracts tasks with deadlines from the corpus, one
// structured call per chunk, and flattens the results. A chunk that never
// yields valid JSON is skipped with a warning rather than failing the run.
func (w *Workflows) FindActionItems(ctx context.Context, corpus *domain.Corpus) (*ActionItemsResult, error) {
	result := &ActionItemsResult{Items: []ActionItem{}}
	if corpus == nil || corpus.Len() == 0 {
		return result, nil
	}

	for _, chunk := range primitive.ChunkBySize(corpus.Records, triageChunkSize) {
		raw, err := w.rt.InvokeJSON(ctx, actionItemsPrompt, rlm.InvokeOptions{
			Context: primitive.BatchSummaries(chunk, 0),
		}, actionItemsSchema, 2)
		if err != nil {
			var structErr *rlm.StructuredOutputError
			if errors.As(err, &structErr) {
				w.log.Warn().Err(err).Msg("skipping chunk without valid structured output")
				continue
			}
			return nil, err
		}

		var parsed struct {
			ActionItems []ActionItem `json:"action_items"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			continue
		}
		result.Items = append(result.Items, parsed.ActionItems...)
	}

	result.Count = len(result.Items)
	return result, nil
}

// SenderReport is the per-sender slice of a sender analysis.
type SenderReport struct {
	Sender  string `json:"sender"`
	Count   int    `json:"count"`
	Summary string `json:"summary"`
}

// SenderAnalysisResult ranks the most active senders with a summary each.
type SenderAnalysisResult struct {
	TopSenders []SenderReport `json:"top_senders"`
	Summary    string         `json:"summary"`
}

const senderSummaryPrompt = `Summarize what this sender has been emailing about in 1-2 sentences.`

// SenderAnalysis finds the topN most frequent senders and summarizes each
// sender's mail in parallel.
func (w *Workflows) SenderAnalysis(ctx context.Context, corpus *domain.Corpus, topN int) (*SenderAnalysisResult, error) {
	result := &SenderAnalysisResult{TopSenders: []SenderReport{}}
	if corpus == nil || corpus.Len() == 0 {
		result.Summary = "No emails to analyze."
		return result, nil
	}
	if topN <= 0 {
		topN = 10
	}

	top := primitive.TopSenders(corpus.Records, topN)
	groups := primitive.ChunkBySender(corpus.Records)

	chunks := make([][]domain.EmailRecord, len(top))
	for i, sc := range top {
		chunks[i] = groups[sc.Sender]
	}

	replies, err := w.rt.ParallelMap(ctx, senderSummaryPrompt, chunks, func(chunk []domain.EmailRecord) string {
		return primitive.BatchSummaries(chunk, 0)
	}, rlm.InvokeOptions{})
	if err != nil {
		return nil, err
	}

	for i, sc := range top {
		result.TopSenders = append(result.TopSenders, SenderReport{
			Sender:  sc.Sender,
			Count:   sc.Count,
			Summary: replies[i],
		})
	}
	result.Summary = fmt.Sprintf("Analyzed %d emails across %d top senders", corpus.Len(), len(top))

	return result, nil
}

// emailContext renders a numbered block per email for classification calls.
func emailContext(records []domain.EmailRecord) string {
	blocks := make([]string, len(records))
	for i, r := range records {
		blocks[i] = fmt.Sprintf("Email %d:\nFrom: %s\nSubject: %s\nSnippet: %s",
			i+1, r.From, r.Subject, r.Snippet)
	}
	return strings.Join(blocks, "\n\n")
}
