package workflows

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlmail/rlmail/internal/domain"
)

func TestInboxTriage(t *testing.T) {
	ep := &scriptEndpoint{fn: answer(func(string) string {
		return "Email 1: urgent\nEmail 2: newsletter\nEmail 3: no idea"
	})}
	w := newTestWorkflows(t, ep)

	corpus := &domain.Corpus{Records: []domain.EmailRecord{
		{ID: "1", From: "boss@corp.example", Subject: "Need the numbers today"},
		{ID: "2", From: "digest@news.example", Subject: "This week in Go"},
		{ID: "3", From: "peer@corp.example", Subject: "Random thought"},
	}}

	result, err := w.InboxTriage(context.Background(), corpus)
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, recordIDs(result.Categories[CategoryUrgent]))
	assert.Equal(t, []string{"2"}, recordIDs(result.Categories[CategoryNewsletter]))
	// Unparseable classification lines fall back to fyi.
	assert.Equal(t, []string{"3"}, recordIDs(result.Categories[CategoryFYI]))
	assert.Empty(t, result.Categories[CategoryActionRequired])

	assert.Equal(t, 1, result.Counts[CategoryUrgent])
	assert.Equal(t, "Triaged 3 emails (urgent: 1, action_required: 0, fyi: 1, newsletter: 1)", result.Summary)
}

func TestInboxTriageEmptyCorpus(t *testing.T) {
	ep := &scriptEndpoint{fn: answer(func(string) string { return "unused" })}
	w := newTestWorkflows(t, ep)

	result, err := w.InboxTriage(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "No emails to triage.", result.Summary)
	for _, cat := range TriageCategories() {
		assert.NotNil(t, result.Categories[cat])
		assert.Empty(t, result.Categories[cat])
	}
	assert.Equal(t, 0, ep.callCount())
}

func TestInboxTriageFailedChunkDefaultsFYI(t *testing.T) {
	w := newTestWorkflows(t, failingEndpoint("api down"))

	corpus := &domain.Corpus{Records: []domain.EmailRecord{
		{ID: "1", Subject: "One"},
		{ID: "2", Subject: "Two"},
	}}

	result, err := w.InboxTriage(context.Background(), corpus)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2"}, recordIDs(result.Categories[CategoryFYI]))
}

func TestWeeklySummary(t *testing.T) {
	ep := &scriptEndpoint{fn: answer(func(prompt string) string {
		if strings.Contains(prompt, "alice") {
			return "Alice planned next week."
		}
		return "Bob reported status."
	})}
	w := newTestWorkflows(t, ep)

	corpus := &domain.Corpus{Records: []domain.EmailRecord{
		{ID: "1", From: "alice@corp.example", Subject: "Planning", Date: "2026-08-05"},
		{ID: "2", From: "bob@corp.example", Subject: "Status", Date: "2026-08-12"},
	}}

	result, err := w.WeeklySummary(context.Background(), corpus)
	require.NoError(t, err)

	assert.Equal(t, "Alice planned next week.", result.Weeks["2026-W32"])
	assert.Equal(t, "Bob reported status.", result.Weeks["2026-W33"])
	assert.Equal(t, "2026-W32:\nAlice planned next week.\n\n---\n\n2026-W33:\nBob reported status.", result.Summary)
}

func TestWeeklySummaryEmptyCorpus(t *testing.T) {
	ep := &scriptEndpoint{fn: answer(func(string) string { return "unused" })}
	w := newTestWorkflows(t, ep)

	result, err := w.WeeklySummary(context.Background(), &domain.Corpus{})
	require.NoError(t, err)
	assert.Equal(t, "No emails to summarize.", result.Summary)
	assert.Empty(t, result.Weeks)
}

func TestFindActionItems(t *testing.T) {
	ep := &scriptEndpoint{fn: answer(func(string) string {
		return `{"action_items": [{"task": "Send the Q3 report", "deadline": "Friday", "sender": "alice@corp.example", "priority": "high"}]}`
	})}
	w := newTestWorkflows(t, ep)

	corpus := &domain.Corpus{Records: []domain.EmailRecord{
		{ID: "1", From: "alice@corp.example", Subject: "Report due", Snippet: "need the Q3 report by Friday"},
	}}

	result, err := w.FindActionItems(context.Background(), corpus)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "Send the Q3 report", result.Items[0].Task)
	assert.Equal(t, "Friday", result.Items[0].Deadline)
	assert.Equal(t, "high", result.Items[0].Priority)
	assert.Equal(t, 1, result.Count)
}

func TestFindActionItemsSkipsChunkWithoutValidJSON(t *testing.T) {
	ep := &scriptEndpoint{fn: answer(func(string) string { return "never json" })}
	w := newTestWorkflows(t, ep)

	corpus := &domain.Corpus{Records: []domain.EmailRecord{
		{ID: "1", Subject: "Something"},
	}}

	result, err := w.FindActionItems(context.Background(), corpus)
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Equal(t, 0, result.Count)
}

func TestFindActionItemsEmptyCorpus(t *testing.T) {
	ep := &scriptEndpoint{fn: answer(func(string) string { return "unused" })}
	w := newTestWorkflows(t, ep)

	result, err := w.FindActionItems(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []ActionItem{}, result.Items)
	assert.Equal(t, 0, ep.callCount())
}

func TestSenderAnalysis(t *testing.T) {
	ep := &scriptEndpoint{fn: answer(func(string) string {
		return "Alice has been scheduling reviews."
	})}
	w := newTestWorkflows(t, ep)

	corpus := &domain.Corpus{Records: []domain.EmailRecord{
		{ID: "1", From: "alice@corp.example", Subject: "Review round 1"},
		{ID: "2", From: "alice@corp.example", Subject: "Review round 2"},
		{ID: "3", From: "bob@corp.example", Subject: "Lunch"},
	}}

	result, err := w.SenderAnalysis(context.Background(), corpus, 1)
	require.NoError(t, err)
	require.Len(t, result.TopSenders, 1)

	top := result.TopSenders[0]
	assert.Equal(t, "alice@corp.example", top.Sender)
	assert.Equal(t, 2, top.Count)
	assert.Equal(t, "Alice has been scheduling reviews.", top.Summary)
	assert.Equal(t, "Analyzed 3 emails across 1 top senders", result.Summary)
}

func TestSenderAnalysisEmptyCorpus(t *testing.T) {
	ep := &scriptEndpoint{fn: answer(func(string) string { return "unused" })}
	w := newTestWorkflows(t, ep)

	result, err := w.SenderAnalysis(context.Background(), nil, 5)
	require.NoError(t, err)
	assert.Equal(t, "No emails to analyze.", result.Summary)
	assert.Empty(t, result.TopSenders)
}
