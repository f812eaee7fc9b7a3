package primitive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlmail/rlmail/internal/domain"
)

func TestFilterByKeyword(t *testing.T) {
	records := []domain.EmailRecord{
		{ID: "1", Subject: "Invoice overdue"},
		{ID: "2", Snippet: "your INVOICE is attached"},
		{ID: "3", Body: "nothing relevant"},
		{ID: "4", From: "invoice@billing.com"},
	}

	matched := FilterByKeyword(records, "invoice")
	require.Len(t, matched, 2)
	assert.Equal(t, "1", matched[0].ID)
	assert.Equal(t, "2", matched[1].ID)

	fromOnly := FilterByKeyword(records, "invoice", "from")
	require.Len(t, fromOnly, 1)
	assert.Equal(t, "4", fromOnly[0].ID)
}

func TestFilterBySender(t *testing.T) {
	records := []domain.EmailRecord{
		{ID: "1", From: "Alice <alice@corp.com>"},
		{ID: "2", From: "bob@other.com"},
	}
	matched := FilterBySender(records, "CORP.COM")
	require.Len(t, matched, 1)
	assert.Equal(t, "1", matched[0].ID)
}

func TestSortByDate(t *testing.T) {
	records := []domain.EmailRecord{
		{ID: "mid", Date: "2026-08-20 10:00:00"},
		{ID: "new", Date: "2026-08-21 10:00:00"},
		{ID: "old", Date: "2026-08-19 10:00:00"},
		{ID: "bad", Date: "unparsable"},
	}

	desc := Sort(records, "date", true)
	assert.Equal(t, "new", desc[0].ID)
	assert.Equal(t, "bad", desc[3].ID)

	asc := Sort(records, "date", false)
	assert.Equal(t, "bad", asc[0].ID)
	assert.Equal(t, "new", asc[3].ID)

	// Input untouched.
	assert.Equal(t, "mid", records[0].ID)
}

func TestDeduplicate(t *testing.T) {
	records := []domain.EmailRecord{
		{ID: "1", Subject: "first"},
		{ID: "1", Subject: "repeat"},
		{ID: "2"},
		{Subject: "no id"},
		{Subject: "no id either"},
	}

	unique := Deduplicate(records)
	require.Len(t, unique, 4)
	assert.Equal(t, "first", unique[0].Subject)
}

func TestTopSenders(t *testing.T) {
	records := []domain.EmailRecord{
		{From: "busy@x.com"}, {From: "busy@x.com"}, {From: "busy@x.com"},
		{From: "b@x.com"}, {From: "b@x.com"},
		{From: "a@x.com"}, {From: "a@x.com"},
		{From: "quiet@x.com"},
	}

	top := TopSenders(records, 3)
	require.Len(t, top, 3)
	assert.Equal(t, SenderCount{Sender: "busy@x.com", Count: 3}, top[0])
	// Ties break alphabetically.
	assert.Equal(t, "a@x.com", top[1].Sender)
	assert.Equal(t, "b@x.com", top[2].Sender)
}

func TestExtractRecordSummary(t *testing.T) {
	r := domain.EmailRecord{
		From:    "alice@x.com",
		Subject: "Hello",
		Date:    "2026-08-20",
		Snippet: "preview text",
	}
	summary := ExtractRecordSummary(r)
	assert.Equal(t, "From: alice@x.com\nSubject: Hello\nDate: 2026-08-20\nPreview: preview text", summary)

	assert.Equal(t, "Subject: only", ExtractRecordSummary(domain.EmailRecord{Subject: "only"}))
}

func TestBatchSummariesBudget(t *testing.T) {
	records := make([]domain.EmailRecord, 50)
	for i := range records {
		records[i] = domain.EmailRecord{
			Subject: strings.Repeat("x", 100),
			From:    "sender@example.com",
		}
	}

	out := BatchSummaries(records, 500)
	assert.Contains(t, out, "more emails")
	assert.Less(t, len(out), 700)

	short := BatchSummaries(records[:2], 0)
	assert.NotContains(t, short, "more emails")
	assert.Contains(t, short, "[1]")
	assert.Contains(t, short, "[2]")
}

func TestAggregateResults(t *testing.T) {
	out := AggregateResults([]string{"one", "", "  ", "two"}, "")
	assert.Equal(t, "one\n\n---\n\ntwo", out)

	assert.Equal(t, "a|b", AggregateResults([]string{"a", "b"}, "|"))
	assert.Equal(t, "", AggregateResults(nil, ""))
}
