package application

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlmail/rlmail/internal/session"
)

func TestDetectIntent(t *testing.T) {
	tests := []struct {
		goal string
		want string
	}{
		{"send an email to the team", "send"},
		{"show me mails from alice", "read"},
		{"label these by project", "label"},
		{"triage security alerts", "triage"},
		{"summarize my week", "summarize"},
		{"what are my tasks", "action_items"},
		{"any phishing attempts?", "security"},
		{"investigate unusual patterns", "analyze"},
	}
	for _, tt := range tests {
		t.Run(tt.goal, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectIntent(tt.goal))
		})
	}
}

func TestDetectWorkflow(t *testing.T) {
	tests := []struct {
		goal string
		want string
	}{
		{"find action items from this week", "find_action_items"},
		{"triage security alerts", "security_triage"},
		{"triage my inbox", "inbox_triage"},
		{"categorize these emails", "inbox_triage"},
		{"weekly summary please", "weekly_summary"},
		{"analyze my top senders", "sender_analysis"},
		{"look for kill chains", "detect_attack_chains"},
		{"check for phishing", "phishing_analysis"},
		{"something unrelated", ""},
	}
	for _, tt := range tests {
		t.Run(tt.goal, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectWorkflow(tt.goal))
		})
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		goal       string
		emailCount int
		wantRLM    bool
		wantReason string
	}{
		{"send is direct", "send an email to bob", 5, false, "Simple operation"},
		{"large corpus recursive", "triage my inbox", 500, true, "Large dataset"},
		{"security always recursive", "triage security alerts", 10, true, "Complex security analysis"},
		{"small simple direct", "triage my inbox", 10, false, "simple workflow"},
		{"default recursive", "investigate unusual patterns", 10, true, "Analysis task"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.goal, tt.emailCount)
			assert.Equal(t, tt.wantRLM, d.UseRLM)
			assert.Contains(t, d.Reason, tt.wantReason)
		})
	}
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name       string
		actions    []Action
		emailCount int
		want       float64
	}{
		{"no actions", nil, 100, 0.0},
		{"triage over 100", []Action{{Function: "security_triage"}}, 100, 0.51},
		{"unknown function fallback", []Action{{Function: "mystery"}}, 10, 0.02},
		{"two actions", []Action{{Function: "inbox_triage"}, {Function: "llm_query"}}, 10, 0.07},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EstimateCost(tt.actions, tt.emailCount), 1e-9)
		})
	}
}

func TestInterpretGoal(t *testing.T) {
	ep := &fixedEndpoint{text: `{"reasoning": "inbox goal maps to triage", "actions": [{"function": "inbox_triage", "args": {}, "description": "bucket the inbox"}]}`}
	router := NewRouter(newTestRuntime(t, ep, session.Limits{}), zerolog.Nop())

	actions, reasoning, err := router.InterpretGoal(context.Background(), "sort out my inbox", 42, nil)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "inbox_triage", actions[0].Function)
	assert.Equal(t, "inbox goal maps to triage", reasoning)

	prompt := ep.request(0).Prompt
	assert.Contains(t, prompt, `"sort out my inbox"`)
	assert.Contains(t, prompt, "42 emails")
	assert.Contains(t, prompt, "Available Functions")
}

func TestInterpretGoalInvalidPlan(t *testing.T) {
	ep := &fixedEndpoint{text: "not a plan"}
	router := NewRouter(newTestRuntime(t, ep, session.Limits{}), zerolog.Nop())

	_, _, err := router.InterpretGoal(context.Background(), "do something", 5, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interpreting goal")
}

func TestBuildGoalPromptHistory(t *testing.T) {
	history := []session.Turn{
		{Goal: "oldest", Response: "dropped"},
		{Goal: "second", Response: "kept"},
		{Goal: "third", Response: strings.Repeat("x", 250)},
		{Goal: "fourth", Response: "kept too"},
	}

	prompt := buildGoalPrompt("follow up", 10, history)
	assert.NotContains(t, prompt, "oldest")
	assert.Contains(t, prompt, "User: second")
	assert.Contains(t, prompt, "User: fourth")
	assert.Contains(t, prompt, strings.Repeat("x", 200)+"...")
	assert.NotContains(t, prompt, strings.Repeat("x", 201))
}
