package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rlmail/rlmail/internal/rlm"
	"github.com/rlmail/rlmail/internal/session"
)

// smallCorpusThreshold is the size under which simple workflows can skip the
// recursive path entirely.
const smallCorpusThreshold = 100

var simpleWorkflows = map[string]bool{
	"find_action_items": true,
	"inbox_triage":      true,
	"weekly_summary":    true,
	"sender_analysis":   true,
}

var complexWorkflows = map[string]bool{
	"security_triage":          true,
	"detect_attack_chains":     true,
	"phishing_analysis":        true,
	"enrich_with_threat_intel": true,
}

// intentKeywords maps coarse intents to their trigger phrases, checked in
// order.
var intentKeywords = []struct {
	intent   string
	keywords []string
}{
	{"send", []string{"send", "compose", "email to", "write to"}},
	{"read", []string{"read", "show", "display", "get", "fetch"}},
	{"label", []string{"label", "tag", "organize", "folder"}},
	{"triage", []string{"triage", "organize", "categorize", "classify"}},
	{"summarize", []string{"summarize", "summary", "overview"}},
	{"action_items", []string{"action items", "tasks", "todo", "deadlines"}},
	{"security", []string{"security", "alert", "threat", "attack", "phishing", "malware"}},
}

// DetectIntent classifies a goal into a coarse intent, defaulting to
// analyze.
func DetectIntent(goal string) string {
	lower := strings.ToLower(goal)
	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.intent
			}
		}
	}
	return "analyze"
}

// DetectWorkflow maps a goal to a pre-built workflow name, or "" when none
// matches.
func DetectWorkflow(goal string) string {
	lower := strings.ToLower(goal)
	switch {
	case strings.Contains(lower, "action item") || strings.Contains(lower, "todo"):
		return "find_action_items"
	case strings.Contains(lower, "triage") && strings.Contains(lower, "security"):
		return "security_triage"
	case strings.Contains(lower, "triage") || strings.Contains(lower, "categorize"):
		return "inbox_triage"
	case strings.Contains(lower, "summary") || strings.Contains(lower, "summarize"):
		return "weekly_summary"
	case strings.Contains(lower, "sender") && strings.Contains(lower, "analyz"):
		return "sender_analysis"
	case strings.Contains(lower, "attack chain") || strings.Contains(lower, "kill chain"):
		return "detect_attack_chains"
	case strings.Contains(lower, "phishing"):
		return "phishing_analysis"
	}
	return ""
}

// RouteDecision says which execution path a goal should take and why.
type RouteDecision struct {
	UseRLM   bool   `json:"use_rlm"`
	Intent   string `json:"intent"`
	Workflow string `json:"workflow,omitempty"`
	Reason   string `json:"reason"`
}

// Decide picks the execution path for a goal over emailCount emails.
// Security analysis always takes the recursive path; small corpora with
// simple workflows take the direct one.
func Decide(goal string, emailCount int) RouteDecision {
	intent := DetectIntent(goal)
	workflow := DetectWorkflow(goal)
	d := RouteDecision{Intent: intent, Workflow: workflow}

	switch {
	case intent == "send" || intent == "label" || intent == "read":
		d.Reason = fmt.Sprintf("Simple operation (%s), direct path", intent)
	case emailCount >= smallCorpusThreshold:
		d.UseRLM = true
		d.Reason = fmt.Sprintf("Large dataset (%d emails), recursive path", emailCount)
	case intent == "security" || complexWorkflows[workflow]:
		d.UseRLM = true
		d.Reason = "Complex security analysis, recursive path"
	case simpleWorkflows[workflow]:
		d.Reason = fmt.Sprintf("Small dataset (%d emails) with simple workflow, direct path", emailCount)
	default:
		d.UseRLM = true
		d.Reason = "Analysis task, recursive path"
	}
	return d
}

const goalSchema = `{
  "type": "object",
  "required": ["reasoning", "actions"],
  "properties": {
    "reasoning": {"type": "string"},
    "actions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["function", "args"],
        "properties": {
          "function": {"type": "string"},
          "args": {"type": "object"},
          "description": {"type": "string"}
        }
      }
    }
  }
}`

// Router turns a natural language goal into an action plan by asking the
// model once with a fixed meta-prompt over the available functions.
type Router struct {
	rt  *rlm.Runtime
	log zerolog.Logger
}

// NewRouter creates a router over the runtime.
func NewRouter(rt *rlm.Runtime, log zerolog.Logger) *Router {
	return &Router{rt: rt, log: log}
}

// InterpretGoal asks the model for an action plan accomplishing the goal.
// The last three history turns provide conversational context for follow-up
// goals.
func (r *Router) InterpretGoal(ctx context.Context, goal string, emailCount int, history []session.Turn) ([]Action, string, error) {
	prompt := buildGoalPrompt(goal, emailCount, history)

	raw, err := r.rt.InvokeJSON(ctx, prompt, rlm.InvokeOptions{NoFraming: true}, goalSchema, 2)
	if err != nil {
		return nil, "", fmt.Errorf("interpreting goal: %w", err)
	}

	var plan struct {
		Reasoning string   `json:"reasoning"`
		Actions   []Action `json:"actions"`
	}
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, "", fmt.Errorf("interpreting goal: %w", err)
	}
	return plan.Actions, plan.Reasoning, nil
}

// actionCosts is the rough per-email dollar cost of each workflow.
var actionCosts = map[string]float64{
	"security_triage":      0.005,
	"detect_attack_chains": 0.004,
	"phishing_analysis":    0.004,
	"inbox_triage":         0.003,
	"weekly_summary":       0.002,
	"find_action_items":    0.002,
	"parallel_map":         0.003,
	"llm_query":            0.002,
}

// EstimateCost gives a rough dollar estimate for a plan over emailCount
// emails, used for the pre-run budget warning.
func EstimateCost(actions []Action, emailCount int) float64 {
	const baseCost = 0.01

	total := 0.0
	for _, a := range actions {
		total += baseCost
		perEmail, ok := actionCosts[a.Function]
		if !ok {
			perEmail = 0.001
		}
		total += perEmail * float64(emailCount)
	}
	// Round to cents.
	return float64(int(total*100+0.5)) / 100
}

func buildGoalPrompt(goal string, emailCount int, history []session.Turn) string {
	var historyContext strings.Builder
	if len(history) > 0 {
		start := len(history) - 3
		if start < 0 {
			start = 0
		}
		historyContext.WriteString("\n\nConversation History:\n")
		for _, turn := range history[start:] {
			response := turn.Response
			if len(response) > 200 {
				response = response[:200] + "..."
			}
			fmt.Fprintf(&historyContext, "User: %s\nAgent: %s\n\n", turn.Goal, response)
		}
	}

	return fmt.Sprintf(`You are an email analysis assistant. The user has %d emails and wants to accomplish the following goal:

%q
%s
Your task is to determine the sequence of analysis functions to call to accomplish this goal.

Available Functions:

SECURITY WORKFLOWS:
- security_triage: Complete security alert triage (P1-P5 classification, IOCs, kill chains, executive summary)
- detect_attack_chains: Detect multi-stage attack patterns (args: window_minutes, min_alerts_per_chain)
- phishing_analysis: Analyze phishing attempts (credential harvesting, BEC, brand impersonation)
- classify_alerts: Batch classify alerts into P1-P5
- extract_iocs: Extract IPs, domains, file hashes, URLs
- enrich_with_threat_intel: Structure IOCs for threat intel lookup

GENERAL EMAIL WORKFLOWS:
- inbox_triage: Classify emails into urgent/action_required/fyi/newsletter
- weekly_summary: Generate executive summary of weekly emails
- find_action_items: Extract action items with deadlines
- sender_analysis: Summarize the most active senders (args: top_n)
- filter_by_keyword: Filter emails by keyword (args: pattern)
- filter_by_sender: Filter emails by sender (args: pattern)
- llm_query: Make a single analysis call (args: prompt, context)

Return a JSON object with this structure:
{"reasoning": "Brief explanation of why you chose these functions", "actions": [{"function": "function_name", "args": {}, "description": "What this step does"}]}

IMPORTANT GUIDELINES:
1. If the goal is vague, choose the most likely interpretation based on context
2. For security-related goals, prefer security_triage as a comprehensive starting point
3. For inbox management goals, prefer inbox_triage
4. Keep action sequences short (1-3 actions is usually sufficient)
5. Only use functions from the list above
6. Return ONLY valid JSON, no markdown, no explanation outside the JSON`,
		emailCount, goal, historyContext.String())
}
