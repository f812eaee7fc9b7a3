package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rlmail/rlmail/internal/domain"
	"github.com/rlmail/rlmail/internal/ports"
	"github.com/rlmail/rlmail/internal/session"
	"github.com/rlmail/rlmail/internal/workflows"
)

// AnalysisService orchestrates one analysis turn: load the corpus, route
// the goal, execute the plan and record the turn in the session history.
type AnalysisService struct {
	source   ports.MailSource
	executor *Executor
	router   *Router
	sessions *session.Store
	log      zerolog.Logger
}

// NewAnalysisService creates a service with dependency injection.
func NewAnalysisService(
	source ports.MailSource,
	executor *Executor,
	router *Router,
	sessions *session.Store,
	log zerolog.Logger,
) *AnalysisService {
	return &AnalysisService{
		source:   source,
		executor: executor,
		router:   router,
		sessions: sessions,
		log:      log,
	}
}

// TurnResult is the outcome of one analysis turn.
type TurnResult struct {
	SessionID     string        `json:"session_id"`
	Response      string        `json:"response"`
	Route         RouteDecision `json:"route"`
	Reasoning     string        `json:"reasoning,omitempty"`
	EstimatedCost float64       `json:"estimated_cost"`
	Stats         RunStats      `json:"stats"`
	EmailCount    int           `json:"email_count"`
}

// LoadCorpus fetches the email corpus for a query.
func (s *AnalysisService) LoadCorpus(ctx context.Context, query string, opts ports.FetchOptions) (*domain.Corpus, error) {
	corpus, err := s.source.Fetch(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}
	s.log.Info().Int("count", corpus.Len()).Str("query", query).Msg("corpus loaded")
	return corpus, nil
}

// AnalyzeGoal runs a natural language goal against a corpus. The turn is
// recorded in the session whether the execution succeeded or failed, so a
// follow-up goal sees what happened.
func (s *AnalysisService) AnalyzeGoal(ctx context.Context, sess *session.Record, goal string, corpus *domain.Corpus) (*TurnResult, error) {
	costBefore := s.executor.wf.Runtime().Session().Cost()
	route := Decide(goal, corpus.Len())
	s.log.Info().Bool("use_rlm", route.UseRLM).Str("reason", route.Reason).Msg("route decided")

	var (
		actions   []Action
		reasoning string
	)
	if !route.UseRLM && route.Workflow != "" {
		// Direct path: the keyword match already names the workflow, no
		// interpretation call needed.
		actions = []Action{{
			Function:    route.Workflow,
			Args:        map[string]any{},
			Description: "Direct workflow dispatch",
		}}
		reasoning = route.Reason
	} else {
		var err error
		actions, reasoning, err = s.router.InterpretGoal(ctx, goal, corpus.Len(), sess.History)
		if err != nil {
			s.recordTurn(sess, goal, fmt.Sprintf("[Execution Error: %v]", err), costBefore)
			return nil, err
		}
	}

	estimated := EstimateCost(actions, corpus.Len())
	s.log.Info().Float64("estimated_cost", estimated).Int("actions", len(actions)).Msg("plan ready")

	response, stats := s.executor.RunPlan(ctx, actions, corpus)
	s.recordTurn(sess, goal, response, costBefore)

	return &TurnResult{
		SessionID:     sess.SessionID,
		Response:      response,
		Route:         route,
		Reasoning:     reasoning,
		EstimatedCost: estimated,
		Stats:         stats,
		EmailCount:    corpus.Len(),
	}, nil
}

// ExecutePlan runs a caller-supplied action plan directly, bypassing goal
// interpretation. The plan is the JSON form of []Action.
func (s *AnalysisService) ExecutePlan(ctx context.Context, sess *session.Record, planJSON string, corpus *domain.Corpus) (*TurnResult, error) {
	costBefore := s.executor.wf.Runtime().Session().Cost()

	var actions []Action
	if err := json.Unmarshal([]byte(planJSON), &actions); err != nil {
		return nil, fmt.Errorf("parsing action plan: %w", err)
	}

	response, stats := s.executor.RunPlan(ctx, actions, corpus)
	s.recordTurn(sess, "(direct plan)", response, costBefore)

	return &TurnResult{
		SessionID:  sess.SessionID,
		Response:   response,
		Stats:      stats,
		EmailCount: corpus.Len(),
	}, nil
}

// RunWorkflow dispatches one named workflow without interpretation, used by
// the direct path and by tests.
func (s *AnalysisService) RunWorkflow(ctx context.Context, sess *session.Record, name string, corpus *domain.Corpus) (*TurnResult, error) {
	return s.ExecutePlan(ctx, sess, fmt.Sprintf(`[{"function": %q, "args": {}}]`, name), corpus)
}

// recordTurn appends a turn and persists the session. Only the cost spent
// since costBefore is added, so a resumed record keeps the spend it
// accumulated in earlier processes.
func (s *AnalysisService) recordTurn(sess *session.Record, goal, response string, costBefore float64) {
	spent := s.executor.wf.Runtime().Session().Cost() - costBefore
	sess.History = append(sess.History, session.Turn{Goal: goal, Response: response})
	sess.BudgetUsed += spent
	if err := s.sessions.Save(sess); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist session")
	}
}

// Workflows exposes the underlying workflow library.
func (s *AnalysisService) Workflows() *workflows.Workflows {
	return s.executor.wf
}
