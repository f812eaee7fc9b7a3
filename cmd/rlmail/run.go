package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rlmail/rlmail/internal/adapters/cache"
	"github.com/rlmail/rlmail/internal/adapters/mailsource"
	"github.com/rlmail/rlmail/internal/adapters/model"
	"github.com/rlmail/rlmail/internal/adapters/threatstore"
	"github.com/rlmail/rlmail/internal/application"
	"github.com/rlmail/rlmail/internal/domain"
	"github.com/rlmail/rlmail/internal/ports"
	"github.com/rlmail/rlmail/internal/rlm"
	"github.com/rlmail/rlmail/internal/session"
	"github.com/rlmail/rlmail/internal/workflows"
)

const defaultModel = "claude-sonnet-4-20250514"

// smallDatasetWarning is the corpus size below which the recursive path is
// usually not worth its cost.
const smallDatasetWarning = 100

type runOptions struct {
	query    string
	loadFile string

	maxResults int
	format     string

	code     string
	codeFile string

	modelID   string
	maxBudget float64
	maxCalls  int
	maxDepth  int
	workers   int

	noCache  bool
	cacheDir string
	cacheTTL int

	checkpoint         string
	checkpointInterval int

	noFraming bool
	force     bool
	sessionID string
}

func newRunCommand(verbose, jsonOutput *bool) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [goal]",
		Short: "Run an analysis goal or action plan over an email corpus",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := ""
			if len(args) == 1 {
				goal = args[0]
			}
			return runAnalysis(cmd.Context(), goal, opts, *verbose, *jsonOutput)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.query, "query", "", "mail provider search query")
	f.StringVar(&opts.loadFile, "load-file", "", "load corpus from a saved result file")
	f.IntVar(&opts.maxResults, "max-results", 200, "maximum emails to load")
	f.StringVar(&opts.format, "format", "metadata", "email detail level (minimal, metadata, full)")
	f.StringVar(&opts.code, "code", "", "action plan to execute (JSON array)")
	f.StringVar(&opts.codeFile, "code-file", "", "load action plan from file")
	f.StringVar(&opts.modelID, "model", defaultModel, "model id for analysis calls")
	f.Float64Var(&opts.maxBudget, "max-budget", 5.0, "budget limit in USD")
	f.IntVar(&opts.maxCalls, "max-calls", 100, "maximum model calls")
	f.IntVar(&opts.maxDepth, "max-depth", 3, "maximum recursion depth")
	f.IntVar(&opts.workers, "workers", 5, "parallel fan-out workers")
	f.BoolVar(&opts.noCache, "no-cache", false, "disable the query result cache")
	f.StringVar(&opts.cacheDir, "cache-dir", "", "cache directory (default under the system temp dir)")
	f.IntVar(&opts.cacheTTL, "cache-ttl", 24, "cache expiry in hours")
	f.StringVar(&opts.checkpoint, "checkpoint", "", "checkpoint file for resumable fan-outs")
	f.IntVar(&opts.checkpointInterval, "checkpoint-interval", 10, "completions between checkpoint writes")
	f.BoolVar(&opts.noFraming, "no-rlm-framing", false, "drop the sub-query framing preamble")
	f.BoolVar(&opts.force, "force", false, "suppress the small-dataset warning")
	f.StringVar(&opts.sessionID, "session", "", "resume an existing session by id")

	cmd.MarkFlagsMutuallyExclusive("query", "load-file")
	cmd.MarkFlagsMutuallyExclusive("code", "code-file")

	return cmd
}

func runAnalysis(ctx context.Context, goal string, opts *runOptions, verbose, jsonOutput bool) error {
	log := newLogger(verbose, jsonOutput)

	if opts.query == "" && opts.loadFile == "" {
		return errors.New("one of --query or --load-file is required")
	}
	plan := opts.code
	if opts.codeFile != "" {
		data, err := os.ReadFile(opts.codeFile)
		if err != nil {
			return fmt.Errorf("reading plan file: %w", err)
		}
		plan = string(data)
	}
	if goal == "" && plan == "" {
		return errors.New("provide an analysis goal or an action plan via --code/--code-file")
	}
	format := domain.FormatLevel(opts.format)
	switch format {
	case domain.FormatMinimal, domain.FormatMetadata, domain.FormatFull:
	default:
		return fmt.Errorf("invalid --format %q (want minimal, metadata or full)", opts.format)
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return errors.New("ANTHROPIC_API_KEY is not set")
	}

	endpoint, err := model.NewAnthropicEndpoint(apiKey, log)
	if err != nil {
		return err
	}

	var qc *cache.QueryCache
	if !opts.noCache {
		qc, err = cache.NewQueryCache(opts.cacheDir, time.Duration(opts.cacheTTL)*time.Hour, log)
		if err != nil {
			return fmt.Errorf("initializing cache: %w", err)
		}
	}

	store, err := session.NewStore("", log)
	if err != nil {
		return fmt.Errorf("initializing session store: %w", err)
	}
	record, err := loadOrCreateSession(store, opts.sessionID, opts.maxBudget)
	if err != nil {
		return err
	}
	// A resumed session only gets what its record has left, so the declared
	// budget holds across processes.
	if record.BudgetRemaining <= 0 {
		return fmt.Errorf("session %s has no remaining budget ($%.4f of $%.2f spent)",
			record.SessionID, record.BudgetUsed, record.BudgetLimit)
	}

	sess := session.New(session.Limits{
		MaxBudget: record.BudgetRemaining,
		MaxCalls:  opts.maxCalls,
		MaxDepth:  opts.maxDepth,
	})

	rt := rlm.New(endpoint, qc, sess, rlm.Config{
		Model:              opts.modelID,
		Framing:            !opts.noFraming,
		Workers:            opts.workers,
		Checkpoint:         opts.checkpoint,
		CheckpointInterval: opts.checkpointInterval,
	}, log)

	wf := workflows.New(rt, log)
	if !opts.noCache {
		sc, err := cache.NewSecurityCache("", 0, log)
		if err != nil {
			return fmt.Errorf("initializing security cache: %w", err)
		}
		wf = wf.WithSecurityCache(sc)
	}
	intel, err := threatstore.New("", 0, log)
	if err != nil {
		return fmt.Errorf("initializing threat store: %w", err)
	}
	wf = wf.WithThreatStore(intel)
	executor := application.NewExecutor(wf, log)
	router := application.NewRouter(rt, log)

	var source ports.MailSource
	if opts.loadFile != "" {
		source = mailsource.NewFileSource(opts.loadFile)
	} else {
		source = mailsource.NewPagingSource(mailsource.NewDemoClient(), log)
	}

	service := application.NewAnalysisService(source, executor, router, store, log)

	corpus, err := service.LoadCorpus(ctx, opts.query, ports.FetchOptions{
		MaxResults: opts.maxResults,
		Format:     format,
	})
	if err != nil {
		return err
	}
	if corpus.Len() < smallDatasetWarning && !opts.force {
		log.Warn().Int("count", corpus.Len()).Msg("small corpus, recursive analysis may not be worth the cost (--force to silence)")
	}

	var result *application.TurnResult
	if plan != "" {
		result, err = service.ExecutePlan(ctx, record, plan, corpus)
	} else {
		result, err = service.AnalyzeGoal(ctx, record, goal, corpus)
	}
	if err != nil {
		if ctx.Err() != nil {
			return errCancelled
		}
		return err
	}
	if ctx.Err() != nil {
		return errCancelled
	}

	return printResult(result, jsonOutput, verbose)
}

func loadOrCreateSession(store *session.Store, id string, budget float64) (*session.Record, error) {
	if id != "" {
		record, err := store.Load(id)
		if err != nil {
			return nil, fmt.Errorf("resuming session: %w", err)
		}
		return record, nil
	}
	return store.Create(budget, nil)
}

func printResult(result *application.TurnResult, jsonOutput, verbose bool) error {
	if jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(result.Response)
	if verbose {
		fmt.Fprintf(os.Stderr, "\nsession %s: %d calls, $%.4f spent, %d cache hits\n",
			result.SessionID, result.Stats.Usage.Calls, result.Stats.Usage.Cost, result.Stats.Usage.CacheHits)
	}
	return nil
}
