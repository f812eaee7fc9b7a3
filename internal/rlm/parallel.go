package rlm

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rlmail/rlmail/internal/domain"
)

// PromptPair is one pre-built prompt/context input to a fan-out.
type PromptPair struct {
	Prompt  string
	Context string
}

// ParallelQuery runs pairs through a bounded worker pool and returns one
// result per pair, in input order. A failed call leaves its sentinel in its
// slot; a budget or depth violation cancels outstanding work and returns the
// error. The whole fan-out occupies a single recursion depth slot.
func (r *Runtime) ParallelQuery(ctx context.Context, pairs []PromptPair, opts InvokeOptions) ([]string, error) {
	if len(pairs) == 0 {
		return []string{}, nil
	}

	if err := r.sess.CheckBudget(); err != nil {
		return nil, err
	}
	release, err := r.sess.EnterDepth()
	if err != nil {
		return nil, err
	}
	defer release()

	results := make([]string, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(r.cfg.Workers))

	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			pairOpts := opts
			pairOpts.Context = pair.Context

			result, err := r.invoke(gctx, pair.Prompt, pairOpts)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ParallelMap fans one task prompt over record chunks, deriving each pair's
// context with contextFn. Results come back in chunk order. When the
// runtime carries a checkpoint path the fan-out is resumable.
func (r *Runtime) ParallelMap(ctx context.Context, prompt string, chunks [][]domain.EmailRecord, contextFn func([]domain.EmailRecord) string, opts InvokeOptions) ([]string, error) {
	pairs := make([]PromptPair, len(chunks))
	for i, chunk := range chunks {
		pairs[i] = PromptPair{Prompt: prompt, Context: contextFn(chunk)}
	}
	if r.cfg.Checkpoint != "" {
		return r.CheckpointedQuery(ctx, pairs, r.cfg.Checkpoint, r.cfg.CheckpointInterval, opts)
	}
	return r.ParallelQuery(ctx, pairs, opts)
}
