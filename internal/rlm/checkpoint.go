package rlm

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rlmail/rlmail/internal/session"
)

// DefaultCheckpointInterval is the number of completions between checkpoint
// writes when none is configured.
const DefaultCheckpointInterval = 10

// checkpointFile is the on-disk shape of an in-progress fan-out. Partial
// results are keyed by the chunk's input index.
type checkpointFile struct {
	CheckpointID     string            `json:"checkpoint_id"`
	ChunkCount       int               `json:"chunk_count"`
	CompletedIndices []int             `json:"completed_indices"`
	PartialResults   map[string]string `json:"partial_results"`
	SessionSnapshot  session.Usage     `json:"session_snapshot"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// checkpointTracker accumulates completions and flushes them to disk every
// interval new results, and once more at termination.
type checkpointTracker struct {
	path     string
	interval int
	sess     *session.Session

	mu         sync.Mutex
	cp         checkpointFile
	sinceFlush int
}

func newCheckpointTracker(path string, interval, chunkCount int, sess *session.Session) *checkpointTracker {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	return &checkpointTracker{
		path:     path,
		interval: interval,
		sess:     sess,
		cp: checkpointFile{
			CheckpointID:   "cp_" + time.Now().Format("20060102_150405"),
			ChunkCount:     chunkCount,
			PartialResults: map[string]string{},
			CreatedAt:      time.Now(),
		},
	}
}

// resume loads a prior checkpoint for the same chunk count. Mismatched or
// unreadable files are ignored; a resumed run keeps the old checkpoint id.
func (t *checkpointTracker) resume() map[int]string {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return nil
	}
	var prior checkpointFile
	if json.Unmarshal(data, &prior) != nil {
		os.Remove(t.path)
		return nil
	}
	if prior.ChunkCount != t.cp.ChunkCount {
		return nil
	}

	t.cp.CheckpointID = prior.CheckpointID
	t.cp.CreatedAt = prior.CreatedAt
	t.cp.CompletedIndices = prior.CompletedIndices
	t.cp.PartialResults = prior.PartialResults
	if t.cp.PartialResults == nil {
		t.cp.PartialResults = map[string]string{}
	}

	done := make(map[int]string, len(prior.CompletedIndices))
	for _, idx := range prior.CompletedIndices {
		if idx < 0 || idx >= t.cp.ChunkCount {
			continue
		}
		done[idx] = t.cp.PartialResults[strconv.Itoa(idx)]
	}
	return done
}

func (t *checkpointTracker) complete(idx int, result string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cp.CompletedIndices = append(t.cp.CompletedIndices, idx)
	t.cp.PartialResults[strconv.Itoa(idx)] = result
	t.sinceFlush++
	if t.sinceFlush >= t.interval {
		t.flushLocked()
	}
}

// finish writes any pending completions so an interrupted run can resume.
func (t *checkpointTracker) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sinceFlush > 0 {
		t.flushLocked()
	}
}

func (t *checkpointTracker) discard() {
	os.Remove(t.path)
}

// flushLocked writes the checkpoint atomically via temp file and rename.
// Callers hold t.mu.
func (t *checkpointTracker) flushLocked() {
	t.cp.UpdatedAt = time.Now()
	t.cp.SessionSnapshot = t.sess.Usage()

	data, err := json.MarshalIndent(t.cp, "", "  ")
	if err != nil {
		return
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	if os.Rename(tmp, t.path) == nil {
		t.sinceFlush = 0
	}
}

// CheckpointedQuery is ParallelQuery with resumability. Completed slots are
// persisted to path every interval completions; a rerun with the same input
// list skips the slots the checkpoint already holds. The checkpoint file is
// removed once every slot has completed.
func (r *Runtime) CheckpointedQuery(ctx context.Context, pairs []PromptPair, path string, interval int, opts InvokeOptions) ([]string, error) {
	if path == "" {
		return r.ParallelQuery(ctx, pairs, opts)
	}
	if len(pairs) == 0 {
		return []string{}, nil
	}

	tracker := newCheckpointTracker(path, interval, len(pairs), r.sess)
	done := tracker.resume()
	if len(done) > 0 {
		r.log.Info().Int("completed", len(done)).Int("total", len(pairs)).Msg("resuming from checkpoint")
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
	for idx, result := range done {
		results[idx] = result
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(r.cfg.Workers))

	for i, pair := range pairs {
		if _, ok := done[i]; ok {
			continue
		}
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
			tracker.complete(i, result)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Keep what finished so the next run picks up here.
		tracker.finish()
		return nil, err
	}

	tracker.discard()
	return results, nil
}
