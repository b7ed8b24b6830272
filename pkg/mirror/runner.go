package mirror

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/marmos91/ftpfs/internal/logger"
)

// Runner executes a set of mirror tasks against one source, running
// unscheduled tasks once and scheduled tasks on their cron expression.
type Runner struct {
	src  Source
	hist *History

	cron      *cron.Cron
	oneShots  []*Task
	scheduled []*Task

	// mu serializes task runs; FTP sessions take one command at a time,
	// so overlapping runs would only interleave badly.
	mu sync.Mutex
}

// NewRunner creates a runner over the given source and history.
func NewRunner(src Source, hist *History) *Runner {
	return &Runner{
		src:  src,
		hist: hist,
		cron: cron.New(),
	}
}

// Add registers a task. Tasks with a schedule run periodically once the
// runner starts; tasks without one run a single time.
func (r *Runner) Add(task *Task) error {
	if task.Schedule == "" {
		r.oneShots = append(r.oneShots, task)
		return nil
	}

	_, err := r.cron.AddFunc(task.Schedule, func() {
		r.runTask(context.Background(), task)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for task %s: %w", task.Schedule, task.Name, err)
	}
	r.scheduled = append(r.scheduled, task)
	return nil
}

// Run executes the registered tasks. One-shot tasks run immediately, in
// order. When scheduled tasks exist, Run then blocks until the context
// is cancelled; otherwise it returns after the one-shots.
//
// The first one-shot failure aborts the run. Scheduled runs log their
// failures and wait for the next tick.
func (r *Runner) Run(ctx context.Context) error {
	for _, task := range r.oneShots {
		if err := r.runTask(ctx, task); err != nil {
			return fmt.Errorf("mirror task %s failed: %w", task.Name, err)
		}
	}

	if len(r.scheduled) == 0 {
		return nil
	}

	logger.Info("Mirror scheduler starting with %d scheduled task(s)", len(r.scheduled))
	r.cron.Start()
	<-ctx.Done()

	// Let an in-flight run finish before returning.
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
	logger.Info("Mirror scheduler stopped")
	return ctx.Err()
}

// runTask runs one task under the runner lock.
func (r *Runner) runTask(ctx context.Context, task *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := task.Run(ctx, r.src, r.hist)
	if err != nil {
		logger.Error("Mirror task %s: run failed: %v", task.Name, err)
	}
	return err
}
