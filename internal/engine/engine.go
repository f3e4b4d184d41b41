// Package engine is the local execution platform: it evaluates expression
// graphs against a scene catalog and runs export jobs in the background.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gammazero/workerpool"

	"github.com/forest-guardian/index-composite/internal/export"
)

type Notifier interface {
	Success(message string) error
	Error(message string) error
}

type Config struct {
	OutputDir string
	Workers   int
}

// Engine accepts export submissions, persists them as jobs and executes
// them on a worker pool.
type Engine struct {
	evaluator *Evaluator
	store     *export.Store
	writer    Writer
	notifier  Notifier
	pool      *workerpool.WorkerPool
	outputDir string
	logger    *slog.Logger
}

func New(cfg Config, evaluator *Evaluator, store *export.Store, writer Writer, notifier Notifier) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	return &Engine{
		evaluator: evaluator,
		store:     store,
		writer:    writer,
		notifier:  notifier,
		pool:      workerpool.New(workers),
		outputDir: cfg.OutputDir,
		logger:    slog.Default().With("component", "engine"),
	}
}

func (e *Engine) ExportImage(ctx context.Context, task export.ImageTask) (export.Job, error) {
	if err := task.Validate(); err != nil {
		return export.Job{}, err
	}
	if err := task.Region.Validate(); err != nil {
		return export.Job{}, err
	}
	dest := export.Destination(e.outputDir, task.Folder, task.FilePrefix, task.Format)

	return e.submit(ctx, export.KindImage, task.Description, dest, func(ctx context.Context) error {
		img, err := e.evaluator.Evaluate(ctx, task.Image)
		if err != nil {
			return fmt.Errorf("failed to evaluate image: %w", err)
		}
		img = fillEmptyBands(img, task.Region, task.Scale)
		opts := ImageOptions{Region: task.Region, Scale: task.Scale, CloudOptimized: task.CloudOptimized}
		if err := e.writer.WriteImage(ctx, dest, img, opts); err != nil {
			return err
		}
		return writeStats(StatsPath(dest), img)
	})
}

func (e *Engine) ExportTable(ctx context.Context, task export.TableTask) (export.Job, error) {
	if err := task.Validate(); err != nil {
		return export.Job{}, err
	}
	dest := export.Destination(e.outputDir, task.Folder, task.FilePrefix, task.Format)

	return e.submit(ctx, export.KindTable, task.Description, dest, func(ctx context.Context) error {
		return e.writer.WriteFeatures(ctx, dest, task.Collection)
	})
}

func (e *Engine) Status(ctx context.Context, id string) (export.Job, error) {
	return e.store.Get(ctx, id)
}

func (e *Engine) Wait(ctx context.Context, id string, interval time.Duration) (export.Job, error) {
	return export.Wait(ctx, e, id, interval)
}

func (e *Engine) Jobs(ctx context.Context, state export.State) ([]export.Job, error) {
	return e.store.List(ctx, state)
}

// Close waits for queued jobs to finish.
func (e *Engine) Close() {
	e.pool.StopWait()
}

func (e *Engine) submit(ctx context.Context, kind export.Kind, description, dest string, run func(context.Context) error) (export.Job, error) {
	job := export.NewJob(kind, description, dest)
	if err := e.store.Create(ctx, job); err != nil {
		return export.Job{}, err
	}
	e.logger.Info("export submitted", "job", job.ID, "kind", kind, "destination", dest)

	e.pool.Submit(func() {
		// jobs outlive the request that submitted them
		e.execute(context.Background(), job, run)
	})
	return job, nil
}

func (e *Engine) execute(ctx context.Context, job export.Job, run func(context.Context) error) {
	logger := e.logger.With("job", job.ID)
	if err := e.store.UpdateState(ctx, job.ID, export.StateRunning, ""); err != nil {
		logger.Error("failed to mark job running", "error", err)
		return
	}

	start := time.Now()
	if err := run(ctx); err != nil {
		logger.Error("export failed", "error", err)
		if err := e.store.UpdateState(ctx, job.ID, export.StateFailed, err.Error()); err != nil {
			logger.Error("failed to mark job failed", "error", err)
		}
		e.notify(func(n Notifier) error {
			return n.Error(fmt.Sprintf("%s (%s): %v", job.Description, job.ID, err))
		})
		return
	}

	if err := e.store.UpdateState(ctx, job.ID, export.StateCompleted, ""); err != nil {
		logger.Error("failed to mark job completed", "error", err)
		return
	}
	logger.Info("export completed", "destination", job.Destination, "duration", time.Since(start))
	e.notify(func(n Notifier) error {
		return n.Success(fmt.Sprintf("%s exported to %s", job.Description, job.Destination))
	})
}

func (e *Engine) notify(send func(Notifier) error) {
	if e.notifier == nil {
		return
	}
	if err := send(e.notifier); err != nil {
		e.logger.Warn("failed to send notification", "error", err)
	}
}
