package loader

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/page-loader/internal/clock/system"
	"github.com/JakeFAU/page-loader/internal/progress"
)

// Task downloads one resource.
type Task func(ctx context.Context, res Resource) (Download, error)

// Runner executes one Task per resource on an errgroup. Concurrency <= 0
// starts every task at once.
type Runner struct {
	Concurrency int
	JobID       [16]byte
	Site        string
	Emitter     progress.Emitter
	Clock       Clock
	Logger      *zap.Logger
}

// RunAll starts a task for every resource and waits for all of them. The
// first failure cancels the context handed to the remaining tasks and is
// the error returned; tasks not yet started when that happens are skipped.
func (r *Runner) RunAll(ctx context.Context, resources []Resource, task Task) error {
	emitter, clock, logger := r.Emitter, r.Clock, r.Logger
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g, gctx := errgroup.WithContext(ctx)
	if r.Concurrency > 0 {
		g.SetLimit(r.Concurrency)
	}
	for _, res := range resources {
		res := res
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := clock.Now()
			emitter.Emit(r.event(clock, progress.StageResourceStart, res))
			dl, err := task(gctx, res)
			evt := r.event(clock, progress.StageResourceDone, res)
			evt.Dur = clock.Now().Sub(start)
			if dl.StatusCode > 0 {
				evt.StatusClass = progress.ClassifyStatus(dl.StatusCode)
			}
			if err != nil {
				evt.Stage = progress.StageResourceError
				evt.Note = err.Error()
				emitter.Emit(evt)
				logger.Debug("resource failed", zap.String("url", res.URL), zap.Error(err))
				return err
			}
			evt.Bytes = dl.Bytes
			emitter.Emit(evt)
			logger.Debug("resource saved",
				zap.String("url", res.URL),
				zap.String("path", res.DiskPath),
				zap.Int64("bytes", dl.Bytes),
			)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) event(clock Clock, stage progress.Stage, res Resource) progress.Event {
	return progress.Event{
		JobID: r.JobID,
		TS:    clock.Now(),
		Stage: stage,
		Site:  r.Site,
		URL:   res.URL,
		Label: res.Filename,
	}
}
