package worker

import (
	"context"
	"time"

	"github.com/epivar-cloud/epivar/internal/models"
	"github.com/epivar-cloud/epivar/pkg/log"
)

type StudyClaimer interface {
	ClaimNext(ctx context.Context) (*models.Study, error)
}

type StudyExecutor func(ctx context.Context, study *models.Study)

type ExpiredReclaimer interface {
	ReclaimExpired(ctx context.Context) error
}

// Worker polls the study queue and executes claimed studies
// on its pool until the context ends.
type Worker struct {
	claimer      StudyClaimer
	pool         *Pool
	pollInterval time.Duration
	executor     StudyExecutor
}

func NewWorker(claimer StudyClaimer, pool *Pool, pollInterval time.Duration, executor StudyExecutor) *Worker {
	if claimer == nil {
		panic("worker requires study claimer")
	}
	if pool == nil {
		pool = NewPool(1)
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if executor == nil {
		executor = func(context.Context, *models.Study) {}
	}

	return &Worker{
		claimer:      claimer,
		pool:         pool,
		pollInterval: pollInterval,
		executor:     executor,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.pool.Wait()
			return nil
		default:
		}

		if reclaimer, ok := w.claimer.(ExpiredReclaimer); ok {
			if err := reclaimer.ReclaimExpired(ctx); err != nil && ctx.Err() == nil {
				log.Error("failed to reclaim expired studies", "error", err)
			}
		}

		study, err := w.claimer.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.pool.Wait()
				return nil
			}
			log.Error("failed to claim next study", "error", err)
		}

		if err != nil || study == nil {
			if sleepErr := sleepWithContext(ctx, w.pollInterval); sleepErr != nil {
				w.pool.Wait()
				return nil
			}
			continue
		}

		if err := w.pool.Submit(ctx, func() {
			w.executor(ctx, study)
		}); err != nil {
			if ctx.Err() != nil {
				w.pool.Wait()
				return nil
			}
			return err
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
