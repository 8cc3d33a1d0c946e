package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type jobRun struct {
	ID        string
	Job       string
	StartedAt time.Time
	processed int
}

func (r *jobRun) AddProcessed(n int) {
	r.processed += n
}

func (s *Scheduler) ensureJobRun(ctx context.Context, job string) (*jobRun, bool, error) {
	run := &jobRun{
		ID:        uuid.NewString(),
		Job:       job,
		StartedAt: time.Now(),
	}

	owner, err := s.locker.acquire(ctx, job, run.ID)
	if err != nil {
		return nil, false, err
	}
	return run, owner, nil
}

func (s *Scheduler) releaseJobRun(run *jobRun) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.locker.release(ctx, run.Job, run.ID); err != nil {
		s.log.Warn("release job lock", zap.String("job", run.Job), zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (s *Scheduler) logJobStart(run *jobRun) {
	s.log.Info("job started", zap.String("job", run.Job), zap.String("run_id", run.ID))
}

func (s *Scheduler) logJobFinish(run *jobRun) {
	s.log.Info("job finished",
		zap.String("job", run.Job),
		zap.String("run_id", run.ID),
		zap.Int("processed", run.processed),
		zap.Duration("took", time.Since(run.StartedAt)),
	)
}

func (s *Scheduler) logSchedulerError(run *jobRun, err error) {
	s.log.Error("job run failed",
		zap.String("job", run.Job),
		zap.String("run_id", run.ID),
		zap.Int("processed", run.processed),
		zap.Error(err),
	)
}
