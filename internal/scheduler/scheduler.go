// Package scheduler runs the periodic engine jobs: the futures expiry poll
// and the quota period rollover sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/netprofile/netbill/internal/clock"
	"github.com/netprofile/netbill/internal/config"
	futuredomain "github.com/netprofile/netbill/internal/futurepayment/domain"
	ratingdomain "github.com/netprofile/netbill/internal/rating/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobFuturesPoll    = "futures_poll"
	JobRatingRollover = "rating_rollover"
)

var ErrUnknownJob = errors.New("unknown_job")

// Job is one periodic task. Run returns the number of records it changed.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, now time.Time) (int, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Config     config.Config
	Futures    futuredomain.Service
	Rating     ratingdomain.Service
	Redis      *redis.Client         `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	clock   clock.Clock
	cfg     config.Config
	locker  *locker
	metrics *metrics
	jobs    []Job
}

func New(p Params) (*Scheduler, error) {
	m, err := newMetrics(p.Registerer)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		log:     p.Log.Named("scheduler"),
		clock:   p.Clock,
		cfg:     p.Config,
		locker:  newLocker(p.Redis, p.Config.Scheduler.LockTTL),
		metrics: m,
	}
	s.jobs = []Job{
		{
			Name:     JobFuturesPoll,
			Interval: p.Config.Futures.PollInterval,
			Run: func(ctx context.Context, now time.Time) (int, error) {
				res, err := p.Futures.PollExpired(ctx, now)
				if res.Failed > 0 {
					s.log.Warn("futures poll skipped records", zap.Int("failed", res.Failed))
				}
				return res.Cancelled, err
			},
		},
		{
			Name:     JobRatingRollover,
			Interval: p.Config.Rating.SweepInterval,
			Run: func(ctx context.Context, now time.Time) (int, error) {
				res, err := p.Rating.RunRollover(ctx, now)
				if res.Failed > 0 {
					s.log.Warn("rollover sweep skipped accounts", zap.Int("failed", res.Failed))
				}
				return res.Rolled + res.Blocked, err
			},
		},
	}
	return s, nil
}

func (s *Scheduler) Jobs() []Job {
	return append([]Job(nil), s.jobs...)
}

// RunOnce executes the named job a single time.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.execute(ctx, job)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

// RunForever runs every job immediately and then on its interval until ctx
// is cancelled. Job errors are logged and never stop the loop.
func (s *Scheduler) RunForever(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			s.log.Info("job disabled", zap.String("job", job.Name))
			continue
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		if err := s.execute(ctx, job); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("job failed", zap.String("job", job.Name), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) error {
	run, owner, err := s.ensureJobRun(ctx, job.Name)
	if err != nil {
		s.metrics.observeRun(job.Name, resultError)
		return err
	}
	if !owner {
		s.log.Debug("job held by another process", zap.String("job", job.Name))
		s.metrics.observeRun(job.Name, resultSkipped)
		return nil
	}
	defer s.releaseJobRun(run)

	s.logJobStart(run)
	processed, err := job.Run(ctx, s.clock.Now(ctx))
	run.AddProcessed(processed)
	s.metrics.processed.WithLabelValues(job.Name).Add(float64(processed))
	if err != nil {
		s.logSchedulerError(run, err)
		s.metrics.observeRun(job.Name, resultError)
		return err
	}
	s.logJobFinish(run)
	s.metrics.observeRun(job.Name, resultSuccess)
	return nil
}
