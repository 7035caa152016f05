// Package scheduler runs the periodic maintenance jobs. Every job is guarded
// by a database lease so that in a multi-replica deployment exactly one
// replica executes it per tick.
package scheduler

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/openexposure/gaen-server/internal/repository"
	"github.com/openexposure/gaen-server/internal/utc"
)

// Cron specs for the built-in jobs, UTC. cleanData fires at minute 1 so a
// fleet restarting on the hour does not stampede immediately.
const (
	SpecCleanData      = "1 * * * *"
	SpecUpdateFakeKeys = "0 2 * * *"
)

// Job is a leased unit of work. MinHold keeps the lease alive after a fast
// run so replicas with skewed clocks cannot re-acquire and re-run; MaxHold
// bounds how long a crashed holder blocks the others.
type Job struct {
	Name    string
	MinHold time.Duration
	MaxHold time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler owns the cron loop and the lease protocol.
type Scheduler struct {
	locks repository.LockStore
	clock utc.Clock
	owner string
	cron  *cron.Cron
	log   *zap.Logger
}

// New constructs a scheduler with a unique owner identity.
func New(locks repository.LockStore, clock utc.Clock, log *zap.Logger) (*Scheduler, error) {
	owner, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		locks: locks,
		clock: clock,
		owner: owner.String(),
		cron:  cron.New(cron.WithLocation(time.UTC)),
		log:   log,
	}, nil
}

// Schedule registers a job under the given cron spec.
func (s *Scheduler) Schedule(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.RunLeased(context.Background(), job)
	})
	return err
}

// Start launches the cron loop; Stop drains it.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunLeased executes the job iff this replica wins the lease. Returns true
// when the job ran.
func (s *Scheduler) RunLeased(ctx context.Context, job Job) bool {
	now := s.clock.Now()
	won, err := s.locks.Acquire(ctx, job.Name, s.owner, now, now.Plus(job.MaxHold))
	if err != nil {
		s.log.Error("lease acquire failed", zap.String("job", job.Name), zap.Error(err))
		return false
	}
	if !won {
		s.log.Debug("lease held elsewhere", zap.String("job", job.Name))
		return false
	}

	if err := job.Run(ctx); err != nil {
		s.log.Error("job failed", zap.String("job", job.Name), zap.Error(err))
	}

	// hold at least MinHold even when the job returned instantly
	releaseAt := s.clock.Now()
	if min := now.Plus(job.MinHold); releaseAt.Before(min) {
		releaseAt = min
	}
	if err := s.locks.Release(ctx, job.Name, s.owner, releaseAt); err != nil {
		s.log.Error("lease release failed", zap.String("job", job.Name), zap.Error(err))
	}
	return true
}
