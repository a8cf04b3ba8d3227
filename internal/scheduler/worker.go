package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reefdata/reef/internal/catalog"
	"github.com/reefdata/reef/internal/depgraph"
)

// jobLocks holds a non-blocking per-job-key mutex, acquired try-lock only and
// never held across queue boundaries.
type jobLocks struct {
	mu    sync.Mutex
	locks map[string]*int32
}

func newJobLocks() *jobLocks {
	return &jobLocks{locks: make(map[string]*int32)}
}

// tryAcquire returns a release func and true if the lock for key was free.
func (l *jobLocks) tryAcquire(key string) (release func(), ok bool) {
	l.mu.Lock()
	flag, exists := l.locks[key]
	if !exists {
		v := int32(0)
		flag = &v
		l.locks[key] = flag
	}
	l.mu.Unlock()

	if !atomic.CompareAndSwapInt32(flag, 0, 1) {
		return nil, false
	}
	return func() { atomic.CompareAndSwapInt32(flag, 1, 0) }, true
}

// worker pulls runnables off the queue, respecting per-job mutual exclusion,
// a bounded per-job timeout, and the job-level circuit breaker.
func (s *Scheduler) workerLoop(id int) {
	defer s.wg.Done()
	for {
		r, ok := s.queue.Pop()
		if !ok {
			return
		}
		s.runOne(r)
		s.queue.Done(r)
	}
}

func (s *Scheduler) runOne(r *runnable) {
	if !r.allowConcurrent {
		release, ok := s.locks.tryAcquire(r.key)
		if !ok {
			s.log.Info("scheduler: skipping overlapping run", zap.String("key", r.key))
			return
		}
		defer release()
	}

	timeout := time.Duration(r.timeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = 60 * time.Minute
	}

	ctx, cancel := s.withSupervisorCancel(timeout)
	defer cancel()

	started := time.Now()
	success := s.executeRunnable(ctx, r)
	s.metrics.ObserveRun(success, time.Since(started))

	if r.jobID != nil {
		bgCtx, bgCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.store.Jobs.RecordOutcome(bgCtx, *r.jobID, success); err != nil {
			s.log.Warn("scheduler: record job outcome failed", zap.String("job_id", r.jobID.String()), zap.Error(err))
		}
		job, err := s.store.Jobs.GetByID(bgCtx, *r.jobID)
		if err == nil {
			if !success && job.CircuitOpen {
				s.metrics.ObserveCircuitOpen()
			}
			now := time.Now().UTC()
			next := computeNextRun(job.ScheduleKind, job.CronExpr, job.IntervalMins, now)
			if err := s.store.Jobs.UpdateSchedule(bgCtx, *r.jobID, &now, &next); err != nil {
				s.log.Warn("scheduler: update job schedule failed", zap.String("job_id", r.jobID.String()), zap.Error(err))
			}
		}
		bgCancel()
	}
}

// executeRunnable resolves execution order across the runnable's profiles
// (unless ignore_dependencies is set) and runs each in turn, stopping at the
// first failure. Reports overall success.
func (s *Scheduler) executeRunnable(ctx context.Context, r *runnable) bool {
	order := r.profileIDs
	if !r.ignoreDependencies && len(r.profileIDs) > 0 {
		resolved, err := s.resolveOrder(r.profileIDs)
		if err != nil {
			s.log.Warn("scheduler: dependency resolution failed, running unordered", zap.Error(err))
		} else {
			order = resolved
		}
	}

	for _, profileID := range order {
		select {
		case <-ctx.Done():
			s.log.Warn("scheduler: run cancelled", zap.String("profile_id", profileID.String()))
			return false
		default:
		}

		allOK, pending, err := s.checkDependenciesCompleted(ctx, r, profileID)
		if err != nil {
			s.log.Warn("scheduler: dependency completion check failed", zap.Error(err))
		} else if !allOK {
			s.log.Info("scheduler: skipping profile, prerequisites not yet completed",
				zap.String("profile_id", profileID.String()), zap.Int("pending", len(pending)))
			continue
		}

		if err := s.runProfileWithRetry(ctx, r, profileID); err != nil {
			s.log.Error("scheduler: profile run failed", zap.String("profile_id", profileID.String()), zap.Error(err))
			return false
		}
	}
	return true
}

// runProfileWithRetry runs profileID, retrying up to r.maxRetries additional
// times on failure with exponential backoff. This is the per-cycle retry
// count; it never disables the job, which is governed solely by the
// circuit breaker in catalog.Job.RecordOutcome.
func (s *Scheduler) runProfileWithRetry(ctx context.Context, r *runnable, profileID uuid.UUID) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			s.log.Info("scheduler: retrying profile run",
				zap.String("profile_id", profileID.String()), zap.Int("attempt", attempt))
		}
		lastErr = s.executor.RunProfile(ctx, profileID, catalog.TriggerSchedule)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (s *Scheduler) resolveOrder(profileIDs []uuid.UUID) ([]uuid.UUID, error) {
	src := ctxDependencyRepo{ctx: context.Background(), deps: s.store.Dependencies}
	seen := make(map[uuid.UUID]bool)
	var order []uuid.UUID
	for _, root := range profileIDs {
		resolved, err := depgraph.GetExecutionOrder(src, root)
		if err != nil {
			return nil, err
		}
		for _, id := range resolved {
			if !seen[id] {
				seen[id] = true
				order = append(order, id)
			}
		}
	}
	return order, nil
}

func (s *Scheduler) checkDependenciesCompleted(ctx context.Context, r *runnable, profileID uuid.UUID) (bool, []uuid.UUID, error) {
	if r.ignoreDependencies {
		return true, nil, nil
	}
	src := ctxDependencyRepo{ctx: ctx, deps: s.store.Dependencies}
	probe := ctxExecutionProbe{ctx: ctx, execs: s.store.Executions}
	return depgraph.CheckCompleted(src, probe, profileID)
}
