// Package scheduler implements Reef's job scheduler: a bounded-concurrency
// producer/worker pool that dequeues due jobs and directly-scheduled
// profiles by priority, dispatching each to an Executor while honouring
// per-job mutual exclusion, timeouts, dependency ordering, and circuit
// breaking.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reefdata/reef/internal/catalog"
)

// correctionGrace bounds how far in the past a job's stored next_run_time
// may drift before the startup corruption sweep recomputes it.
const correctionGrace = time.Hour

// Config holds the scheduler's tunables, with sane defaults and clamps.
type Config struct {
	MaxConcurrentJobs      int
	CheckIntervalSeconds   int
	GracefulShutdownWindow time.Duration
}

// DefaultConfig returns the scheduler's default tunables. The job-level
// circuit breaker threshold (catalog.DefaultCircuitBreakerThreshold) lives in
// the catalog package rather than here, since RecordOutcome applies it per
// job.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs:      10,
		CheckIntervalSeconds:   10,
		GracefulShutdownWindow: 2 * time.Second,
	}
}

func (c Config) normalise() Config {
	if c.MaxConcurrentJobs < 1 {
		c.MaxConcurrentJobs = 1
	}
	if c.MaxConcurrentJobs > 100 {
		c.MaxConcurrentJobs = 100
	}
	if c.CheckIntervalSeconds < 5 {
		c.CheckIntervalSeconds = 5
	}
	if c.CheckIntervalSeconds > 300 {
		c.CheckIntervalSeconds = 300
	}
	if c.GracefulShutdownWindow <= 0 {
		c.GracefulShutdownWindow = 2 * time.Second
	}
	return c
}

// MetricsRecorder receives scheduler observability events. Satisfied by
// internal/metrics.Recorder; a Scheduler with none installed is a no-op.
type MetricsRecorder interface {
	ObserveTick(queued int)
	ObserveRun(success bool, duration time.Duration)
	ObserveCircuitOpen()
}

type noopMetrics struct{}

func (noopMetrics) ObserveTick(int)               {}
func (noopMetrics) ObserveRun(bool, time.Duration) {}
func (noopMetrics) ObserveCircuitOpen()            {}

// Scheduler is Reef's job scheduler: one producer goroutine (driven by a
// gocron recurring tick) feeding a priority queue, and W worker goroutines
// bounded by Config.MaxConcurrentJobs.
type Scheduler struct {
	cfg      Config
	store    *catalog.Store
	executor Executor
	log      *zap.Logger
	metrics  MetricsRecorder

	queue *jobQueue
	locks *jobLocks
	wg    sync.WaitGroup

	producer gocron.Scheduler

	supervisorCtx    context.Context
	supervisorCancel context.CancelFunc
}

// New builds a Scheduler. Call Start to begin producing and consuming work.
func New(cfg Config, store *catalog.Store, executor Executor, log *zap.Logger) (*Scheduler, error) {
	cfg = cfg.normalise()

	producer, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:              cfg,
		store:            store,
		executor:         executor,
		log:              log.Named("scheduler"),
		metrics:          noopMetrics{},
		queue:            newJobQueue(),
		locks:            newJobLocks(),
		producer:         producer,
		supervisorCtx:    ctx,
		supervisorCancel: cancel,
	}, nil
}

// SetMetrics installs a MetricsRecorder. Call before Start; unset, the
// scheduler simply records nothing.
func (s *Scheduler) SetMetrics(m MetricsRecorder) {
	if m != nil {
		s.metrics = m
	}
}

// Start runs the corruption sweep, launches the worker pool, and starts the
// producer's recurring tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.correctionSweep(ctx); err != nil {
		s.log.Warn("scheduler: corruption sweep failed", zap.Error(err))
	}

	for i := 0; i < s.cfg.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}

	if _, err := s.producer.NewJob(
		gocron.DurationJob(time.Duration(s.cfg.CheckIntervalSeconds)*time.Second),
		gocron.NewTask(func() { s.tick(context.Background()) }),
	); err != nil {
		return err
	}
	s.producer.Start()

	s.log.Info("scheduler started",
		zap.Int("workers", s.cfg.MaxConcurrentJobs),
		zap.Int("check_interval_seconds", s.cfg.CheckIntervalSeconds),
	)
	return nil
}

// Stop orders shutdown as: stop the producer, cancel all running job
// contexts, give them a short graceful window, then clear queues.
func (s *Scheduler) Stop() error {
	if err := s.producer.Shutdown(); err != nil {
		s.log.Warn("scheduler: producer shutdown error", zap.Error(err))
	}

	s.supervisorCancel()
	time.Sleep(s.cfg.GracefulShutdownWindow)

	s.queue.Close()
	s.wg.Wait()

	s.log.Info("scheduler stopped")
	return nil
}

// withSupervisorCancel derives a per-run context that is cancelled either by
// its own timeout or by the scheduler's supervisor cancellation on shutdown.
func (s *Scheduler) withSupervisorCancel(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.supervisorCtx, timeout)
}

// tick is the producer loop body: load due jobs and due standalone profiles,
// enqueue each (the queue itself dedups against queued-or-running work).
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()
	queued := 0

	jobs, err := s.store.Jobs.ListEnabled(ctx)
	if err != nil {
		s.log.Error("scheduler: list enabled jobs failed", zap.Error(err))
	}
	for i := range jobs {
		j := &jobs[i]
		if j.NextRunTime != nil && j.NextRunTime.After(now) {
			continue
		}
		s.queue.Enqueue(runnableFromJob(j))
		queued++
	}

	profiles, err := s.store.Profiles.ListDueForSchedule(ctx, now)
	if err != nil {
		s.log.Error("scheduler: list due profiles failed", zap.Error(err))
	}
	for i := range profiles {
		p := &profiles[i]
		if !profileIsDue(p, now) {
			continue
		}
		s.queue.Enqueue(runnableFromProfile(p))
		queued++
	}

	s.metrics.ObserveTick(queued)
}

// correctionSweep recomputes next_run_time for any enabled job whose stored
// value is more than correctionGrace in the past.
func (s *Scheduler) correctionSweep(ctx context.Context) error {
	jobs, err := s.store.Jobs.ListEnabled(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range jobs {
		j := &jobs[i]
		if j.NextRunTime == nil || now.Sub(*j.NextRunTime) <= correctionGrace {
			continue
		}
		next := computeNextRun(j.ScheduleKind, j.CronExpr, j.IntervalMins, now)
		if err := s.store.Jobs.UpdateSchedule(ctx, j.ID, j.LastRunTime, &next); err != nil {
			s.log.Warn("scheduler: corruption sweep update failed", zap.String("job_id", j.ID.String()), zap.Error(err))
		}
	}
	return nil
}

// TriggerNow bypasses scheduling and enqueues a single profile (export or
// import, by ID) for immediate execution, for the REST/webhook-triggered
// manual-run path; Jobs go through TriggerJobNow.
func (s *Scheduler) TriggerNow(ctx context.Context, profileID uuid.UUID) error {
	s.queue.Enqueue(&runnable{
		key:            "manual:" + profileID.String(),
		profileIDs:     []uuid.UUID{profileID},
		priority:       100,
		timeoutMinutes: 60,
	})
	return nil
}

// TriggerJobNow loads jobID's composed profile list and enqueues it for
// immediate execution with the same priority boost as TriggerNow, for a
// webhook or operator-CLI manual trigger against a Job rather than a single
// profile.
func (s *Scheduler) TriggerJobNow(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.store.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	r := runnableFromJob(job)
	r.key = "manual:" + r.key
	r.priority = 100
	s.queue.Enqueue(r)
	return nil
}

func runnableFromJob(j *catalog.Job) *runnable {
	ids := splitProfileIDs(j.ProfileIDsCSV)
	id := j.ID
	return &runnable{
		key:                "job:" + j.ID.String(),
		jobID:              &id,
		profileIDs:         ids,
		priority:           j.Priority,
		allowConcurrent:    j.AllowConcurrent,
		timeoutMinutes:     j.TimeoutMinutes,
		ignoreDependencies: j.IgnoreDependencies,
		maxRetries:         j.MaxRetries,
	}
}

func runnableFromProfile(p *catalog.Profile) *runnable {
	return &runnable{
		key:            "profile:" + p.ID.String(),
		profileIDs:     []uuid.UUID{p.ID},
		priority:       0,
		timeoutMinutes: 60,
	}
}

func splitProfileIDs(csv string) []uuid.UUID {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if id, err := uuid.Parse(p); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
