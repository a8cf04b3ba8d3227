package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reefdata/reef/internal/catalog"
)

func TestJobLocksTryAcquireExclusive(t *testing.T) {
	l := newJobLocks()

	release, ok := l.tryAcquire("job:1")
	if !ok {
		t.Fatalf("expected first tryAcquire to succeed")
	}
	if _, ok := l.tryAcquire("job:1"); ok {
		t.Fatalf("expected a second tryAcquire on the same key to fail while held")
	}

	release()
	if _, ok := l.tryAcquire("job:1"); !ok {
		t.Fatalf("expected tryAcquire to succeed again after release")
	}
}

func TestJobLocksIndependentKeys(t *testing.T) {
	l := newJobLocks()
	if _, ok := l.tryAcquire("a"); !ok {
		t.Fatalf("expected tryAcquire on key a to succeed")
	}
	if _, ok := l.tryAcquire("b"); !ok {
		t.Fatalf("expected tryAcquire on key b to succeed independently of key a")
	}
}

type countingExecutor struct {
	errs  []error
	calls int
}

func (f *countingExecutor) RunProfile(ctx context.Context, profileID uuid.UUID, triggeredBy catalog.TriggeredBy) error {
	idx := f.calls
	f.calls++
	if idx < len(f.errs) {
		return f.errs[idx]
	}
	return nil
}

func TestRunProfileWithRetrySucceedsAfterFailure(t *testing.T) {
	executor := &countingExecutor{errs: []error{errors.New("transient")}}
	s := &Scheduler{executor: executor, log: zap.NewNop()}

	if err := s.runProfileWithRetry(t.Context(), &runnable{maxRetries: 1}, uuid.New()); err != nil {
		t.Fatalf("runProfileWithRetry: %v", err)
	}
	if executor.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", executor.calls)
	}
}

func TestRunProfileWithRetryExhaustsRetries(t *testing.T) {
	executor := &countingExecutor{errs: []error{errors.New("a"), errors.New("b")}}
	s := &Scheduler{executor: executor, log: zap.NewNop()}

	if err := s.runProfileWithRetry(t.Context(), &runnable{maxRetries: 1}, uuid.New()); err == nil {
		t.Fatalf("expected an error once retries are exhausted")
	}
	if executor.calls != 2 {
		t.Fatalf("expected maxRetries+1 = 2 attempts, got %d", executor.calls)
	}
}

func TestRunProfileWithRetryNoRetryOnZeroMaxRetries(t *testing.T) {
	executor := &countingExecutor{errs: []error{errors.New("boom")}}
	s := &Scheduler{executor: executor, log: zap.NewNop()}

	if err := s.runProfileWithRetry(t.Context(), &runnable{}, uuid.New()); err == nil {
		t.Fatalf("expected the error to propagate with no retries configured")
	}
	if executor.calls != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", executor.calls)
	}
}
