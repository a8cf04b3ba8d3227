package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reefdata/reef/internal/catalog"
)

// ErrRateLimited is returned when a token's hourly request cap is exceeded.
var ErrRateLimited = errors.New("webhook: rate limit exceeded")

// Trigger starts a profile, import profile, or job run, implemented by the
// scheduler adapter wired in cmd/reefd. Kept narrow so this package never
// depends on internal/scheduler directly.
type Trigger interface {
	TriggerNow(ctx context.Context, targetID uuid.UUID) error
	TriggerJobNow(ctx context.Context, jobID uuid.UUID) error
}

// Service validates incoming webhook calls against stored triggers and
// dispatches the matching profile, import profile, or job run.
type Service struct {
	webhooks catalog.WebhookRepository
	trigger  Trigger
	limiter  *RateLimiter
}

// NewService builds a Service.
func NewService(webhooks catalog.WebhookRepository, trigger Trigger, limiter *RateLimiter) *Service {
	if limiter == nil {
		limiter = NewRateLimiter(nil)
	}
	return &Service{webhooks: webhooks, trigger: trigger, limiter: limiter}
}

// Invoke validates token, applies its rate limit, records the trigger, and
// dispatches the run. Returns ErrInvalidToken for an unknown/inactive token
// and ErrRateLimited once the hourly cap is exceeded.
func (s *Service) Invoke(ctx context.Context, token string) (*catalog.WebhookTrigger, error) {
	if !LooksLikeToken(token) {
		return nil, ErrInvalidToken
	}

	hash := HashToken(token)
	wh, err := s.webhooks.GetByTokenHash(ctx, hash)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !wh.Active || !Matches(token, wh.TokenHash) {
		return nil, ErrInvalidToken
	}

	if !s.limiter.Allow(wh.ID, wh.MaxPerHour) {
		return nil, ErrRateLimited
	}

	if err := s.dispatch(ctx, wh); err != nil {
		return nil, fmt.Errorf("webhook: dispatch: %w", err)
	}

	if err := s.webhooks.RecordTrigger(ctx, wh.ID, time.Now().UTC()); err != nil {
		return wh, fmt.Errorf("webhook: record trigger: %w", err)
	}
	return wh, nil
}

func (s *Service) dispatch(ctx context.Context, wh *catalog.WebhookTrigger) error {
	switch wh.TargetKind {
	case catalog.WebhookTargetJob:
		return s.trigger.TriggerJobNow(ctx, wh.TargetID)
	default: // Profile, ImportProfile
		return s.trigger.TriggerNow(ctx, wh.TargetID)
	}
}

// CreateTrigger generates a fresh token, stores only its hash, and returns
// the raw token to the caller exactly once — it is never recoverable after
// this call returns.
func CreateTrigger(ctx context.Context, webhooks catalog.WebhookRepository, name string, targetKind catalog.WebhookTargetKind, targetID uuid.UUID, maxPerHour int) (token string, trigger *catalog.WebhookTrigger, err error) {
	token, err = GenerateToken()
	if err != nil {
		return "", nil, err
	}
	trigger = &catalog.WebhookTrigger{
		Name:       name,
		TargetKind: targetKind,
		TargetID:   targetID,
		TokenHash:  HashToken(token),
		Active:     true,
		MaxPerHour: maxPerHour,
	}
	if err := webhooks.Create(ctx, trigger); err != nil {
		return "", nil, fmt.Errorf("webhook: create trigger: %w", err)
	}
	return token, trigger, nil
}
