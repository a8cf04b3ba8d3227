package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reefdata/reef/internal/catalog"
	"github.com/reefdata/reef/internal/emailexport"
	"github.com/reefdata/reef/internal/throttle"
)

// MetricsRecorder receives a count for every dispatched notification.
// Satisfied by internal/metrics.Recorder.
type MetricsRecorder interface {
	ObserveNotification(channel, kind string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveNotification(string, string) {}

// Service delivers Reef's terminal-status and alert notifications over the
// configured channels, gated by a cooldown per internal/throttle. It
// implements profilepipeline.Notifier and importpipeline.Notifier.
type Service struct {
	cfg       Config
	throttler *throttle.Throttler
	log       *zap.Logger
	email     emailexport.Sender
	webhook   *webhookSender
	metrics   MetricsRecorder
}

// New builds a Service. throttler must already be running (caller owns its
// lifecycle, started once at daemon startup alongside the scheduler).
func New(cfg Config, throttler *throttle.Throttler, log *zap.Logger) *Service {
	return &Service{
		cfg:       cfg,
		throttler: throttler,
		log:       log.Named("notify"),
		email:     emailexport.NewSender(cfg.Email),
		webhook:   newWebhookSender(),
		metrics:   noopMetrics{},
	}
}

// SetMetrics installs a MetricsRecorder. Unset, the service simply records
// nothing.
func (s *Service) SetMetrics(m MetricsRecorder) {
	if m != nil {
		s.metrics = m
	}
}

// NotifyExecutionTerminal reports a finished Profile export run, implementing
// profilepipeline.Notifier.
func (s *Service) NotifyExecutionTerminal(ctx context.Context, execution *catalog.Execution, profile *catalog.Profile) error {
	cooldown, ok := executionCooldown(execution.Status)
	if !ok || !s.throttler.ShouldNotify("profile:"+string(execution.Status), profile.ID.String(), cooldown) {
		return nil
	}

	f := merge(
		fields{
			"ProfileName":  profile.Name,
			"ExecutionId":  execution.ID.String(),
			"RowCount":     fmt.Sprintf("%d", execution.RowsRead),
			"ErrorMessage": execution.ErrorMessage,
		},
		timeFields("StartedAt", execution.StartedAt),
		completedFields(execution),
	)

	title, body := executionMessage("Profile", profile.Name, execution.Status, f)
	return s.dispatch(ctx, "profile_"+string(execution.Status), title, body, f)
}

// NotifyImportExecutionTerminal reports a finished ImportProfile run,
// implementing importpipeline.Notifier.
func (s *Service) NotifyImportExecutionTerminal(ctx context.Context, execution *catalog.Execution, profile *catalog.ImportProfile) error {
	cooldown, ok := executionCooldown(execution.Status)
	if !ok || !s.throttler.ShouldNotify("import:"+string(execution.Status), profile.ID.String(), cooldown) {
		return nil
	}

	f := merge(
		fields{
			"ProfileName":  profile.Name,
			"ExecutionId":  execution.ID.String(),
			"RowCount":     fmt.Sprintf("%d", execution.RowsInserted+execution.RowsUpdated),
			"ErrorMessage": execution.ErrorMessage,
		},
		timeFields("StartedAt", execution.StartedAt),
		completedFields(execution),
	)

	title, body := executionMessage("Import", profile.Name, execution.Status, f)
	return s.dispatch(ctx, "import_"+string(execution.Status), title, body, f)
}

// NotifyJobTerminal reports a finished Job run.
func (s *Service) NotifyJobTerminal(ctx context.Context, job *catalog.Job, status catalog.ExecutionStatus) error {
	var cooldown time.Duration
	switch status {
	case catalog.StatusFailed, catalog.StatusAborted:
		cooldown = throttle.CooldownJobFailure
	case catalog.StatusSuccess, catalog.StatusPartialSuccess:
		cooldown = throttle.CooldownJobSuccess
	default:
		return nil
	}
	if !s.throttler.ShouldNotify("job:"+string(status), job.ID.String(), cooldown) {
		return nil
	}

	f := fields{"JobName": job.Name}
	title := fmt.Sprintf("Job %s: %s", status, job.Name)
	body := render("Job {JobName} finished with status "+string(status)+".", f)
	return s.dispatch(ctx, "job_"+string(status), title, body, f)
}

// NotifyDatabaseSizeAlert reports the catalog database crossing a configured
// size threshold.
func (s *Service) NotifyDatabaseSizeAlert(ctx context.Context, currentMb, thresholdMb int) error {
	if !s.throttler.ShouldNotify("database_size_alert", "catalog", throttle.CooldownDatabaseSizeAlert) {
		return nil
	}
	f := merge(fields{
		"CurrentMb":   fmt.Sprintf("%d", currentMb),
		"ThresholdMb": fmt.Sprintf("%d", thresholdMb),
		"ExcessMb":    fmt.Sprintf("%d", currentMb-thresholdMb),
	}, timeFields("CheckedAt", time.Now()))

	title := "Catalog database size alert"
	body := render("Catalog size is {CurrentMb}MB, over the {ThresholdMb}MB threshold by {ExcessMb}MB as of {CheckedAt.Time}.", f)
	return s.dispatch(ctx, "database_size_alert", title, body, f)
}

// NotifyWebhookCreated announces a newly minted webhook trigger. Creation
// events are never throttled (CooldownNone).
func (s *Service) NotifyWebhookCreated(ctx context.Context, trigger *catalog.WebhookTrigger) error {
	s.throttler.ShouldNotify("webhook_created", trigger.ID.String(), throttle.CooldownNone)
	f := fields{"WebhookName": trigger.Name}
	title := fmt.Sprintf("Webhook trigger created: %s", trigger.Name)
	body := render("A new webhook trigger {WebhookName} was created.", f)
	return s.dispatch(ctx, "webhook_created", title, body, f)
}

// dispatch fans out to every configured channel. Delivery failures are
// logged, never returned — a failed notification must never fail the run
// that triggered it.
func (s *Service) dispatch(ctx context.Context, kind, title, body string, f fields) error {
	if s.cfg.emailEnabled() {
		for _, to := range s.cfg.EmailRecipients {
			msg := emailexport.Message{ToAddress: to, Subject: title, HTMLBody: body}
			if err := s.email.Send(ctx, s.cfg.Email, msg); err != nil {
				s.log.Warn("email notification delivery failed", zap.String("kind", kind), zap.Error(err))
			} else {
				s.metrics.ObserveNotification("email", kind)
			}
		}
	}
	if s.cfg.webhookEnabled() {
		if err := s.webhook.send(ctx, s.cfg, kind, title, body, f); err != nil {
			s.log.Warn("webhook notification delivery failed", zap.String("kind", kind), zap.Error(err))
		} else {
			s.metrics.ObserveNotification("webhook", kind)
		}
	}
	return nil
}

func completedFields(execution *catalog.Execution) fields {
	if execution.CompletedAt == nil {
		return fields{}
	}
	f := timeFields("CompletedAt", *execution.CompletedAt)
	f["ExecutionTime"] = execution.CompletedAt.Sub(execution.StartedAt).Round(time.Second).String()
	return f
}

func executionCooldown(status catalog.ExecutionStatus) (time.Duration, bool) {
	switch status {
	case catalog.StatusFailed, catalog.StatusAborted, catalog.StatusCancelled, catalog.StatusPartialSuccess:
		return throttle.CooldownProfileFailure, true
	case catalog.StatusSuccess:
		return throttle.CooldownProfileSuccess, true
	default:
		return 0, false
	}
}

func executionMessage(kind, name string, status catalog.ExecutionStatus, f fields) (title, body string) {
	title = fmt.Sprintf("%s %s: %s", kind, status, name)
	body = render(fmt.Sprintf("%s run {ProfileName} (execution {ExecutionId}) finished with status %s in {ExecutionTime}. Rows: {RowCount}.", kind, status), f)
	if status == catalog.StatusFailed || status == catalog.StatusAborted || status == catalog.StatusPartialSuccess {
		body += " " + render("Error: {ErrorMessage}", f)
	}
	return title, body
}
