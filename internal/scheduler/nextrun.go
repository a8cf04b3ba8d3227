package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/reefdata/reef/internal/catalog"
)

// cronParser accepts the standard five-field crontab syntax, matching what
// operators already write for Job.CronExpr / Profile.CronExpr.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// computeNextRun resolves a schedule's next run time: Cron -> next occurrence
// from now; Interval -> now + interval minutes; otherwise now + 1h fallback.
func computeNextRun(kind catalog.ScheduleKind, cronExpr string, intervalMins int, from time.Time) time.Time {
	switch kind {
	case catalog.ScheduleCron:
		if sched, err := cronParser.Parse(cronExpr); err == nil {
			return sched.Next(from)
		}
	case catalog.ScheduleInterval:
		mins := intervalMins
		if mins <= 0 {
			mins = 60
		}
		return from.Add(time.Duration(mins) * time.Minute)
	}
	return from.Add(time.Hour)
}

// profileIsDue reports whether a directly-scheduled profile (Cron or
// Interval kind, not wrapped in a Job) should fire now, computed fresh off
// its LastExecutedAt rather than a persisted next-run column.
func profileIsDue(p *catalog.Profile, now time.Time) bool {
	last := p.LastExecutedAt
	if last == nil {
		return true
	}
	next := computeNextRun(p.ScheduleKind, p.CronExpr, p.IntervalMins, *last)
	return !next.After(now)
}
