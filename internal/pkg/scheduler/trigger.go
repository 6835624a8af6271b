package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ManuelReschke/ChannelPass/app/models"
)

var ErrInvalidTrigger = errors.New("invalid trigger")

// Trigger describes when a job fires: every Interval, or on a standard
// five-field cron expression evaluated in UTC.
type Trigger struct {
	Kind     string        `json:"kind"`
	Interval time.Duration `json:"interval,omitempty"`
	Cron     string        `json:"cron,omitempty"`
}

func Every(d time.Duration) Trigger {
	return Trigger{Kind: models.TriggerInterval, Interval: d}
}

func Cron(expr string) Trigger {
	return Trigger{Kind: models.TriggerCron, Cron: expr}
}

// Validate checks the trigger can compute a next fire time.
func (t Trigger) Validate() error {
	switch t.Kind {
	case models.TriggerInterval:
		if t.Interval < time.Second {
			return fmt.Errorf("%w: interval must be at least 1s, got %s", ErrInvalidTrigger, t.Interval)
		}
		return nil
	case models.TriggerCron:
		if _, err := cron.ParseStandard(t.Cron); err != nil {
			return fmt.Errorf("%w: cron %q: %v", ErrInvalidTrigger, t.Cron, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTrigger, t.Kind)
	}
}

// Next returns the first fire time strictly after from.
func (t Trigger) Next(from time.Time) (time.Time, error) {
	from = from.UTC()
	switch t.Kind {
	case models.TriggerInterval:
		if t.Interval <= 0 {
			return time.Time{}, fmt.Errorf("%w: non-positive interval", ErrInvalidTrigger)
		}
		return from.Add(t.Interval), nil
	case models.TriggerCron:
		sched, err := cron.ParseStandard(t.Cron)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: cron %q: %v", ErrInvalidTrigger, t.Cron, err)
		}
		return sched.Next(from).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidTrigger, t.Kind)
	}
}

func (t Trigger) String() string {
	if t.Kind == models.TriggerCron {
		return "cron(" + t.Cron + ")"
	}
	return "every " + t.Interval.String()
}

func triggerOf(j *models.ScheduledJob) Trigger {
	return Trigger{
		Kind:     j.TriggerKind,
		Interval: time.Duration(j.IntervalSeconds) * time.Second,
		Cron:     j.CronExpr,
	}
}

func (t Trigger) columns() map[string]interface{} {
	return map[string]interface{}{
		"trigger_kind":     t.Kind,
		"interval_seconds": int64(t.Interval / time.Second),
		"cron_expr":        t.Cron,
	}
}
