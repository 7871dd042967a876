package ingest

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/skeinhq/skein/errors"
)

// DefaultCronTolerance is the default due-slot recency window: one
// 60-second scheduler poll plus slack for tick jitter. The tolerance
// must exceed the external polling interval or due slots can be missed.
const DefaultCronTolerance = 65 * time.Second

// CronEvaluator computes cron due slots against a supplied reference
// time, decoupled from wall time.
type CronEvaluator struct {
	parser    cron.Parser
	tolerance time.Duration
}

// NewCronEvaluator creates an evaluator for standard 5-field cron
// expressions. A zero tolerance takes DefaultCronTolerance.
func NewCronEvaluator(tolerance time.Duration) *CronEvaluator {
	if tolerance <= 0 {
		tolerance = DefaultCronTolerance
	}
	return &CronEvaluator{
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		tolerance: tolerance,
	}
}

// Tolerance returns the configured recency window.
func (e *CronEvaluator) Tolerance() time.Duration {
	return e.tolerance
}

// DueSlot returns the most recent scheduled fire time at or before ref,
// provided it falls within the tolerance window. ok is false when no
// fire time falls within (ref-tolerance, ref].
func (e *CronEvaluator) DueSlot(expression string, ref time.Time) (slot time.Time, ok bool, err error) {
	sched, err := e.parser.Parse(expression)
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "invalid cron expression %q", expression)
	}

	// Walk forward from the window start; the last fire at or before
	// ref is the due slot.
	cursor := ref.Add(-e.tolerance)
	for {
		next := sched.Next(cursor)
		if next.IsZero() || next.After(ref) {
			break
		}
		slot, ok = next, true
		cursor = next
	}
	return slot, ok, nil
}

// IsDue reports whether a cron task is due at ref. A task is due iff a
// fire slot falls within the tolerance window before ref AND lastRun is
// unset or strictly older than that slot. The lastRun comparison makes
// firing idempotent per slot: a scheduler polling faster than the cron
// interval re-observes the same slot but fires it once.
func (e *CronEvaluator) IsDue(expression string, lastRun *time.Time, ref time.Time) (bool, time.Time, error) {
	slot, ok, err := e.DueSlot(expression, ref)
	if err != nil {
		return false, time.Time{}, err
	}
	if !ok {
		return false, time.Time{}, nil
	}
	if lastRun != nil && !lastRun.Before(slot) {
		return false, slot, nil
	}
	return true, slot, nil
}
