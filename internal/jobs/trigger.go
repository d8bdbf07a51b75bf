package jobs

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger decides whether a job is due for one user. The returned mark is
// what gets stored as lastRun.
type Trigger interface {
	Due(now time.Time, loc *time.Location, lastRun time.Time, hasRun bool) (mark time.Time, due bool)
	Next(now time.Time, loc *time.Location) time.Time
	String() string
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronTrigger fires once per slot of a five-field cron spec evaluated in the
// user's local time. A slot is only honoured within grace of now, so a long
// outage does not replay missed greetings.
type CronTrigger struct {
	spec     string
	grace    time.Duration
	schedule cron.Schedule
}

func NewCronTrigger(spec string, grace time.Duration) (*CronTrigger, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	if grace <= 0 {
		grace = time.Hour
	}
	return &CronTrigger{spec: spec, grace: grace, schedule: sched}, nil
}

func mustCron(spec string, grace time.Duration) *CronTrigger {
	t, err := NewCronTrigger(spec, grace)
	if err != nil {
		panic(err)
	}
	return t
}

// LatestSlot returns the newest slot in (now-grace, now].
func (c *CronTrigger) LatestSlot(now time.Time, loc *time.Location) (time.Time, bool) {
	local := now.In(loc)
	var latest time.Time
	for t := c.schedule.Next(local.Add(-c.grace)); !t.After(local); t = c.schedule.Next(t) {
		latest = t
	}
	return latest, !latest.IsZero()
}

func (c *CronTrigger) Due(now time.Time, loc *time.Location, lastRun time.Time, hasRun bool) (time.Time, bool) {
	slot, ok := c.LatestSlot(now, loc)
	if !ok {
		return time.Time{}, false
	}
	if hasRun && !slot.After(lastRun) {
		return time.Time{}, false
	}
	return slot.UTC(), true
}

func (c *CronTrigger) Next(now time.Time, loc *time.Location) time.Time {
	return c.schedule.Next(now.In(loc))
}

func (c *CronTrigger) String() string { return "cron " + c.spec }

// PeriodTrigger fires when at least Period has passed since the last run.
type PeriodTrigger struct {
	Period time.Duration
}

func (p PeriodTrigger) Due(now time.Time, _ *time.Location, lastRun time.Time, hasRun bool) (time.Time, bool) {
	if hasRun && now.Sub(lastRun) < p.Period {
		return time.Time{}, false
	}
	return now.UTC(), true
}

func (p PeriodTrigger) Next(now time.Time, _ *time.Location) time.Time {
	return now.Add(p.Period)
}

func (p PeriodTrigger) String() string { return "every " + p.Period.String() }

// EveryTick runs on every scheduler tick; the job guards itself.
type EveryTick struct{}

func (EveryTick) Due(now time.Time, _ *time.Location, _ time.Time, _ bool) (time.Time, bool) {
	return now.UTC(), true
}

func (EveryTick) Next(now time.Time, _ *time.Location) time.Time { return now }

func (EveryTick) String() string { return "every tick" }
