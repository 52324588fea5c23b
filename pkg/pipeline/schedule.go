package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule determines when the next pipeline pass runs. A cron.Schedule
// satisfies it.
type Schedule interface {
	Next(from time.Time) time.Time
}

// ScheduleFunc adapts a function to Schedule.
type ScheduleFunc func(from time.Time) time.Time

func (f ScheduleFunc) Next(from time.Time) time.Time { return f(from) }

// Every starts a pass d after the previous one was scheduled.
func Every(d time.Duration) Schedule {
	return ScheduleFunc(func(from time.Time) time.Time { return from.Add(d) })
}

// Daily starts a pass at hour:minute UTC, e.g. overnight after the
// day's scans were uploaded.
func Daily(hour, minute int) Schedule {
	return ScheduleFunc(func(from time.Time) time.Time {
		from = from.UTC()
		next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, time.UTC)
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	})
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron reads a five-field cron expression or a descriptor such as
// "@daily", as used by the schedule setting.
func ParseCron(expr string) (Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("pipeline: schedule %q: %w", expr, err)
	}
	return sched, nil
}

// Cron is ParseCron for expressions known to be valid. It panics otherwise.
func Cron(expr string) Schedule {
	s, err := ParseCron(expr)
	if err != nil {
		panic(err)
	}
	return s
}

// RunScheduled runs plan at every tick of sched until ctx is done. A failed
// pass is logged and does not stop the schedule.
func (d *Driver) RunScheduled(ctx context.Context, sched Schedule, plan Plan) error {
	for {
		now := d.clock.Now()
		next := sched.Next(now)
		d.logger.Info("next pipeline pass scheduled", "at", next)
		if err := d.clock.Sleep(ctx, next.Sub(now)); err != nil {
			return err
		}

		sum, err := d.Run(ctx, plan)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("scheduled pass failed", "error", err, "succeeded", sum.Succeeded, "failed", sum.Failed)
		}
	}
}
