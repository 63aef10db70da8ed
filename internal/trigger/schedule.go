package trigger

import (
	"context"
	"fmt"
	"time"

	"datadeploy/internal/logger"

	"github.com/robfig/cron/v3"
)

// Schedule fires schedule events from a standard 5-field cron expression.
type Schedule struct {
	expr  string
	loc   *time.Location
	sched cron.Schedule
}

// ParseSchedule parses expr and evaluates it in the IANA zone tz (UTC when empty).
func ParseSchedule(expr, tz string) (*Schedule, error) {
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &Schedule{expr: expr, loc: loc, sched: sched}, nil
}

// Next returns the first activation strictly after t.
func (s *Schedule) Next(t time.Time) time.Time {
	return s.sched.Next(t.In(s.loc))
}

func (s *Schedule) String() string {
	return fmt.Sprintf("%s (%s)", s.expr, s.loc)
}

// Run calls fire with a schedule event at every activation until ctx is done.
func (s *Schedule) Run(ctx context.Context, fire func(Event)) error {
	c := cron.New(cron.WithLocation(s.loc))
	c.Schedule(s.sched, cron.FuncJob(func() {
		fire(NewEvent(KindSchedule, ""))
	}))
	c.Start()
	logger.InfoKV(ctx, "schedule armed", "cron", s.expr, "timezone", s.loc.String(), "next", s.Next(time.Now()))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
