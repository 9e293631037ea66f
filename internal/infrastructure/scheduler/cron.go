// Package scheduler adapts robfig/cron to the ports.Scheduler contract.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"SocialMonitor/internal/ports"
)

// CronScheduler triggers the pipeline on a cron expression.
type CronScheduler struct {
	spec     string
	location *time.Location
	cron     *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler configured via cron expression string.
func NewCronScheduler(spec string, location *time.Location) *CronScheduler {
	if location == nil {
		location = time.UTC
	}
	return &CronScheduler{spec: spec, location: location}
}

// Start registers the job and begins ticking. The job runs in cron's own
// goroutine; overlap protection is the orchestrator's single-flight guard,
// not the scheduler's concern.
func (c *CronScheduler) Start(_ context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}
	if c.cron != nil {
		return nil
	}

	c.cron = cron.New(cron.WithLocation(c.location))
	if _, err := c.cron.AddFunc(c.spec, func() {
		job(time.Now().In(c.location))
	}); err != nil {
		c.cron = nil
		return fmt.Errorf("cron add func: %w", err)
	}

	c.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for a running job to return, bounded by
// the caller's context.
func (c *CronScheduler) Stop(ctx context.Context) error {
	if c.cron == nil {
		return nil
	}

	done := c.cron.Stop().Done()
	c.cron = nil

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
