// Package expiry deletes readings whose TTL has passed from stores without
// native expiry.
package expiry

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type Sweeper struct {
	Purger  Purger
	Timeout time.Duration
	Now     func() time.Time

	cron *cron.Cron
}

func New(p Purger) *Sweeper {
	return &Sweeper{Purger: p, Timeout: time.Minute}
}

// RunOnce performs a single sweep and returns the number of deleted rows.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	n, err := s.Purger.PurgeExpired(ctx, now().UTC())
	if err != nil {
		slog.Error("expiry sweep failed", "error", err)
		return 0, err
	}
	if n > 0 {
		slog.Info("expired readings purged", "count", n)
	}
	return n, nil
}

// Start schedules sweeps with a standard cron expression or descriptor such as
// "@hourly". Sweeps stop when ctx is done.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		_, _ = s.RunOnce(ctx)
	}); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
