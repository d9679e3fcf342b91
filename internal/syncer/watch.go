package syncer

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "notioncal/internal/log"
)

// Watch runs fn once immediately and then on every tick of the standard
// cron schedule until ctx is cancelled. A tick that arrives while fn is
// still running is dropped, so runs never overlap.
func Watch(ctx context.Context, schedule string, fn func(context.Context)) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { fn(ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	fn(ctx)
	if ctx.Err() != nil {
		return nil
	}

	c.Start()
	appLog.Info("watch started", "schedule", schedule)
	<-ctx.Done()

	// Wait for a running sync to finish.
	<-c.Stop().Done()
	appLog.Info("watch stopped")
	return nil
}
