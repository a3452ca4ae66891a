// Package janitor cancels rooms that were abandoned in the lobby.
package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper cancels stale rooms; app.RoomService satisfies it.
type Sweeper interface {
	CancelStaleRooms(ctx context.Context, maxAge time.Duration) (int, error)
}

type Janitor struct {
	sweeper  Sweeper
	schedule string
	maxAge   time.Duration
	logger   *zap.Logger
}

func New(sweeper Sweeper, schedule string, maxAge time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{sweeper: sweeper, schedule: schedule, maxAge: maxAge, logger: logger}
}

// Run schedules the sweep and blocks until ctx is done. An in-flight sweep
// finishes before Run returns.
func (j *Janitor) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(j.schedule, func() { j.Sweep(ctx) }); err != nil {
		return err
	}
	j.logger.Info("janitor started", zap.String("schedule", j.schedule), zap.Duration("stale_after", j.maxAge))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Sweep runs one pass.
func (j *Janitor) Sweep(ctx context.Context) {
	n, err := j.sweeper.CancelStaleRooms(ctx, j.maxAge)
	if err != nil {
		j.logger.Error("stale room sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Info("stale rooms cancelled", zap.Int("rooms_cancelled", n))
	}
}
