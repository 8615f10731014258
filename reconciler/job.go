package reconciler

import (
	"context"
	"time"

	"github.com/omni/rollup-bridge-reconciler/logging"
)

// Job runs Func every Interval. Ticks never overlap: a tick that overruns
// the interval is followed by at most one immediate tick, the rest are dropped.
type Job struct {
	logger   logging.Logger
	Name     string
	Interval time.Duration
	Func     func(ctx context.Context) error
}

func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		start := time.Now()
		err := j.Func(ctx)
		TickDuration.WithLabelValues(j.Name).Observe(time.Since(start).Seconds())
		if err != nil && ctx.Err() == nil {
			j.logger.WithError(err).Error("failed to process job iteration")
		} else {
			j.logger.WithField("duration", time.Since(start)).Debug("job iteration completed")
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return
		}
	}
}
