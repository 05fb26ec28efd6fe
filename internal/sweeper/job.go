package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	obsmetrics "github.com/smallbiznis/mealsub/internal/observability/metrics"
	"go.uber.org/zap"
)

// runJob bounds fn by timeout. Running out of that time is a soft timeout:
// it is counted and logged but not returned, and whatever was left is picked
// up by the next run. Cancellation of parent is returned as an error.
func (s *Sweeper) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	sweepMetrics := obsmetrics.Sweeper()
	sweepMetrics.IncJobRun(name)

	err := fn(ctx)
	sweepMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := parent.Err() == nil && errors.Is(err, context.DeadlineExceeded)
	if isTimeout {
		sweepMetrics.IncJobTimeout(name)
	}
	sweepMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}
