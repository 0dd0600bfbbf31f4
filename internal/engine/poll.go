package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marathonlabs/marathon-cloud/internal/api"
)

// ErrWaitTimeout is returned when a run does not finish within MaxWait.
var ErrWaitTimeout = errors.New("timed out waiting for test run to finish")

// AwaitTerminal polls the run until it reports completion. The first poll
// happens immediately; later ones are PollInterval apart. Any poll error is
// returned at once.
func (e *Engine) AwaitTerminal(ctx context.Context, id string) (*api.TestRun, error) {
	var deadline <-chan time.Time
	if e.cfg.MaxWait > 0 {
		t := time.NewTimer(e.cfg.MaxWait)
		defer t.Stop()
		deadline = t.C
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	polls := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("%w: run %s after %s", ErrWaitTimeout, id, e.cfg.MaxWait)
		case <-timer.C:
		}

		polls++
		run, err := e.cfg.Runs.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("engine: polled run", "id", id, "state", run.State, "poll", polls)
		if run.IsTerminal() {
			return run, nil
		}
		timer.Reset(e.cfg.PollInterval)
	}
}
