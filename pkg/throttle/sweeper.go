package throttle

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/apigate/pkg/observability"
)

// Sweepable stores drop expired counters on demand
type Sweepable interface {
	Sweep(ctx context.Context) (int, error)
}

// Sweeper runs a store's Sweep on a cron schedule
type Sweeper struct {
	cron   *cron.Cron
	store  Sweepable
	logger *observability.Logger
}

// NewSweeper schedules store sweeps, e.g. "@every 1m"
func NewSweeper(schedule string, store Sweepable, logger *observability.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &Sweeper{cron: cron.New(), store: store, logger: logger}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("schedule counter sweep %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	removed, err := s.store.Sweep(context.Background())
	if err != nil {
		s.logger.WithError(err).Warn("Counter sweep failed")
		return
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Debug("Swept expired counters")
	}
}

// Start begins the schedule in the background
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule. The returned context is done once a running sweep
// has finished.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}
