package service

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drops state that has aged out and reports how much it removed.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// HousekeepingService periodically sweeps in-process state, such as the
// memory rate limiter windows and the memory denylist, so idle keys do not
// accumulate.
type HousekeepingService struct {
	Logger   *slog.Logger
	Interval time.Duration

	sweepers []namedSweeper

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

type namedSweeper struct {
	name string
	s    Sweeper
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 minute.
func NewHousekeepingService(logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Minute
	}

	return &HousekeepingService{
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Register adds a sweeper. Call before Start.
func (s *HousekeepingService) Register(name string, sw Sweeper) {
	s.sweepers = append(s.sweepers, namedSweeper{name: name, s: sw})
}

// Len reports how many sweepers are registered.
func (s *HousekeepingService) Len() int { return len(s.sweepers) }

// Start begins the background worker that periodically runs cleanup.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "sweepers", len(s.sweepers))
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs every sweeper once. Failures in one won't stop the others.
func (s *HousekeepingService) Sweep(ctx context.Context) int {
	var total int
	for _, ns := range s.sweepers {
		n, err := ns.s.Sweep(ctx)
		if err != nil {
			s.Logger.Error("housekeeping sweep failed", "sweeper", ns.name, "error", err)
			continue
		}
		total += n
		if n > 0 {
			s.Logger.Debug("housekeeping swept", "sweeper", ns.name, "removed", n)
		}
	}
	return total
}
