package gate

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically re-checks all pending entries against the timeout
// threshold. The per-member timers are the fast path; the sweep is the
// authority of record and catches anything a timer missed.
type Sweeper struct {
	Manager  *Manager
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSweeper creates a sweeper with the given interval. If interval is 0
// or negative, defaults to 1 minute.
func NewSweeper(manager *Manager, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Sweeper{
		Manager:  manager,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut it
// down.
func (s *Sweeper) Start() {
	go s.run()
	s.Logger.Info("verification sweeper started", slog.Duration("interval", s.Interval))
}

// Stop shuts down the worker, blocking until any in-progress sweep ends.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("verification sweeper stopped")
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Manager.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}
