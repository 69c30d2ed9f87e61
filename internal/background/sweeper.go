package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/mwestergaard/hearth/internal/services"
)

// Sweeper periodically purges expired sessions so abandoned sessions do not
// accumulate in memory or in the persisted snapshot
type Sweeper struct {
	sessions *services.SessionService
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewSweeper creates a new session sweeper
func NewSweeper(sessions *services.SessionService, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep; blocks until Stop or context cancellation
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on startup
	s.runSweep()

	for {
		select {
		case <-ticker.C:
			s.runSweep()
		case <-s.stopCh:
			s.logger.Info("session sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("session sweeper context cancelled")
			return
		}
	}
}

func (s *Sweeper) runSweep() {
	if removed := s.sessions.Sweep(); removed > 0 {
		s.logger.Info("expired sessions swept", slog.Int("removed", removed))
	}
}

// Stop signals the sweeper to stop
func (s *Sweeper) Stop() {
	close(s.stopCh)
}
