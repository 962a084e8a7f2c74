package service

import (
	"context"
	"log/slog"
	"time"
)

// HousekeepingService periodically deletes expired login tokens and pending
// records so the tables don't grow without bound.
type HousekeepingService struct {
	Ledger   *TokenLedger
	Config   Config
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(
	ledger *TokenLedger,
	cfg Config,
	logger *slog.Logger,
	interval time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Ledger:   ledger,
		Config:   cfg,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until the worker has finished any in-progress sweep.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup runs one sweep of every kind that has an expiration configured.
// Failures in one kind don't stop the others. It returns the number of rows
// deleted.
func (s *HousekeepingService) Cleanup(ctx context.Context) int64 {
	s.Logger.Debug("starting housekeeping cleanup")

	windows := []struct {
		kind   SweepKind
		window time.Duration
	}{
		{SweepLogin, s.Config.LoginTokenExpiration},
		{SweepEmail, s.Config.EmailTokenExpiration},
		{SweepReset, s.Config.ResetTokenExpiration},
		{SweepInvite, s.Config.InviteTokenExpiration},
	}

	var total int64
	for _, w := range windows {
		if w.window <= 0 {
			continue
		}
		n, err := s.Ledger.SweepExpired(ctx, w.kind, w.window)
		if err != nil {
			s.Logger.Error("failed to sweep expired rows", "kind", w.kind, "error", err)
			continue
		}
		total += n
	}

	for class, w := range s.Config.ClassExpirations {
		if w <= 0 {
			continue
		}
		n, err := s.Ledger.SweepExpiredClass(ctx, class, w)
		if err != nil {
			s.Logger.Error("failed to sweep expired tokens", "class", class, "error", err)
			continue
		}
		total += n
	}

	s.Logger.Info("housekeeping cleanup completed", "deleted", total)
	return total
}
