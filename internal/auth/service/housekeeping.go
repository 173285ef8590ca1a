package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/store"
)

// PurgeRecorder counts records removed by a housekeeping pass.
type PurgeRecorder interface {
	Purged(kind string, n int)
}

// HousekeepingService purges expired challenges and signing keys whose
// verification window has closed, and trims the verification key cache.
type HousekeepingService struct {
	Store    store.Store
	Keys     *KeyManager
	Logger   *slog.Logger
	Interval time.Duration
	Recorder PurgeRecorder
	Now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHousekeepingService returns a service that runs every interval, or
// hourly when interval is not positive.
func NewHousekeepingService(st store.Store, keys *KeyManager, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:    st,
		Keys:     keys,
		Logger:   logger,
		Interval: interval,
	}
}

// Start runs a pass immediately and then on every tick until Stop.
func (s *HousekeepingService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		for {
			s.Cleanup(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop cancels any pass in progress and waits for the worker to exit.
func (s *HousekeepingService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.Logger.Info("housekeeping stopped")
}

// CleanupResult counts what one pass removed.
type CleanupResult struct {
	Challenges  int64
	SigningKeys int64
	CachedKeys  int
}

// Cleanup performs one pass. A failing step is logged and the rest still run.
func (s *HousekeepingService) Cleanup(ctx context.Context) CleanupResult {
	now := nowFunc(s.Now)()
	var res CleanupResult

	if n, err := s.Store.Challenges().DeleteExpiredChallenges(ctx, now); err != nil {
		s.Logger.Error("purge expired challenges", "error", err)
	} else {
		res.Challenges = n
	}

	// Keys still behind an active pointer survive their expiry.
	if n, err := s.Store.SigningKeys().DeleteExpiredSigningKeys(ctx, now); err != nil {
		s.Logger.Error("purge expired signing keys", "error", err)
	} else {
		res.SigningKeys = n
	}

	if s.Keys != nil {
		res.CachedKeys = s.Keys.PruneCache(now)
	}

	if s.Recorder != nil {
		s.Recorder.Purged("challenges", int(res.Challenges))
		s.Recorder.Purged("signing_keys", int(res.SigningKeys))
	}
	s.Logger.Debug("housekeeping pass",
		"challenges", res.Challenges,
		"signing_keys", res.SigningKeys,
		"cached_keys", res.CachedKeys,
	)
	return res
}
