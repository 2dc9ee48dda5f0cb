package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prismkeys/prism/internal/metrics"
)

// DefaultSweepInterval is how often the sweeper runs when not configured.
const DefaultSweepInterval = time.Minute

// SweepReport summarizes one sweep pass.
type SweepReport struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// Sweeper deactivates keys whose expiry has passed. Its lifecycle belongs to
// the process that starts it.
type Sweeper struct {
	keys     KeyStore
	audit    *Audit
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper. A non-positive interval uses
// DefaultSweepInterval and a nil now uses time.Now.
func NewSweeper(keys KeyStore, audit *Audit, interval time.Duration, now func() time.Time, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		keys:     keys,
		audit:    audit,
		interval: interval,
		now:      now,
		logger:   logger.With("component", "sweeper"),
	}
}

// Start begins the background loop: one pass immediately, then one per
// interval until ctx is cancelled or Shutdown is called. Non-blocking.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.tick(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("sweeper started", "interval", s.interval)
}

// Shutdown stops the loop and waits for an in-flight pass to finish.
func (s *Sweeper) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) tick(ctx context.Context) {
	report, err := s.SweepOnce(ctx)
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		return
	}
	if report.Expired > 0 || report.Failed > 0 {
		s.logger.Info("sweep complete", "scanned", report.Scanned, "expired", report.Expired, "failed", report.Failed)
	}
}

// SweepOnce runs a single pass. Each expired key is handled independently:
// a failure on one is counted and logged, and the pass moves on. Only a
// failure to list keys aborts the pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	var report SweepReport
	keys, err := s.keys.ListAllKeys(ctx)
	if err != nil {
		return report, &StoreError{Op: "list keys", Err: err}
	}

	now := s.now()
	for _, k := range keys {
		report.Scanned++
		if !k.ExpiredAt(now) {
			continue
		}
		if err := s.keys.ExpireKey(ctx, k.Code); err != nil {
			report.Failed++
			metrics.SweepFailuresTotal.Inc()
			s.logger.Warn("expire key", "code", k.Code, "error", err)
			s.audit.Error(ctx, k.OwnerID, fmt.Sprintf("Failed to expire key %s: %v", k.Code, err))
			continue
		}
		report.Expired++
		metrics.KeysExpiredTotal.Inc()
		s.audit.Info(ctx, k.OwnerID, fmt.Sprintf("Key %s expired for %s", k.Code, k.OwnerLabel))
	}
	return report, nil
}
