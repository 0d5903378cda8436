package market

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler is the long-lived price-update loop. It wakes on a short check
// cadence and ticks each tenant when that tenant's configured interval has
// elapsed, so tenants with different update rates coexist in one process.
// It never terminates because of a single tenant's failure.
type Scheduler struct {
	svc        *Service
	log        *slog.Logger
	checkEvery time.Duration

	mu       sync.Mutex
	lastTick map[string]time.Time
}

func NewScheduler(svc *Service, logger *slog.Logger, checkEvery time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if checkEvery <= 0 {
		checkEvery = time.Minute
	}
	return &Scheduler{
		svc:        svc,
		log:        logger,
		checkEvery: checkEvery,
		lastTick:   make(map[string]time.Time),
	}
}

// Run blocks until ctx is cancelled. An in-flight pass finishes its current
// stock transaction and stops between stocks; a stock not yet updated simply
// waits for the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.checkEvery)
	defer ticker.Stop()

	s.log.Info("scheduler started", "check_every", s.checkEvery.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler shutdown")
			return
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) {
	tenants, err := s.svc.Tenants(ctx)
	if err != nil {
		s.log.Error("tenant scan failed", "err", err)
		return
	}
	now := time.Now().UTC()
	for _, tenant := range tenants {
		if ctx.Err() != nil {
			return
		}
		every, err := s.svc.TickInterval(ctx, tenant)
		if err != nil {
			s.log.Error("tick interval read failed", "tenant", tenant, "err", err)
			continue
		}
		if !s.due(tenant, now, every) {
			continue
		}
		if err := s.svc.TickTenant(ctx, tenant); err != nil {
			s.log.Error("tenant tick failed", "tenant", tenant, "err", err)
			continue
		}
		s.mark(tenant, now)
	}
}

func (s *Scheduler) due(tenant string, now time.Time, every time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastTick[tenant]
	return !ok || now.Sub(last) >= every
}

func (s *Scheduler) mark(tenant string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTick[tenant] = now
}
