package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/domains/internal/hostname"
	"github.com/edvin/domains/internal/lock"
	"github.com/edvin/domains/internal/metrics"
	"github.com/edvin/domains/internal/model"
)

// Verifier runs single verification attempts.
type Verifier interface {
	Verify(ctx context.Context, domain string) (*model.CustomDomain, error)
	Recheck(ctx context.Context, domain string) (*model.CustomDomain, error)
}

// SchedulerPolicy holds the polling intervals of the scheduler.
type SchedulerPolicy struct {
	// WatchInterval is the re-check interval of domains a tenant is
	// currently watching on the dashboard.
	WatchInterval time.Duration
	// WatchTTL is how long a domain stays watched after the last dashboard poll.
	WatchTTL time.Duration
	// SweepInterval is the background re-check interval of every unsettled domain.
	SweepInterval    time.Duration
	SweepConcurrency int
	SweepLimit       int
	// HealthCheckActive includes active domains in the sweep.
	HealthCheckActive bool
	// FailedCooldown re-triggers failed domains whose last attempt is older
	// than the cooldown. Zero leaves failed domains to the tenant.
	FailedCooldown time.Duration
	// LockTTL is the expiry of the cluster-wide per-domain lock.
	LockTTL time.Duration
}

// Scheduler drives verification attempts and guarantees at most one
// in-flight attempt per domain. A trigger that arrives while an attempt is
// running is dropped.
type Scheduler struct {
	verifier Verifier
	store    DomainStore
	locker   lock.Locker
	policy   SchedulerPolicy
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
	watched  map[string]time.Time
}

// NewScheduler builds a scheduler. locker may be nil for single-replica
// deployments.
func NewScheduler(verifier Verifier, store DomainStore, locker lock.Locker, policy SchedulerPolicy, logger zerolog.Logger) *Scheduler {
	if policy.SweepConcurrency <= 0 {
		policy.SweepConcurrency = 1
	}
	return &Scheduler{
		verifier: verifier,
		store:    store,
		locker:   locker,
		policy:   policy,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
		inflight: make(map[string]struct{}),
		watched:  make(map[string]time.Time),
	}
}

// Trigger runs one attempt for domain now. started is false when another
// attempt for the same domain was already running.
func (s *Scheduler) Trigger(ctx context.Context, domain string) (rec *model.CustomDomain, started bool, err error) {
	return s.run(ctx, hostname.Normalize(domain), s.verifier.Verify)
}

// Recheck is the tenant-initiated re-trigger. It restarts the attempt
// budget of a failed domain.
func (s *Scheduler) Recheck(ctx context.Context, domain string) (rec *model.CustomDomain, started bool, err error) {
	return s.run(ctx, hostname.Normalize(domain), s.verifier.Recheck)
}

func (s *Scheduler) run(ctx context.Context, domain string, fn func(context.Context, string) (*model.CustomDomain, error)) (*model.CustomDomain, bool, error) {
	if !s.acquire(domain) {
		metrics.SkippedTriggers.WithLabelValues("process").Inc()
		return nil, false, nil
	}
	defer s.release(domain)

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, "domain-verify:"+domain, s.policy.LockTTL)
		if err != nil {
			return nil, false, fmt.Errorf("%w: verification lock for %s: %w", ErrInfrastructure, domain, err)
		}
		if !ok {
			metrics.SkippedTriggers.WithLabelValues("cluster").Inc()
			return nil, false, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn().Err(err).Str("domain", domain).Msg("release verification lock")
			}
		}()
	}

	metrics.VerificationsInFlight.Inc()
	defer metrics.VerificationsInFlight.Dec()

	rec, err := fn(ctx, domain)
	if err != nil {
		return nil, true, err
	}
	if rec.Status == model.DomainActive || rec.Status == model.DomainFailed {
		s.Unwatch(domain)
	}
	return rec, true, nil
}

func (s *Scheduler) acquire(domain string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[domain]; busy {
		return false
	}
	s.inflight[domain] = struct{}{}
	return true
}

func (s *Scheduler) release(domain string) {
	s.mu.Lock()
	delete(s.inflight, domain)
	s.mu.Unlock()
}

// InFlight reports whether an attempt for domain is running in this process.
func (s *Scheduler) InFlight(domain string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inflight[hostname.Normalize(domain)]
	return busy
}

// Watch switches domain to the short polling interval until WatchTTL
// passes without another Watch call.
func (s *Scheduler) Watch(domain string) {
	s.mu.Lock()
	s.watched[hostname.Normalize(domain)] = s.now().Add(s.policy.WatchTTL)
	s.mu.Unlock()
}

func (s *Scheduler) Unwatch(domain string) {
	s.mu.Lock()
	delete(s.watched, hostname.Normalize(domain))
	s.mu.Unlock()
}

// Watched returns the domains currently on the short interval, dropping
// expired entries.
func (s *Scheduler) Watched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	domains := make([]string, 0, len(s.watched))
	for domain, until := range s.watched {
		if now.After(until) {
			delete(s.watched, domain)
			continue
		}
		domains = append(domains, domain)
	}
	return domains
}

// Run polls watched domains every WatchInterval and sweeps every unsettled
// domain every SweepInterval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("watch_interval", s.policy.WatchInterval).
		Dur("sweep_interval", s.policy.SweepInterval).
		Msg("verification scheduler started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop(ctx, s.policy.WatchInterval, s.PollWatched) })
	g.Go(func() error { return s.loop(ctx, s.policy.SweepInterval, s.Sweep) })
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("verification round failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PollWatched runs one attempt for every watched domain.
func (s *Scheduler) PollWatched(ctx context.Context) error {
	domains := s.Watched()
	recs := make([]model.CustomDomain, len(domains))
	for i, d := range domains {
		recs[i] = model.CustomDomain{Domain: d, Status: model.DomainVerifying}
	}
	s.fanOut(ctx, recs)
	return nil
}

// Sweep runs one attempt for every record the store reports as unsettled.
func (s *Scheduler) Sweep(ctx context.Context) error {
	filter := SweepFilter{
		IncludeActive: s.policy.HealthCheckActive,
		Limit:         s.policy.SweepLimit,
	}
	if s.policy.FailedCooldown > 0 {
		before := s.now().Add(-s.policy.FailedCooldown)
		filter.FailedBefore = &before
	}

	recs, err := s.store.ListForSweep(ctx, filter)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	s.logger.Debug().Int("domains", len(recs)).Msg("verification sweep")
	s.fanOut(ctx, recs)
	return nil
}

func (s *Scheduler) fanOut(ctx context.Context, recs []model.CustomDomain) {
	var g errgroup.Group
	g.SetLimit(s.policy.SweepConcurrency)

	for _, rec := range recs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			trigger := s.Trigger
			if rec.Status == model.DomainFailed {
				trigger = s.Recheck
			}
			if _, _, err := trigger(ctx, rec.Domain); err != nil {
				s.logger.Warn().Err(err).Str("domain", rec.Domain).Msg("verification attempt failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}
