package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/domains/internal/hostname"
	"github.com/edvin/domains/internal/model"
)

// memStore is an in-memory DomainStore.
type memStore struct {
	mu        sync.Mutex
	byID      map[string]*model.CustomDomain
	usernames map[string]string // tenant id -> username
	updates   int
	down      bool
}

func newMemStore() *memStore {
	return &memStore{
		byID:      make(map[string]*model.CustomDomain),
		usernames: map[string]string{"tenant-acme": "acme", "tenant-beta": "beta"},
	}
}

func (s *memStore) err() error {
	if s.down {
		return fmt.Errorf("%w: store unavailable", ErrInfrastructure)
	}
	return nil
}

func (s *memStore) Create(_ context.Context, d *model.CustomDomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.err(); err != nil {
		return err
	}
	for _, existing := range s.byID {
		if existing.Domain == d.Domain {
			return ErrDomainTaken
		}
	}
	cp := *d
	s.byID[d.ID] = &cp
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*model.CustomDomain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.err(); err != nil {
		return nil, err
	}
	d, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) GetByDomain(_ context.Context, domain string) (*model.CustomDomain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.err(); err != nil {
		return nil, err
	}
	for _, d := range s.byID {
		if d.Domain == domain {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) ListByTenant(_ context.Context, tenantID string) ([]model.CustomDomain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CustomDomain
	for _, d := range s.byID {
		if d.TenantID == tenantID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

func (s *memStore) ListForSweep(_ context.Context, f SweepFilter) ([]model.CustomDomain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.err(); err != nil {
		return nil, err
	}
	var out []model.CustomDomain
	for _, d := range s.byID {
		switch d.Status {
		case model.DomainPending, model.DomainVerifying:
			out = append(out, *d)
		case model.DomainActive:
			if f.IncludeActive {
				out = append(out, *d)
			}
		case model.DomainFailed:
			if f.FailedBefore != nil && (d.LastAttemptAt == nil || d.LastAttemptAt.Before(*f.FailedBefore)) {
				out = append(out, *d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

func (s *memStore) ResolveActive(_ context.Context, domain string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.err(); err != nil {
		return "", err
	}
	for _, d := range s.byID {
		if d.Domain == domain && d.Status == model.DomainActive {
			return s.usernames[d.TenantID], nil
		}
	}
	return "", ErrNotConfigured
}

func (s *memStore) UpdateStatus(_ context.Context, id string, u StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.err(); err != nil {
		return err
	}
	d, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if u.From != "" && d.Status != u.From {
		return ErrStatusConflict
	}
	s.updates++
	d.Status = u.Status
	last := u.LastAttemptAt
	d.LastAttemptAt = &last
	d.VerifyingSince = u.VerifyingSince
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *memStore) put(d model.CustomDomain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[d.ID] = &d
}

func (s *memStore) status(domain string) model.DomainStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.byID {
		if d.Domain == domain {
			return d.Status
		}
	}
	return ""
}

// fakeChecker returns queued outcomes per host, then the last one forever.
type fakeChecker struct {
	mu       sync.Mutex
	outcomes map[string][]Outcome
	calls    map[string]int
	block    chan struct{}
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{outcomes: make(map[string][]Outcome), calls: make(map[string]int)}
}

func (c *fakeChecker) set(host string, outcomes ...Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[host] = outcomes
}

func (c *fakeChecker) count(host string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[host]
}

func (c *fakeChecker) Check(ctx context.Context, host string) CheckResult {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return CheckResult{Outcome: OutcomeTransient, Detail: "cancelled"}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[host]++
	queue := c.outcomes[host]
	if len(queue) == 0 {
		return CheckResult{Outcome: OutcomeNotConfigured, Detail: "no record"}
	}
	out := queue[0]
	if len(queue) > 1 {
		c.outcomes[host] = queue[1:]
	}
	return CheckResult{Outcome: out, Detail: string(out)}
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testClassifier() *hostname.Classifier {
	return hostname.NewClassifier(hostname.Policy{
		Root:       "tiny.pm",
		DevAliases: []string{"localhost", ".local"},
	})
}

func testPolicy() VerificationPolicy {
	return VerificationPolicy{
		AttemptBudget:    30 * time.Minute,
		AttemptTimeout:   time.Second,
		TransientRetries: 2,
		RetryDelay:       time.Millisecond,
		LookupTimeout:    time.Second,
	}
}

func newTestEngine(store DomainStore, checker Checker, clk *clock) *VerificationEngine {
	e := NewVerificationEngine(store, checker, testClassifier(), testPolicy(), zerolog.Nop())
	e.now = clk.Now
	return e
}

func pendingDomain(id, domain, tenantID string, created time.Time) model.CustomDomain {
	return model.CustomDomain{
		ID:        id,
		Domain:    domain,
		TenantID:  tenantID,
		Status:    model.DomainPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}
