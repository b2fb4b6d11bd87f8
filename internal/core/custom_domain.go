package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/domains/internal/hostname"
	"github.com/edvin/domains/internal/model"
	"github.com/edvin/domains/internal/platform"
)

// Most DNS changes propagate within this window.
const (
	propagationMin = 5
	propagationMax = 30
)

// PropagationEstimate tells the tenant how long DNS may still take, in minutes.
type PropagationEstimate struct {
	MinMinutes       int `json:"min_minutes"`
	MaxMinutes       int `json:"max_minutes"`
	RemainingMinutes int `json:"remaining_minutes"`
}

// EstimatePropagation returns nil for active domains.
func EstimatePropagation(d *model.CustomDomain, now time.Time) *PropagationEstimate {
	if d.Status == model.DomainActive {
		return nil
	}
	var since time.Duration
	if d.LastAttemptAt != nil {
		since = now.Sub(*d.LastAttemptAt)
	}
	return &PropagationEstimate{
		MinMinutes:       propagationMin,
		MaxMinutes:       propagationMax,
		RemainingMinutes: max(0, propagationMax-int(since/time.Minute)),
	}
}

// DomainView is a custom domain as the tenant dashboard shows it.
type DomainView struct {
	model.CustomDomain
	StatusLabel string                  `json:"status_label"`
	Guidance    string                  `json:"guidance,omitempty"`
	Propagation *PropagationEstimate    `json:"propagation,omitempty"`
	DNS         hostname.DNSInstruction `json:"dns"`
}

// CustomDomainService is the tenant-facing side of custom domains.
type CustomDomainService struct {
	store      DomainStore
	scheduler  *Scheduler
	classifier *hostname.Classifier
	logger     zerolog.Logger
	now        func() time.Time
}

func NewCustomDomainService(store DomainStore, scheduler *Scheduler, classifier *hostname.Classifier, logger zerolog.Logger) *CustomDomainService {
	return &CustomDomainService{
		store:      store,
		scheduler:  scheduler,
		classifier: classifier,
		logger:     logger.With().Str("component", "custom_domains").Logger(),
		now:        time.Now,
	}
}

// Add registers domain for tenantID in pending state.
func (s *CustomDomainService) Add(ctx context.Context, tenantID, domain string) (*DomainView, error) {
	host := hostname.Normalize(domain)
	if err := hostname.Validate(host); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if class := s.classifier.Classify(host); class != hostname.ClassCandidate {
		return nil, fmt.Errorf("%w: %s is a %s hostname", ErrInvalidInput, host, class)
	}

	now := s.now()
	d := &model.CustomDomain{
		ID:        platform.NewID(),
		Domain:    host,
		TenantID:  tenantID,
		Status:    model.DomainPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}

	s.logger.Info().Str("domain", host).Str("tenant_id", tenantID).Msg("custom domain added")
	return s.view(d), nil
}

func (s *CustomDomainService) List(ctx context.Context, tenantID string) ([]DomainView, error) {
	domains, err := s.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	views := make([]DomainView, 0, len(domains))
	for i := range domains {
		views = append(views, *s.view(&domains[i]))
	}
	return views, nil
}

// Get returns ErrNotFound for domains owned by another tenant.
func (s *CustomDomainService) Get(ctx context.Context, tenantID, id string) (*DomainView, error) {
	d, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return s.view(d), nil
}

func (s *CustomDomainService) Delete(ctx context.Context, tenantID, id string) error {
	d, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, d.ID); err != nil {
		return err
	}
	s.scheduler.Unwatch(d.Domain)
	s.logger.Info().Str("domain", d.Domain).Str("tenant_id", tenantID).Msg("custom domain deleted")
	return nil
}

// Verify is the dashboard poll. It keeps an unsettled domain on the short
// interval and runs an attempt unless one is already in flight, in which
// case the current record is returned. A failed domain stays failed; only
// Recheck restarts it.
func (s *CustomDomainService) Verify(ctx context.Context, tenantID, id string) (*DomainView, error) {
	return s.attempt(ctx, tenantID, id, s.scheduler.Trigger)
}

// Recheck is the tenant's explicit request to try again. It restarts the
// attempt budget of a failed domain.
func (s *CustomDomainService) Recheck(ctx context.Context, tenantID, id string) (*DomainView, error) {
	return s.attempt(ctx, tenantID, id, s.scheduler.Recheck)
}

func (s *CustomDomainService) attempt(ctx context.Context, tenantID, id string,
	run func(context.Context, string) (*model.CustomDomain, bool, error)) (*DomainView, error) {
	d, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	rec, started, err := run(ctx, d.Domain)
	if err != nil {
		return nil, err
	}
	if !started {
		rec = d
	}
	if rec.Status == model.DomainPending || rec.Status == model.DomainVerifying {
		s.scheduler.Watch(d.Domain)
	}
	return s.view(rec), nil
}

// Instructions returns the DNS record the tenant has to create.
func (s *CustomDomainService) Instructions(ctx context.Context, tenantID, id string) (hostname.DNSInstruction, error) {
	d, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return hostname.DNSInstruction{}, err
	}
	return hostname.Instructions(d.Domain, s.classifier.Root()), nil
}

func (s *CustomDomainService) owned(ctx context.Context, tenantID, id string) (*model.CustomDomain, error) {
	d, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.TenantID != tenantID {
		return nil, fmt.Errorf("get custom domain %s: %w", id, ErrNotFound)
	}
	return d, nil
}

func (s *CustomDomainService) view(d *model.CustomDomain) *DomainView {
	v := &DomainView{
		CustomDomain: *d,
		StatusLabel:  d.Status.Label(),
		Propagation:  EstimatePropagation(d, s.now()),
		DNS:          hostname.Instructions(d.Domain, s.classifier.Root()),
	}
	if d.Status == model.DomainFailed {
		v.Guidance = fmt.Sprintf("Check that %s has a %s record named %q pointing to %s, then request a recheck.",
			d.Domain, v.DNS.Type, v.DNS.Name, v.DNS.Value)
	}
	return v
}
