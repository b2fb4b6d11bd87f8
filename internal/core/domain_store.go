package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/domains/internal/model"
)

// DomainStore is the durable mapping from custom domain to owner and status.
type DomainStore interface {
	Create(ctx context.Context, d *model.CustomDomain) error
	GetByID(ctx context.Context, id string) (*model.CustomDomain, error)
	GetByDomain(ctx context.Context, domain string) (*model.CustomDomain, error)
	ListByTenant(ctx context.Context, tenantID string) ([]model.CustomDomain, error)
	ListForSweep(ctx context.Context, f SweepFilter) ([]model.CustomDomain, error)
	// ResolveActive returns the username owning an active domain, or
	// ErrNotConfigured when there is none.
	ResolveActive(ctx context.Context, domain string) (string, error)
	UpdateStatus(ctx context.Context, id string, u StatusUpdate) error
	Delete(ctx context.Context, id string) error
}

// SweepFilter selects the records the background sweep re-checks.
// Pending and verifying records are always included.
type SweepFilter struct {
	IncludeActive bool
	// FailedBefore includes failed records whose last attempt is older than
	// the given time. Nil leaves failed records alone.
	FailedBefore *time.Time
	Limit        int
}

// StatusUpdate is the single write the engine performs per transition.
type StatusUpdate struct {
	// From is the status the write expects to replace. Empty skips the guard.
	From           model.DomainStatus
	Status         model.DomainStatus
	LastAttemptAt  time.Time
	VerifyingSince *time.Time
}

const uniqueViolation = "23505"

const domainColumns = `id, domain, tenant_id, status, last_attempt_at, verifying_since, created_at, updated_at`

// PGDomainStore implements DomainStore on the core PostgreSQL database.
type PGDomainStore struct {
	db DB
}

func NewPGDomainStore(db DB) *PGDomainStore {
	return &PGDomainStore{db: db}
}

func (s *PGDomainStore) Create(ctx context.Context, d *model.CustomDomain) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO custom_domains (id, domain, tenant_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.Domain, d.TenantID, d.Status, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert custom domain %s: %w", d.Domain, ErrDomainTaken)
		}
		return fmt.Errorf("insert custom domain %s: %w", d.Domain, err)
	}
	return nil
}

func (s *PGDomainStore) GetByID(ctx context.Context, id string) (*model.CustomDomain, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+domainColumns+` FROM custom_domains WHERE id = $1`, id)
	d, err := scanDomain(row)
	if err != nil {
		return nil, fmt.Errorf("get custom domain %s: %w", id, notFound(err))
	}
	return &d, nil
}

func (s *PGDomainStore) GetByDomain(ctx context.Context, domain string) (*model.CustomDomain, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+domainColumns+` FROM custom_domains WHERE domain = $1`, domain)
	d, err := scanDomain(row)
	if err != nil {
		return nil, fmt.Errorf("get custom domain %s: %w", domain, notFound(err))
	}
	return &d, nil
}

func (s *PGDomainStore) ListByTenant(ctx context.Context, tenantID string) ([]model.CustomDomain, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+domainColumns+` FROM custom_domains WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list custom domains for tenant %s: %w", tenantID, err)
	}
	return collectDomains(rows)
}

func (s *PGDomainStore) ListForSweep(ctx context.Context, f SweepFilter) ([]model.CustomDomain, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+domainColumns+` FROM custom_domains
		 WHERE status IN ('pending', 'verifying')
		    OR ($1 AND status = 'active')
		    OR ($2::timestamptz IS NOT NULL AND status = 'failed'
		        AND (last_attempt_at IS NULL OR last_attempt_at < $2::timestamptz))
		 ORDER BY last_attempt_at NULLS FIRST, created_at
		 LIMIT $3`,
		f.IncludeActive, f.FailedBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list custom domains for sweep: %w", err)
	}
	return collectDomains(rows)
}

func (s *PGDomainStore) ResolveActive(ctx context.Context, domain string) (string, error) {
	var username string
	err := s.db.QueryRow(ctx,
		`SELECT t.username FROM custom_domains d
		 JOIN tenants t ON t.id = d.tenant_id
		 WHERE d.domain = $1 AND d.status = 'active'`, domain,
	).Scan(&username)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("resolve %s: %w", domain, ErrNotConfigured)
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w: %w", domain, ErrInfrastructure, err)
	}
	if username == "" {
		return "", fmt.Errorf("resolve %s: owner has no username: %w", domain, ErrNotConfigured)
	}
	return username, nil
}

func (s *PGDomainStore) UpdateStatus(ctx context.Context, id string, u StatusUpdate) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE custom_domains
		 SET status = $1, last_attempt_at = $2, verifying_since = $3, updated_at = now()
		 WHERE id = $4 AND ($5 = '' OR status = $5)`,
		u.Status, u.LastAttemptAt, u.VerifyingSince, id, u.From,
	)
	if err != nil {
		return fmt.Errorf("update custom domain %s status to %s: %w", id, u.Status, err)
	}
	if tag.RowsAffected() == 0 {
		if u.From != "" {
			return fmt.Errorf("update custom domain %s from %s: %w", id, u.From, ErrStatusConflict)
		}
		return fmt.Errorf("update custom domain %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PGDomainStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM custom_domains WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete custom domain %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete custom domain %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanDomain(row pgx.Row) (model.CustomDomain, error) {
	var d model.CustomDomain
	err := row.Scan(&d.ID, &d.Domain, &d.TenantID, &d.Status, &d.LastAttemptAt,
		&d.VerifyingSince, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func collectDomains(rows pgx.Rows) ([]model.CustomDomain, error) {
	defer rows.Close()

	var domains []model.CustomDomain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("scan custom domain: %w", err)
		}
		domains = append(domains, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate custom domains: %w", err)
	}
	return domains, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
