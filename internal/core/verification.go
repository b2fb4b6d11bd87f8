package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/edvin/domains/internal/hostname"
	"github.com/edvin/domains/internal/metrics"
	"github.com/edvin/domains/internal/model"
)

// VerificationPolicy holds the engine's budget and timeout constants.
type VerificationPolicy struct {
	// AttemptBudget is how long a domain may stay verifying, measured from
	// the start of its current window, before it is failed.
	AttemptBudget time.Duration
	// AttemptTimeout bounds a single check. Expiry counts as transient.
	AttemptTimeout time.Duration
	// TransientRetries is how often a transient or malformed check is
	// repeated within one attempt.
	TransientRetries int
	RetryDelay       time.Duration
	// LookupTimeout bounds the read path used by request routing.
	LookupTimeout time.Duration
}

// VerificationEngine advances custom domains through the status state
// machine and serves the read path used by the router.
type VerificationEngine struct {
	store      DomainStore
	checker    Checker
	classifier *hostname.Classifier
	policy     VerificationPolicy
	logger     zerolog.Logger
	now        func() time.Time
}

func NewVerificationEngine(store DomainStore, checker Checker, classifier *hostname.Classifier, policy VerificationPolicy, logger zerolog.Logger) *VerificationEngine {
	return &VerificationEngine{
		store:      store,
		checker:    checker,
		classifier: classifier,
		policy:     policy,
		logger:     logger.With().Str("component", "verification").Logger(),
		now:        time.Now,
	}
}

// Resolve returns the username an incoming host routes to. It answers
// ErrNotConfigured for anything without an active record and wraps every
// other failure in ErrInfrastructure.
func (e *VerificationEngine) Resolve(ctx context.Context, rawHost string) (string, error) {
	host := hostname.Normalize(rawHost)
	if host == "" {
		return "", fmt.Errorf("%w: empty hostname", ErrInvalidInput)
	}
	if e.classifier.Classify(host) != hostname.ClassCandidate {
		return "", fmt.Errorf("%s is not a custom domain: %w", host, ErrNotConfigured)
	}

	if e.policy.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.policy.LookupTimeout)
		defer cancel()
	}

	start := time.Now()
	username, err := e.store.ResolveActive(ctx, host)
	metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrInfrastructure) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	return username, nil
}

// Verify runs one verification attempt for domain. Failed domains are left
// alone; they need Recheck.
func (e *VerificationEngine) Verify(ctx context.Context, domain string) (*model.CustomDomain, error) {
	return e.attempt(ctx, domain, false)
}

// Recheck re-triggers verification, restarting the attempt budget of a
// failed domain, and runs one attempt.
func (e *VerificationEngine) Recheck(ctx context.Context, domain string) (*model.CustomDomain, error) {
	return e.attempt(ctx, domain, true)
}

func (e *VerificationEngine) attempt(ctx context.Context, domain string, retrigger bool) (*model.CustomDomain, error) {
	host := hostname.Normalize(domain)
	rec, err := e.store.GetByDomain(ctx, host)
	if err != nil {
		return nil, err
	}

	opening := model.EventAttemptStarted
	if retrigger {
		opening = model.EventRetriggered
	}
	switch rec.Status {
	case model.DomainFailed:
		if !retrigger {
			e.logger.Debug().Str("domain", host).Msg("failed domain needs an explicit re-trigger")
			return rec, nil
		}
	case model.DomainActive:
		// Health check: no opening edge.
		opening = ""
	}

	if opening != "" {
		if err := e.open(ctx, rec, opening); err != nil {
			return settled(rec, err)
		}
	}

	result := e.check(ctx, host)
	metrics.VerificationOutcomes.WithLabelValues(string(result.Outcome)).Inc()

	if err := e.close(ctx, rec, result); err != nil {
		return settled(rec, err)
	}
	return rec, nil
}

// open takes the edge that starts an attempt and persists it when it
// changes the status or restarts the budget window.
func (e *VerificationEngine) open(ctx context.Context, rec *model.CustomDomain, event model.DomainEvent) error {
	tr, err := rec.Status.Next(event)
	if err != nil {
		return err
	}
	if !tr.Changed() && !tr.RestartsWindow {
		return nil
	}
	return e.apply(ctx, rec, tr, e.now(), CheckResult{})
}

// close maps the check result onto the closing edge, if any, and records
// the attempt. Any unsuccessful outcome fails a domain whose window has
// elapsed.
func (e *VerificationEngine) close(ctx context.Context, rec *model.CustomDomain, result CheckResult) error {
	now := e.now()

	var event model.DomainEvent
	switch {
	case result.Outcome == OutcomeSuccess:
		event = model.EventCheckSucceeded
	case rec.Status == model.DomainActive:
		// Transients leave an active domain routed.
		if result.Outcome == OutcomeNotConfigured {
			event = model.EventHealthCheckFailed
		}
	case now.Sub(windowStart(rec)) >= e.policy.AttemptBudget:
		// Transient results are free only while the window is open.
		event = model.EventBudgetExhausted
	}

	if event == "" {
		e.logger.Info().
			Str("domain", rec.Domain).
			Str("status", string(rec.Status)).
			Str("outcome", string(result.Outcome)).
			Str("detail", result.Detail).
			Msg("verification attempt")
		return e.write(ctx, rec, StatusUpdate{Status: rec.Status, LastAttemptAt: now, VerifyingSince: rec.VerifyingSince})
	}

	tr, err := rec.Status.Next(event)
	if err != nil {
		return err
	}
	return e.apply(ctx, rec, tr, now, result)
}

func (e *VerificationEngine) apply(ctx context.Context, rec *model.CustomDomain, tr model.Transition, now time.Time, result CheckResult) error {
	since := rec.VerifyingSince
	if tr.RestartsWindow {
		since = &now
	}

	reason := result.Err()
	if tr.To == model.DomainFailed {
		reason = fmt.Errorf("%w: %w", ErrTerminalVerification, reason)
	}

	e.logger.Info().
		AnErr("reason", reason).
		Str("domain", rec.Domain).
		Str("from", string(tr.From)).
		Str("to", string(tr.To)).
		Str("event", string(tr.Event)).
		Str("outcome", string(result.Outcome)).
		Str("detail", result.Detail).
		Msg("domain status transition")

	if err := e.write(ctx, rec, StatusUpdate{Status: tr.To, LastAttemptAt: now, VerifyingSince: since}); err != nil {
		return err
	}
	if tr.Changed() {
		metrics.StatusTransitions.WithLabelValues(string(tr.From), string(tr.To)).Inc()
	}
	return nil
}

// settled turns a lost write race into the other writer's result.
func settled(rec *model.CustomDomain, err error) (*model.CustomDomain, error) {
	if errors.Is(err, ErrStatusConflict) {
		return rec, nil
	}
	return nil, err
}

// write persists u only if the row still has rec's status. On a conflict rec
// is reloaded and ErrStatusConflict returned.
func (e *VerificationEngine) write(ctx context.Context, rec *model.CustomDomain, u StatusUpdate) error {
	u.From = rec.Status
	if err := e.store.UpdateStatus(ctx, rec.ID, u); err != nil {
		if !errors.Is(err, ErrStatusConflict) {
			return err
		}
		e.logger.Warn().
			Str("domain", rec.Domain).
			Str("expected", string(u.From)).
			Str("wanted", string(u.Status)).
			Msg("status changed by another writer")
		fresh, gerr := e.store.GetByDomain(ctx, rec.Domain)
		if gerr != nil {
			return gerr
		}
		*rec = *fresh
		return err
	}
	rec.Status = u.Status
	last := u.LastAttemptAt
	rec.LastAttemptAt = &last
	rec.VerifyingSince = u.VerifyingSince
	return nil
}

// check runs the checker with a per-attempt timeout, retrying transient and
// malformed results up to the retry cap.
func (e *VerificationEngine) check(ctx context.Context, host string) CheckResult {
	if e.classifier.Classify(host) != hostname.ClassCandidate {
		return CheckResult{Outcome: OutcomeNotConfigured, Detail: host + " is not a custom domain hostname"}
	}

	result := CheckResult{Outcome: OutcomeTransient, Detail: "check did not run"}

	delay := e.policy.RetryDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	retries := e.policy.TransientRetries
	if retries < 0 {
		retries = 0
	}
	backoff := retry.WithMaxRetries(uint64(retries), retry.NewConstant(delay))

	_ = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx := ctx
		if e.policy.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, e.policy.AttemptTimeout)
			defer cancel()
		}

		result = e.checker.Check(attemptCtx, host)
		if result.Outcome != OutcomeSuccess && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			result = CheckResult{Outcome: OutcomeTransient, Detail: "attempt timed out: " + result.Detail}
		}
		if result.Outcome.Retryable() {
			return retry.RetryableError(result.Err())
		}
		return nil
	})
	return result
}

// windowStart is the start of the current attempt-budget window.
func windowStart(rec *model.CustomDomain) time.Time {
	if rec.VerifyingSince != nil {
		return *rec.VerifyingSince
	}
	if rec.LastAttemptAt != nil {
		return *rec.LastAttemptAt
	}
	return rec.CreatedAt
}
