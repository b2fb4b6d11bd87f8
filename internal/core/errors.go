package core

import (
	"errors"

	"github.com/edvin/domains/internal/model"
)

var (
	// ErrInvalidInput marks a missing or malformed hostname. User-correctable.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotConfigured means a candidate domain has no active record.
	ErrNotConfigured = errors.New("domain not configured")
	// ErrTransientVerification is a network or DNS hiccup during a check.
	ErrTransientVerification = errors.New("transient verification failure")
	// ErrTerminalVerification means the attempt budget ran out.
	ErrTerminalVerification = errors.New("verification attempt budget exhausted")
	// ErrInfrastructure means the store or an internal lookup is unavailable.
	ErrInfrastructure = errors.New("infrastructure failure")

	ErrNotFound    = errors.New("not found")
	ErrDomainTaken = errors.New("domain is already registered")

	// ErrStatusConflict means the row left the status a write expected.
	ErrStatusConflict = errors.New("domain status changed concurrently")

	ErrIllegalTransition = model.ErrIllegalTransition
)
