package model

// DomainStatus is the verification state of a custom domain.
type DomainStatus string

const (
	DomainPending   DomainStatus = "pending"
	DomainVerifying DomainStatus = "verifying"
	DomainActive    DomainStatus = "active"
	DomainFailed    DomainStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s DomainStatus) Valid() bool {
	switch s {
	case DomainPending, DomainVerifying, DomainActive, DomainFailed:
		return true
	}
	return false
}

// Label is the human-readable status shown on the dashboard.
func (s DomainStatus) Label() string {
	switch s {
	case DomainPending:
		return "Pending DNS Setup"
	case DomainVerifying:
		return "Verifying DNS..."
	case DomainActive:
		return "Active"
	case DomainFailed:
		return "Verification Failed"
	default:
		return "Unknown Status"
	}
}
