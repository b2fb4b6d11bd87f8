package model

import "time"

type CustomDomain struct {
	ID             string       `json:"id" db:"id"`
	Domain         string       `json:"domain" db:"domain"`
	TenantID       string       `json:"tenant_id" db:"tenant_id"`
	Status         DomainStatus `json:"status" db:"status"`
	LastAttemptAt  *time.Time   `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	VerifyingSince *time.Time   `json:"verifying_since,omitempty" db:"verifying_since"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// Tenant is the owner of custom domains. The username is the path segment
// a custom domain is rewritten into.
type Tenant struct {
	ID       string `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
}
