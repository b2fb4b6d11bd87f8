package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/edvin/domains/internal/model"
	"github.com/edvin/domains/internal/platform"
)

// APIKeyService issues and checks tenant API keys.
type APIKeyService struct {
	db DB
}

func NewAPIKeyService(db DB) *APIKeyService {
	return &APIKeyService{db: db}
}

// Create generates a key for tenantID and returns it with the raw key
// string. The raw key must be shown to the caller exactly once.
func (s *APIKeyService) Create(ctx context.Context, tenantID, name string) (*model.APIKey, string, error) {
	rawKey := platform.NewAPIKey()
	key := &model.APIKey{
		ID:        platform.NewID(),
		TenantID:  tenantID,
		Name:      name,
		KeyPrefix: rawKey[:12],
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 RETURNING created_at`,
		key.ID, tenantID, name, HashAPIKey(rawKey), key.KeyPrefix,
	).Scan(&key.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("insert api key for tenant %s: %w", tenantID, err)
	}
	return key, rawKey, nil
}

// Authenticate returns the tenant owning an unrevoked key, or ErrNotFound.
func (s *APIKeyService) Authenticate(ctx context.Context, rawKey string) (*model.Tenant, error) {
	var t model.Tenant
	err := s.db.QueryRow(ctx,
		`SELECT t.id, t.username FROM api_keys k
		 JOIN tenants t ON t.id = k.tenant_id
		 WHERE k.key_hash = $1 AND k.revoked_at IS NULL`, HashAPIKey(rawKey),
	).Scan(&t.ID, &t.Username)
	if err != nil {
		return nil, fmt.Errorf("authenticate api key: %w", notFound(err))
	}
	return &t, nil
}

// Revoke marks a key unusable.
func (s *APIKeyService) Revoke(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("revoke api key %s: %w", id, ErrNotFound)
	}
	return nil
}

func HashAPIKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}
