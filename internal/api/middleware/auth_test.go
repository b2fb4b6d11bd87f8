package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/domains/internal/core"
	"github.com/edvin/domains/internal/model"
)

type fakeKeys map[string]*model.Tenant

func (f fakeKeys) Authenticate(_ context.Context, rawKey string) (*model.Tenant, error) {
	if t, ok := f[rawKey]; ok {
		return t, nil
	}
	return nil, core.ErrNotFound
}

type brokenKeys struct{}

func (brokenKeys) Authenticate(context.Context, string) (*model.Tenant, error) {
	return nil, errors.New("dial tcp 10.0.0.5:5432: connection refused")
}

func tenantEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := GetTenant(r.Context())
		if t == nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(t.ID))
	})
}

func TestAuth_MissingKey(t *testing.T) {
	// Auth checks the header before any lookup, so nil keys is safe here.
	handler := Auth(nil)(tenantEcho())

	req := httptest.NewRequest("GET", "/api/v1/domains", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "missing API key", body["error"])
}

func TestAuth_InvalidKey(t *testing.T) {
	handler := Auth(fakeKeys{})(tenantEcho())

	req := httptest.NewRequest("GET", "/api/v1/domains", nil)
	req.Header.Set("X-API-Key", "dom_nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid API key"}`, rec.Body.String())
}

func TestAuth_ValidKey(t *testing.T) {
	keys := fakeKeys{"dom_good": {ID: "tenant-1", Username: "acme"}}
	handler := Auth(keys)(tenantEcho())

	for _, set := range []func(*http.Request){
		func(r *http.Request) { r.Header.Set("X-API-Key", "dom_good") },
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer dom_good") },
	} {
		req := httptest.NewRequest("GET", "/api/v1/domains", nil)
		set(req)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "tenant-1", rec.Body.String())
	}
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"bearer token", "Bearer dom_abc123", "dom_abc123"},
		{"empty", "", ""},
		{"no prefix", "dom_abc123", ""},
		{"basic auth ignored", "Basic dXNlcjpwYXNz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, extractAPIKey(req))
		})
	}
}

func TestExtractAPIKey_HeaderWins(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-API-Key", "dom_header")
	req.Header.Set("Authorization", "Bearer dom_bearer")
	assert.Equal(t, "dom_header", extractAPIKey(req))
}

func TestGetTenant_Missing(t *testing.T) {
	assert.Nil(t, GetTenant(context.Background()))
}

func TestAuth_StoreFailureIsNotUnauthorized(t *testing.T) {
	handler := Auth(brokenKeys{})(tenantEcho())

	req := httptest.NewRequest("GET", "/api/v1/domains", nil)
	req.Header.Set("X-API-Key", "dom_good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"authentication unavailable"}`, rec.Body.String())
}
