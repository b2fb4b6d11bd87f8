package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/edvin/domains/internal/api/response"
	"github.com/edvin/domains/internal/core"
	"github.com/edvin/domains/internal/hostname"
)

const (
	devUsername  = "dev"
	rootUsername = "root"
)

// Resolver maps a host to the username it is served as.
type Resolver interface {
	Resolve(ctx context.Context, host string) (string, error)
}

type VerifyResponse struct {
	Username string `json:"username"`
}

// Verify is the lookup endpoint the edge asks before rewriting a request.
type Verify struct {
	resolver   Resolver
	classifier *hostname.Classifier
}

func NewVerify(resolver Resolver, classifier *hostname.Classifier) *Verify {
	return &Verify{resolver: resolver, classifier: classifier}
}

// Get answers GET /api/domains/verify?domain=<host>.
func (h *Verify) Get(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	raw := r.URL.Query().Get("domain")
	if raw == "" {
		response.WriteError(w, http.StatusBadRequest, "no domain provided")
		return
	}
	host := hostname.Normalize(raw)

	switch h.classifier.Classify(host) {
	case hostname.ClassDevelopment:
		logger.Debug().Str("domain", host).Msg("dev alias resolved")
		response.WriteJSON(w, http.StatusOK, VerifyResponse{Username: devUsername})
		return
	case hostname.ClassPlatform:
		if h.classifier.IsPlatform(host) {
			response.WriteJSON(w, http.StatusOK, VerifyResponse{Username: rootUsername})
			return
		}
	}

	if err := hostname.Validate(host); err != nil && !hostname.IsIP(host) {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	username, err := h.resolver.Resolve(r.Context(), host)
	switch {
	case err == nil && username != "":
		logger.Debug().Str("domain", host).Str("username", username).Msg("custom domain resolved")
		response.WriteJSON(w, http.StatusOK, VerifyResponse{Username: username})
	case err == nil, errors.Is(err, core.ErrNotConfigured):
		logger.Debug().Str("domain", host).Msg("custom domain not found")
		response.WriteError(w, http.StatusNotFound, "domain not found")
	case errors.Is(err, core.ErrInvalidInput):
		response.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error().Err(err).Str("domain", host).Msg("custom domain lookup failed")
		response.WriteError(w, http.StatusInternalServerError, "verification failed")
	}
}
