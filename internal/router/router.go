// Package router decides, per incoming request, whether the platform serves
// it as is, rewrites it into a tenant's profile path, or refuses it.
package router

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/domains/internal/core"
	"github.com/edvin/domains/internal/hostname"
)

// DefaultPassThroughPrefixes are served by the platform on any host.
var DefaultPassThroughPrefixes = []string{
	"/_next", "/images", "/static", "/api", "/.well-known", "/404", "/500", "/favicon.ico",
}

// Resolver maps a hostname to the username it routes to. Implementations
// return an error wrapping core.ErrNotConfigured when nothing is routed there.
type Resolver interface {
	Resolve(ctx context.Context, host string) (string, error)
}

type Kind int

const (
	PassThrough Kind = iota
	Rewrite
	NotFound
	ServerError
)

func (k Kind) String() string {
	switch k {
	case PassThrough:
		return "pass_through"
	case Rewrite:
		return "rewrite"
	case NotFound:
		return "not_found"
	case ServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// Decision is the routing outcome for one request. Username and Path are
// set for Rewrite, Reason for ServerError.
type Decision struct {
	Kind     Kind
	Username string
	Path     string
	Reason   string
}

// Target is the upstream path a Rewrite is served from.
func (d Decision) Target() string {
	return "/" + d.Username + d.Path
}

type Policy struct {
	PassThroughPrefixes []string
	LookupTimeout       time.Duration
}

type Router struct {
	resolver   Resolver
	classifier *hostname.Classifier
	prefixes   []string
	timeout    time.Duration
	logger     zerolog.Logger
}

func New(resolver Resolver, classifier *hostname.Classifier, policy Policy, logger zerolog.Logger) *Router {
	prefixes := policy.PassThroughPrefixes
	if len(prefixes) == 0 {
		prefixes = DefaultPassThroughPrefixes
	}
	return &Router{
		resolver:   resolver,
		classifier: classifier,
		prefixes:   prefixes,
		timeout:    policy.LookupTimeout,
		logger:     logger.With().Str("component", "router").Logger(),
	}
}

// Route decides how to serve path on rawHost. Path prefixes win over host
// classification; only candidate hosts are looked up.
func (rt *Router) Route(ctx context.Context, rawHost, path string) Decision {
	if rt.passThrough(path) {
		return Decision{Kind: PassThrough}
	}

	host := hostname.Normalize(rawHost)
	if host == "" {
		return Decision{Kind: NotFound}
	}
	switch rt.classifier.Classify(host) {
	case hostname.ClassPlatform, hostname.ClassDevelopment:
		return Decision{Kind: PassThrough}
	}
	if hostname.Validate(host) != nil {
		return Decision{Kind: NotFound}
	}

	if rt.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.timeout)
		defer cancel()
	}

	username, err := rt.resolver.Resolve(ctx, host)
	switch {
	case errors.Is(err, core.ErrNotConfigured), errors.Is(err, core.ErrInvalidInput):
		return Decision{Kind: NotFound}
	case err != nil:
		rt.logger.Error().Err(err).Str("host", host).Msg("custom domain lookup failed")
		return Decision{Kind: ServerError, Reason: err.Error()}
	case username == "":
		return Decision{Kind: NotFound}
	}

	if path == "" {
		path = "/"
	}
	return Decision{Kind: Rewrite, Username: username, Path: path}
}

// passThrough matches whole path segments, so "/apiary" is not "/api".
func (rt *Router) passThrough(path string) bool {
	for _, prefix := range rt.prefixes {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}
