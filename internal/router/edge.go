package router

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/edvin/domains/internal/api/response"
	"github.com/edvin/domains/internal/core"
	"github.com/edvin/domains/internal/hostname"
	"github.com/edvin/domains/internal/metrics"
)

// Edge applies routing decisions in front of the upstream page renderer.
type Edge struct {
	router   *Router
	platform string
	direct   *httputil.ReverseProxy
	rewrite  *httputil.ReverseProxy
	logger   zerolog.Logger
}

// NewEdge proxies routed requests to upstream, keeping the visitor's Host.
func NewEdge(rt *Router, platform string, upstream *url.URL, logger zerolog.Logger) *Edge {
	logger = logger.With().Str("component", "edge").Logger()

	director := func(pr *httputil.ProxyRequest) {
		pr.SetURL(upstream)
		pr.SetXForwarded()
		pr.Out.Host = pr.In.Host
	}
	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error().Err(err).Str("host", r.Host).Str("path", r.URL.Path).Msg("upstream request failed")
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	}

	return &Edge{
		router:   rt,
		platform: platform,
		direct:   &httputil.ReverseProxy{Rewrite: director, ErrorHandler: errorHandler},
		rewrite: &httputil.ReverseProxy{
			Rewrite:      director,
			ErrorHandler: errorHandler,
			// The platform's HSTS policy must not pin a tenant's domain.
			ModifyResponse: func(resp *http.Response) error {
				resp.Header.Del("Strict-Transport-Security")
				return nil
			},
		},
		logger: logger,
	}
}

func (e *Edge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Vary", "Host")

	if r.URL.Path == core.SignaturePath {
		response.WriteJSON(w, http.StatusOK, core.Signature{
			Platform: e.platform,
			Host:     hostname.Normalize(r.Host),
		})
		return
	}

	d := e.router.Route(r.Context(), r.Host, r.URL.Path)
	metrics.RouteDecisions.WithLabelValues(d.Kind.String()).Inc()

	switch d.Kind {
	case PassThrough:
		e.direct.ServeHTTP(w, r)
	case Rewrite:
		out := r.Clone(r.Context())
		out.URL.Path = d.Target()
		out.URL.RawPath = ""
		e.rewrite.ServeHTTP(w, out)
	case NotFound:
		http.NotFound(w, r)
	default:
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
	}
}
