package core

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Outcome classifies a single verification check.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeNotConfigured Outcome = "not-configured"
	OutcomeTransient     Outcome = "transient-error"
	OutcomeMalformed     Outcome = "malformed-response"
)

// Retryable reports whether the outcome is retried without penalty.
func (o Outcome) Retryable() bool {
	return o == OutcomeTransient || o == OutcomeMalformed
}

// CheckResult is the raw result of one check, kept for operator diagnosis.
type CheckResult struct {
	Outcome Outcome
	Detail  string
}

// Err maps the outcome onto the engine's sentinel errors. It is nil on
// success and for the empty result.
func (r CheckResult) Err() error {
	switch r.Outcome {
	case OutcomeSuccess, "":
		return nil
	case OutcomeNotConfigured:
		return fmt.Errorf("%w: %s", ErrNotConfigured, r.Detail)
	default:
		return fmt.Errorf("%w: %s", ErrTransientVerification, r.Detail)
	}
}

// Checker decides whether host currently routes to the platform.
type Checker interface {
	Check(ctx context.Context, host string) CheckResult
}

// SignaturePath is answered by the platform edge on every host. It is part of
// the router's pass-through prefixes so the check reaches the platform even
// for domains that are not active yet.
const SignaturePath = "/.well-known/domain-signature"

// Signature is the body served on SignaturePath.
type Signature struct {
	Platform string `json:"platform"`
	Host     string `json:"host"`
}

// HostResolver is satisfied by *net.Resolver.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// SignatureChecker resolves the candidate hostname and fetches the platform
// signature through it, exactly as a visitor's request would travel.
type SignatureChecker struct {
	platform string
	scheme   string
	resolver HostResolver
	client   *http.Client
}

// NewSignatureChecker builds a checker expecting the signature of platform.
// A nil resolver uses net.DefaultResolver and a nil client a 10s client.
// Redirects are never followed.
func NewSignatureChecker(platform, scheme string, resolver HostResolver, client *http.Client) *SignatureChecker {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	// Copy so the caller's client keeps its redirect policy.
	own := *client
	own.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if scheme == "" {
		scheme = "https"
	}
	return &SignatureChecker{platform: platform, scheme: scheme, resolver: resolver, client: &own}
}

func (p *SignatureChecker) Check(ctx context.Context, host string) CheckResult {
	if _, err := p.resolver.LookupHost(ctx, host); err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return CheckResult{Outcome: OutcomeNotConfigured, Detail: "no DNS record for " + host}
		}
		return CheckResult{Outcome: OutcomeTransient, Detail: fmt.Sprintf("dns lookup: %v", err)}
	}

	u := url.URL{Scheme: p.scheme, Host: host, Path: SignaturePath}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return CheckResult{Outcome: OutcomeNotConfigured, Detail: fmt.Sprintf("build signature request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if isCertificateError(err) {
			return CheckResult{Outcome: OutcomeNotConfigured, Detail: fmt.Sprintf("origin certificate: %v", err)}
		}
		return CheckResult{Outcome: OutcomeTransient, Detail: fmt.Sprintf("signature request: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return CheckResult{Outcome: OutcomeTransient, Detail: fmt.Sprintf("origin answered %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return CheckResult{Outcome: OutcomeNotConfigured, Detail: fmt.Sprintf("origin answered %d", resp.StatusCode)}
	}

	var sig Signature
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&sig); err != nil {
		return CheckResult{Outcome: OutcomeMalformed, Detail: fmt.Sprintf("decode signature: %v", err)}
	}
	if sig.Platform != p.platform {
		return CheckResult{Outcome: OutcomeNotConfigured, Detail: fmt.Sprintf("foreign origin signature %q", sig.Platform)}
	}
	if sig.Host != host {
		return CheckResult{Outcome: OutcomeNotConfigured, Detail: fmt.Sprintf("signature names host %q", sig.Host)}
	}
	return CheckResult{Outcome: OutcomeSuccess, Detail: "platform signature matched"}
}

// isCertificateError reports whether err comes from verifying the origin's
// certificate. A wrong certificate means the host is served elsewhere.
func isCertificateError(err error) bool {
	var certErr *tls.CertificateVerificationError
	var hostErr x509.HostnameError
	var authErr x509.UnknownAuthorityError
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &certErr) || errors.As(err, &hostErr) ||
		errors.As(err, &authErr) || errors.As(err, &invalidErr)
}
