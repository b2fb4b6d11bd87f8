package hostname

import (
	"fmt"
	"net"
	"strings"
)

// Normalize reduces a raw Host header value to its comparable form: an
// optional trailing :port is removed and the rest is lower-cased.
// Bracketed IPv6 literals keep their brackets so the result is stable
// under repeated normalization.
func Normalize(raw string) string {
	return strings.ToLower(stripPort(raw))
}

func stripPort(host string) string {
	if strings.HasPrefix(host, "[") {
		end := strings.Index(host, "]")
		if end == -1 {
			return host
		}
		if rest := host[end+1:]; rest != "" && isPort(rest[1:]) && rest[0] == ':' {
			return host[:end+1]
		}
		return host
	}

	// Bare IPv6 literals carry more than one colon and no port.
	if strings.Count(host, ":") != 1 {
		return host
	}
	i := strings.LastIndex(host, ":")
	if !isPort(host[i+1:]) {
		return host
	}
	return host[:i]
}

func isPort(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// IsIP reports whether host is an IP literal, with or without brackets.
func IsIP(host string) bool {
	return net.ParseIP(strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")) != nil
}

// Validate checks that host is a syntactically valid DNS name a tenant could
// register. It expects a normalized host.
func Validate(host string) error {
	if host == "" {
		return fmt.Errorf("domain is required")
	}
	if len(host) > 253 {
		return fmt.Errorf("domain name too long (max 253 characters)")
	}
	if IsIP(host) {
		return fmt.Errorf("domain %q is an IP address", host)
	}

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return fmt.Errorf("domain %q must contain at least one dot", host)
	}
	for _, label := range labels {
		if err := validateLabel(label); err != nil {
			return fmt.Errorf("domain %q: %w", host, err)
		}
	}
	return nil
}

func validateLabel(label string) error {
	n := len(label)
	if n == 0 {
		return fmt.Errorf("empty label")
	}
	if n > 63 {
		return fmt.Errorf("label too long (max 63 characters)")
	}
	if label[0] == '-' || label[n-1] == '-' {
		return fmt.Errorf("labels cannot start or end with a hyphen")
	}
	for _, c := range label {
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-') {
			return fmt.Errorf("invalid character %q", c)
		}
	}
	return nil
}
