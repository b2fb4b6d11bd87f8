package hostname

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DNSInstruction is the record a tenant must create at their DNS provider.
type DNSInstruction struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Instructions derives the DNS record for domain from its structure alone.
// The record name is domain relative to its registrable domain, so apex
// domains get "@" (which most providers flatten into an ALIAS/ANAME record)
// and multi-label subdomains keep every label left of the registrable part.
func Instructions(domain, target string) DNSInstruction {
	return DNSInstruction{
		Type:  "CNAME",
		Name:  recordName(domain),
		Value: target,
	}
}

func recordName(domain string) string {
	registrable, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		// domain is itself a public suffix; assume a single-label TLD.
		if labels := strings.Split(domain, "."); len(labels) > 2 {
			return strings.Join(labels[:len(labels)-2], ".")
		}
		return "@"
	}
	if name, ok := strings.CutSuffix(domain, "."+registrable); ok {
		return name
	}
	return "@"
}
