package hostname

import "strings"

// Class is the routing category of a normalized hostname.
type Class int

const (
	// ClassCandidate hosts are looked up against the domain record store.
	ClassCandidate Class = iota
	// ClassPlatform hosts are the platform root, its subdomains and bare IPs.
	ClassPlatform
	// ClassDevelopment hosts are loopback/dev aliases honoured in dev mode only.
	ClassDevelopment
)

func (c Class) String() string {
	switch c {
	case ClassPlatform:
		return "platform"
	case ClassDevelopment:
		return "development"
	default:
		return "candidate"
	}
}

// Policy is the immutable input of a Classifier.
type Policy struct {
	// Root is the platform root domain, e.g. "tiny.pm".
	Root string
	// DevAliases lists exact hosts ("localhost", "127.0.0.1") or suffixes
	// starting with a dot (".localhost").
	DevAliases []string
	// DevMode enables the development branch. In production dev aliases are
	// classified like any other host so a crafted Host header cannot skip
	// the record lookup.
	DevMode bool
}

// Classifier decides which routing branch a host takes.
type Classifier struct {
	root        string
	devExact    map[string]struct{}
	devSuffixes []string
	devMode     bool
}

func NewClassifier(p Policy) *Classifier {
	c := &Classifier{
		root:     Normalize(p.Root),
		devExact: make(map[string]struct{}),
		devMode:  p.DevMode,
	}
	for _, alias := range p.DevAliases {
		alias = Normalize(strings.TrimSpace(alias))
		if alias == "" {
			continue
		}
		if strings.HasPrefix(alias, ".") {
			c.devSuffixes = append(c.devSuffixes, alias)
			continue
		}
		c.devExact[alias] = struct{}{}
	}
	return c
}

// Root returns the normalized platform root domain.
func (c *Classifier) Root() string { return c.root }

// Classify expects a normalized host.
func (c *Classifier) Classify(host string) Class {
	if c.devMode && c.isDevAlias(host) {
		return ClassDevelopment
	}
	if c.IsPlatform(host) {
		return ClassPlatform
	}
	// No tenant may own a bare IP.
	if IsIP(host) {
		return ClassPlatform
	}
	return ClassCandidate
}

// IsPlatform reports whether host is the platform root or one of its subdomains.
func (c *Classifier) IsPlatform(host string) bool {
	if c.root == "" {
		return false
	}
	return host == c.root || strings.HasSuffix(host, "."+c.root)
}

func (c *Classifier) isDevAlias(host string) bool {
	if _, ok := c.devExact[host]; ok {
		return true
	}
	for _, suffix := range c.devSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}
