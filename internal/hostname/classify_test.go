package hostname

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func devPolicy(devMode bool) Policy {
	return Policy{
		Root:       "tiny.pm",
		DevAliases: []string{"localhost", "127.0.0.1", "[::1]", ".localhost"},
		DevMode:    devMode,
	}
}

func TestClassify_PlatformRegardlessOfCaseAndPort(t *testing.T) {
	c := NewClassifier(devPolicy(false))
	for _, raw := range []string{"tiny.pm", "TINY.PM", "tiny.pm:443", "www.tiny.pm", "Api.Tiny.Pm:8080", "a.b.tiny.pm"} {
		assert.Equal(t, ClassPlatform, c.Classify(Normalize(raw)), raw)
	}
}

func TestClassify_SuffixMustBeDotDelimited(t *testing.T) {
	c := NewClassifier(devPolicy(false))
	assert.Equal(t, ClassCandidate, c.Classify("eviltiny.pm"))
	assert.Equal(t, ClassCandidate, c.Classify("tiny.pm.evil.test"))
}

func TestClassify_Candidate(t *testing.T) {
	c := NewClassifier(devPolicy(false))
	assert.Equal(t, ClassCandidate, c.Classify("links.acme.test"))
	assert.Equal(t, ClassCandidate, c.Classify("evil.test"))
}

func TestClassify_IPLiteralsNeverCandidates(t *testing.T) {
	c := NewClassifier(devPolicy(false))
	assert.Equal(t, ClassPlatform, c.Classify("10.1.2.3"))
	assert.Equal(t, ClassPlatform, c.Classify("[2001:db8::1]"))
	assert.Equal(t, ClassPlatform, c.Classify("127.0.0.1"))
}

func TestClassify_DevAliasesOnlyInDevMode(t *testing.T) {
	dev := NewClassifier(devPolicy(true))
	assert.Equal(t, ClassDevelopment, dev.Classify("localhost"))
	assert.Equal(t, ClassDevelopment, dev.Classify("127.0.0.1"))
	assert.Equal(t, ClassDevelopment, dev.Classify("[::1]"))
	assert.Equal(t, ClassDevelopment, dev.Classify("acme.localhost"))

	prod := NewClassifier(devPolicy(false))
	assert.Equal(t, ClassCandidate, prod.Classify("localhost"))
	assert.Equal(t, ClassCandidate, prod.Classify("acme.localhost"))
	assert.Equal(t, ClassPlatform, prod.Classify("127.0.0.1"))
}

func TestClassStrings(t *testing.T) {
	assert.Equal(t, "platform", ClassPlatform.String())
	assert.Equal(t, "development", ClassDevelopment.String())
	assert.Equal(t, "candidate", ClassCandidate.String())
}
