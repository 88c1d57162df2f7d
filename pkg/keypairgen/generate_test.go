package keypairgen

import (
	"testing"
	"time"

	"github.com/deploykit/sslkeeper/pkg/certbundle"
	"github.com/function61/gokit/assert"
)

func TestGenerateSelfSignedProd(t *testing.T) {
	bundle, err := Generate(ProfileSelfSignedProd, "app.example.com")
	assert.Ok(t, err)
	assert.Assert(t, bundle.Source == certbundle.SourceSelfSignedProd)

	facts, err := certbundle.Inspect(*bundle)
	assert.Ok(t, err)

	assert.EqualString(t, facts.SubjectCN, "app.example.com")
	assert.Assert(t, facts.SelfSigned())
	assert.Assert(t, facts.KeyPairMatches())
	assert.Assert(t, containsName(facts.AltNames, "app.example.com"))
	assert.Assert(t, containsName(facts.AltNames, "*.app.example.com"))

	// ~365 days of validity
	daysLeft := facts.DaysUntilExpiry(time.Now())
	assert.Assert(t, daysLeft >= 363 && daysLeft <= 365)
}

func TestGenerateLocalhostDev(t *testing.T) {
	// domain argument is irrelevant for the dev profile
	bundle, err := Generate(ProfileLocalhostDev, "whatever.example.com")
	assert.Ok(t, err)
	assert.Assert(t, bundle.Source == certbundle.SourceLocalhostDev)

	facts, err := certbundle.Inspect(*bundle)
	assert.Ok(t, err)

	assert.EqualString(t, facts.SubjectCN, "localhost")
	assert.Assert(t, facts.SelfSigned())
	assert.Assert(t, containsName(facts.AltNames, "localhost"))
	assert.Assert(t, containsName(facts.AltNames, "*.localhost"))
	assert.Assert(t, containsName(facts.AltNames, "127.0.0.1"))
	assert.Assert(t, containsName(facts.AltNames, "::1"))
}

func TestGenerateMinimal(t *testing.T) {
	bundle, err := Generate(ProfileMinimal, "app.example.com")
	assert.Ok(t, err)
	assert.Assert(t, bundle.Source == certbundle.SourceMinimal)

	facts, err := certbundle.Inspect(*bundle)
	assert.Ok(t, err)

	assert.EqualString(t, facts.SubjectCN, "app.example.com")

	// bare domain only, nothing else
	assert.Assert(t, len(facts.AltNames) == 1)
	assert.Assert(t, containsName(facts.AltNames, "app.example.com"))

	daysLeft := facts.DaysUntilExpiry(time.Now())
	assert.Assert(t, daysLeft >= 28 && daysLeft <= 30)
}

func TestGenerateRejectsEmptyDomain(t *testing.T) {
	_, err := Generate(ProfileMinimal, "")
	assert.Assert(t, err != nil)
}

func containsName(names []string, name string) bool {
	for _, candidate := range names {
		if candidate == name {
			return true
		}
	}

	return false
}
