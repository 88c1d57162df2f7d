package certbundle

import (
	"testing"
	"time"

	"github.com/function61/gokit/assert"
)

func TestInspect(t *testing.T) {
	facts, err := Inspect(Bundle{
		CertPem: []byte(exampleCert),
		KeyPem:  []byte(exampleKey),
	})
	assert.Ok(t, err)

	assert.EqualString(t, facts.SubjectCN, "prod4.example.net")
	assert.EqualString(t, facts.IssuerCN, "prod4.example.net")
	assert.Assert(t, facts.SelfSigned())
	assert.Assert(t, facts.KeyPairMatches())

	assert.Assert(t, len(facts.AltNames) == 3)
	assert.EqualString(t, facts.AltNames[0], "prod4.example.net")
	assert.EqualString(t, facts.AltNames[1], "*.prod4.example.net")
	assert.EqualString(t, facts.AltNames[2], "127.0.0.1")

	assert.EqualString(t, facts.NotAfter.UTC().Format(time.RFC3339), "2027-08-30T09:28:26Z")
}

func TestInspectUnrelatedKey(t *testing.T) {
	facts, err := Inspect(Bundle{
		CertPem: []byte(exampleCert),
		KeyPem:  []byte(unrelatedKey),
	})
	assert.Ok(t, err)

	// both sides still fingerprint fine - they just don't match
	assert.Assert(t, facts.CertKeyFingerprint != "")
	assert.Assert(t, facts.PrivKeyFingerprint != "")
	assert.Assert(t, !facts.KeyPairMatches())
}

func TestInspectGarbage(t *testing.T) {
	_, err := Inspect(Bundle{
		CertPem: []byte("not a certificate"),
		KeyPem:  []byte(exampleKey),
	})
	assert.Assert(t, err != nil)

	_, err = Inspect(Bundle{
		CertPem: []byte(exampleCert),
		KeyPem:  []byte("not a key"),
	})
	assert.Assert(t, err != nil)
}

func TestDaysUntilExpiry(t *testing.T) {
	facts := &Facts{NotAfter: time.Date(2027, 8, 30, 9, 28, 26, 0, time.UTC)}

	assert.Assert(t, facts.DaysUntilExpiry(facts.NotAfter.AddDate(0, 0, -10)) == 10)

	// 23h59m left still counts as zero full days
	assert.Assert(t, facts.DaysUntilExpiry(facts.NotAfter.Add(-23*time.Hour)) == 0)

	// already expired
	assert.Assert(t, facts.DaysUntilExpiry(facts.NotAfter.Add(time.Second)) == -1)
}
