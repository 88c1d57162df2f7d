// Bundle is the unit everything else operates on: one PEM certificate chain and
// its PEM private key, plus a tag for how the pair came to be.
package certbundle

import (
	"time"
)

type Source string

const (
	SourceLocalhostDev   Source = "localhost-dev"
	SourceSelfSignedProd Source = "self-signed-prod"
	SourceMinimal        Source = "minimal"
	SourceLetsEncrypt    Source = "letsencrypt"
	SourceUserImported   Source = "user-imported"
)

// self-signed sources are generated locally; letsencrypt comes from a CA.
// user-imported provenance is unknown until validated.
func (s Source) SelfSigned() bool {
	switch s {
	case SourceLocalhostDev, SourceSelfSignedProd, SourceMinimal:
		return true
	default:
		return false
	}
}

type Bundle struct {
	CertPem []byte `json:"cert_pem"` // "bundle" = may contain intermediate cert
	KeyPem  []byte `json:"key_pem"`
	Source  Source `json:"source"`
}

// structured facts extracted from a bundle. never assembled by hand - always
// comes out of Inspect() so the fingerprints are computed consistently.
type Facts struct {
	SubjectCN          string    `json:"subject_cn"`
	AltNames           []string  `json:"alt_names"` // DNS names and IP literals
	NotBefore          time.Time `json:"not_before"`
	NotAfter           time.Time `json:"not_after"`
	IssuerCN           string    `json:"issuer_cn"`
	CertKeyFingerprint string    `json:"cert_key_fingerprint"` // of cert's public key
	PrivKeyFingerprint string    `json:"priv_key_fingerprint"` // of key's derived public key
}

func (f *Facts) SelfSigned() bool {
	return f.IssuerCN == f.SubjectCN
}

func (f *Facts) KeyPairMatches() bool {
	return f.CertKeyFingerprint == f.PrivKeyFingerprint
}

// negative when already expired. rounds down, so 23h59m left = 0 days.
func (f *Facts) DaysUntilExpiry(now time.Time) int {
	left := f.NotAfter.Sub(now)
	if left < 0 {
		// explicit so -1h doesn't round towards zero and read as "0 days left"
		return -1
	}
	return int(left / (24 * time.Hour))
}
