// Decision engine: looks at what's on disk, asks the validator what it's
// worth, and drives generation / ACME acquisition / renewal so that a usable
// bundle exists at the canonical path when we're done.
package lifecycle

import (
	"github.com/deploykit/sslkeeper/pkg/certbundle"
	"github.com/deploykit/sslkeeper/pkg/certvalidate"
)

type Provider string

const (
	ProviderLetsEncrypt Provider = "letsencrypt"
	ProviderSelfSigned  Provider = "self-signed"
)

// everything a lifecycle decision depends on, passed explicitly.
// nothing here is ever read from ambient env vars or the working directory.
type Context struct {
	Domain        string
	Email         string
	Provider      Provider
	Force         bool // re-acquire even if the current bundle is valid
	Interactive   bool // caller may be prompted (consent prompts etc.)
	EnforceDomain bool // domain mismatch becomes blocking
	ThresholdDays int  // 0 = certvalidate default
}

// forced LetsEncrypt means preflight/acquisition failures surface as hard
// errors instead of falling back to self-signed
func (c Context) forcedLetsEncrypt() bool {
	return c.Force && c.Provider == ProviderLetsEncrypt
}

type State string

const (
	StateNoCertificate State = "no-certificate"
	StateInvalid       State = "invalid-certificate"
	StateExpiringSoon  State = "expiring-soon"
	StateValid         State = "valid"
)

// structured outcome for the status/validate command surface
type Status struct {
	State    State                  `json:"state"`
	Source   certbundle.Source      `json:"source,omitempty"`
	Findings []certvalidate.Finding `json:"findings"`
	DaysLeft int                    `json:"days_left"`
	Warning  string                 `json:"warning,omitempty"` // degraded but operational
}
