// Assesses a certificate bundle against a domain and a renewal threshold,
// producing an ordered list of findings. Callers decide what to do with them;
// lifecycle treats blocking findings as "replace me", the CLI maps them to
// exit codes.
package certvalidate

import (
	"fmt"
)

type FindingKind string

const (
	FindingValid                 FindingKind = "valid"
	FindingExpired               FindingKind = "expired"
	FindingExpiringSoon          FindingKind = "expiring-soon"
	FindingKeyMismatch           FindingKind = "key-mismatch"
	FindingDomainMismatch        FindingKind = "domain-mismatch"
	FindingMissingFile           FindingKind = "missing-file"
	FindingBadPermissions        FindingKind = "bad-permissions"
	FindingUnparsableCertificate FindingKind = "unparsable-certificate"
)

type Finding struct {
	Kind     FindingKind `json:"kind"`
	DaysLeft int         `json:"days_left,omitempty"` // only for expiring-soon
	Detail   string      `json:"detail,omitempty"`
}

func (f Finding) String() string {
	switch {
	case f.Kind == FindingExpiringSoon:
		return fmt.Sprintf("%s (%d days left)", f.Kind, f.DaysLeft)
	case f.Detail != "":
		return fmt.Sprintf("%s (%s)", f.Kind, f.Detail)
	default:
		return string(f.Kind)
	}
}

// blocking = the bundle must not be served as-is. domain mismatch blocks only
// under strict enforcement, which the Report remembers from its Validate call.
func (f FindingKind) blocking(enforceDomain bool) bool {
	switch f {
	case FindingExpired, FindingKeyMismatch, FindingUnparsableCertificate, FindingMissingFile:
		return true
	case FindingDomainMismatch:
		return enforceDomain
	default:
		return false
	}
}
