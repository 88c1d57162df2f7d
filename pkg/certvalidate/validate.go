package certvalidate

import (
	"os"
	"time"

	"github.com/deploykit/sslkeeper/pkg/certbundle"
	"github.com/deploykit/sslkeeper/pkg/domainmatch"
)

// below this many days left, a still-valid bundle is flagged for proactive
// renewal (same idea as renewing a month before expiry)
const DefaultRenewalThresholdDays = 30

type Input struct {
	Bundle         *certbundle.Bundle // nil = no bundle on disk
	ExpectedDomain string             // "" = skip domain checks
	ThresholdDays  int                // <= 0 = DefaultRenewalThresholdDays
	EnforceDomain  bool               // domain mismatch becomes blocking
	KeyFileMode    os.FileMode        // 0 = not loaded from a file, skip permission check
}

type Report struct {
	Findings      []Finding          `json:"findings"`
	Facts         *certbundle.Facts  `json:"facts,omitempty"`
	Source        certbundle.Source  `json:"source,omitempty"`
	DaysLeft      int                `json:"days_left"`
	enforceDomain bool
}

// no blocking findings = the bundle can be served
func (r *Report) Usable() bool {
	for _, finding := range r.Findings {
		if finding.Kind.blocking(r.enforceDomain) {
			return false
		}
	}

	return true
}

// usable but due for proactive renewal
func (r *Report) Degraded() bool {
	return r.Usable() && r.Has(FindingExpiringSoon)
}

func (r *Report) Has(kind FindingKind) bool {
	for _, finding := range r.Findings {
		if finding.Kind == kind {
			return true
		}
	}

	return false
}

func Validate(in Input, now time.Time) *Report {
	report := &Report{
		Findings:      []Finding{},
		enforceDomain: in.EnforceDomain,
	}

	if in.Bundle == nil || len(in.Bundle.CertPem) == 0 || len(in.Bundle.KeyPem) == 0 {
		report.Findings = append(report.Findings, Finding{Kind: FindingMissingFile})
		return report
	}

	report.Source = in.Bundle.Source

	facts, err := certbundle.Inspect(*in.Bundle)
	if err != nil {
		report.Findings = append(report.Findings, Finding{
			Kind:   FindingUnparsableCertificate,
			Detail: err.Error(),
		})
		return report
	}

	report.Facts = facts
	report.DaysLeft = facts.DaysUntilExpiry(now)

	// blocking, but keep collecting the rest for diagnostics
	if !facts.KeyPairMatches() {
		report.Findings = append(report.Findings, Finding{Kind: FindingKeyMismatch})
	}

	threshold := in.ThresholdDays
	if threshold <= 0 {
		threshold = DefaultRenewalThresholdDays
	}

	// duration comparison, not rounded days: now+threshold+1d must not get
	// flagged just because 30.9 days floors to 30
	if now.After(facts.NotAfter) {
		report.Findings = append(report.Findings, Finding{Kind: FindingExpired})
	} else if facts.NotAfter.Sub(now) <= time.Duration(threshold)*24*time.Hour {
		report.Findings = append(report.Findings, Finding{
			Kind:     FindingExpiringSoon,
			DaysLeft: report.DaysLeft,
		})
	}

	// development hosts (localhost, bare IPs) bypass name checks entirely
	if in.ExpectedDomain != "" && !domainmatch.IsDevelopmentHost(in.ExpectedDomain) {
		if !domainmatch.Matches(in.ExpectedDomain, facts.SubjectCN, facts.AltNames) {
			report.Findings = append(report.Findings, Finding{
				Kind:   FindingDomainMismatch,
				Detail: "certificate does not cover " + in.ExpectedDomain,
			})
		}
	}

	// advisory only; certstore can auto-correct it
	if in.KeyFileMode != 0 && in.KeyFileMode&0077 != 0 {
		report.Findings = append(report.Findings, Finding{
			Kind:   FindingBadPermissions,
			Detail: "private key readable by group/other",
		})
	}

	if len(report.Findings) == 0 {
		report.Findings = append(report.Findings, Finding{Kind: FindingValid})
	}

	return report
}
