package certstore

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/deploykit/sslkeeper/pkg/certbundle"
	"github.com/deploykit/sslkeeper/pkg/certvalidate"
)

// ImportUserProvided validates a cert/key pair of unknown provenance and
// commits it only if it passes the full check (imported material always gets
// strict domain enforcement - we have no other reason to trust it).
func (s *Store) ImportUserProvided(
	certPem []byte,
	keyPem []byte,
	expectedDomain string,
	thresholdDays int,
) (*certvalidate.Report, error) {
	bundle := &certbundle.Bundle{
		CertPem: certPem,
		KeyPem:  keyPem,
		Source:  certbundle.SourceUserImported,
	}

	report := certvalidate.Validate(certvalidate.Input{
		Bundle:         bundle,
		ExpectedDomain: expectedDomain,
		ThresholdDays:  thresholdDays,
		EnforceDomain:  true,
	}, time.Now())

	if !report.Usable() {
		return report, fmt.Errorf("import rejected: %s", findingsSummary(report))
	}

	if err := s.BackupThenReplace(bundle); err != nil {
		return report, err
	}

	return report, nil
}

// candidate cert/key pair somewhere outside the canonical path
type LegacyLocation struct {
	CertPath string
	KeyPath  string
}

// ConsolidateFromKnownLocations is a migration aid: walks an explicit, ordered
// list of legacy paths and promotes the first pair that validates cleanly.
// The list is always passed in by the caller - there is no hidden default.
func (s *Store) ConsolidateFromKnownLocations(
	locations []LegacyLocation,
	expectedDomain string,
	thresholdDays int,
) (*certvalidate.Report, error) {
	for _, location := range locations {
		certPem, err := ioutil.ReadFile(location.CertPath)
		if err != nil {
			continue
		}

		keyPem, err := ioutil.ReadFile(location.KeyPath)
		if err != nil {
			continue
		}

		report, err := s.ImportUserProvided(certPem, keyPem, expectedDomain, thresholdDays)
		if err != nil {
			s.logl.Debug.Printf("consolidate: skipping %s: %v", location.CertPath, err)
			continue
		}

		s.logl.Info.Printf("consolidate: promoted %s", location.CertPath)

		return report, nil
	}

	return nil, ErrNotFound
}

func findingsSummary(report *certvalidate.Report) string {
	summary := ""
	for idx, finding := range report.Findings {
		if idx > 0 {
			summary += ", "
		}
		summary += finding.String()
	}

	if summary == "" {
		summary = "no findings"
	}

	return summary
}
