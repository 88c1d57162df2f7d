package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/deploykit/sslkeeper/pkg/acmeclient"
	"github.com/deploykit/sslkeeper/pkg/certbundle"
	"github.com/deploykit/sslkeeper/pkg/certstore"
	"github.com/deploykit/sslkeeper/pkg/certvalidate"
	"github.com/deploykit/sslkeeper/pkg/domainmatch"
	"github.com/deploykit/sslkeeper/pkg/keypairgen"
	"github.com/function61/gokit/logex"
)

type Policy struct {
	store    *certstore.Store
	acme     acmeclient.Client
	generate func(keypairgen.Profile, string) (*certbundle.Bundle, error) // seam for tests
	now      func() time.Time
	logl     *logex.Leveled
}

func New(store *certstore.Store, acme acmeclient.Client, logger *log.Logger) *Policy {
	return &Policy{
		store:    store,
		acme:     acme,
		generate: keypairgen.Generate,
		now:      time.Now,
		logl:     logex.Levels(logger),
	}
}

// Status assesses the current bundle without changing anything
func (p *Policy) Status(lc Context) (*Status, error) {
	_, report, state := p.assess(lc)

	return statusFromReport(state, report), nil
}

// Ensure guarantees a usable bundle exists at the canonical path when it
// returns without error. All replacements go through backup-then-replace.
func (p *Policy) Ensure(ctx context.Context, lc Context) (*Status, error) {
	bundle, report, state := p.assess(lc)

	// advisory finding, auto-corrected in place
	if report != nil && report.Has(certvalidate.FindingBadPermissions) {
		if err := p.store.FixKeyPermissions(); err != nil {
			p.logl.Error.Printf("could not fix key permissions: %v", err)
		}
	}

	switch state {
	case StateValid:
		if !lc.Force {
			return statusFromReport(state, report), nil
		}
		// forced re-acquisition: treat like there was nothing
		return p.obtainNew(ctx, lc)
	case StateExpiringSoon:
		return p.attemptRenewal(ctx, lc, bundle, report)
	case StateInvalid:
		// the invalid bundle gets backed up by the store before the
		// replacement is committed, then this is just the no-cert path
		p.logl.Info.Printf("current bundle unusable (%v), replacing", report.Findings)
		return p.obtainNew(ctx, lc)
	default: // StateNoCertificate
		return p.obtainNew(ctx, lc)
	}
}

// Renew forces a renewal attempt with the strategy matching the bundle's
// source. Unlike Ensure, it acts even when not yet inside the threshold.
func (p *Policy) Renew(ctx context.Context, lc Context) (*Status, error) {
	bundle, report, state := p.assess(lc)

	if state == StateNoCertificate {
		return nil, certstore.ErrNotFound
	}

	if state == StateInvalid {
		return p.obtainNew(ctx, lc)
	}

	return p.renewOnce(ctx, lc, bundle, report)
}

func (p *Policy) assess(lc Context) (*certbundle.Bundle, *certvalidate.Report, State) {
	bundle, err := p.store.Load()
	if err != nil {
		// covers ErrNotFound and unreadable files alike: no usable bundle
		if !errors.Is(err, certstore.ErrNotFound) {
			p.logl.Error.Printf("load: %v", err)
		}
		return nil, nil, StateNoCertificate
	}

	keyMode, _ := p.store.KeyFileMode()

	report := certvalidate.Validate(certvalidate.Input{
		Bundle:         bundle,
		ExpectedDomain: lc.Domain,
		ThresholdDays:  lc.ThresholdDays,
		EnforceDomain:  lc.EnforceDomain,
		KeyFileMode:    keyMode,
	}, p.now())

	switch {
	case !report.Usable():
		return bundle, report, StateInvalid
	case report.Degraded():
		return bundle, report, StateExpiringSoon
	default:
		return bundle, report, StateValid
	}
}

func (p *Policy) obtainNew(ctx context.Context, lc Context) (*Status, error) {
	// development hosts never go to a public CA
	if lc.Provider == ProviderLetsEncrypt && !domainmatch.IsDevelopmentHost(lc.Domain) {
		bundle, err := p.acquireViaAcme(ctx, lc)
		if err != nil {
			if lc.forcedLetsEncrypt() {
				return nil, err
			}
			p.logl.Error.Printf("letsencrypt unavailable, falling back to self-signed: %v", err)
		} else {
			return p.commit(lc, bundle)
		}
	}

	bundle, err := p.generate(selfSignedProfileFor(lc.Domain), lc.Domain)
	if err != nil {
		p.logl.Error.Printf("%s generation failed: %v", selfSignedProfileFor(lc.Domain), err)

		// last resort: guarantee we never finish without a bundle when one
		// was asked for
		bundle, err = p.generate(keypairgen.ProfileMinimal, lc.Domain)
		if err != nil {
			return nil, fmt.Errorf("all acquisition strategies failed: %w", err)
		}
	}

	return p.commit(lc, bundle)
}

func (p *Policy) acquireViaAcme(ctx context.Context, lc Context) (*certbundle.Bundle, error) {
	if err := p.acme.Preflight(ctx); err != nil {
		return nil, err
	}

	return p.acme.Obtain(ctx, lc.Domain)
}

// renewal failure of a still-usable bundle is a warning, not an error: the
// old bundle stays live and the caller reports degraded-but-operational
func (p *Policy) attemptRenewal(
	ctx context.Context,
	lc Context,
	bundle *certbundle.Bundle,
	report *certvalidate.Report,
) (*Status, error) {
	status, err := p.renewOnce(ctx, lc, bundle, report)
	if err != nil {
		degraded := statusFromReport(StateExpiringSoon, report)
		degraded.Warning = fmt.Sprintf("renewal failed, previous bundle still live: %v", err)

		p.logl.Error.Println(degraded.Warning)

		return degraded, nil
	}

	return status, nil
}

func (p *Policy) renewOnce(
	ctx context.Context,
	lc Context,
	bundle *certbundle.Bundle,
	report *certvalidate.Report,
) (*Status, error) {
	if bundle.Source == certbundle.SourceLetsEncrypt {
		if err := p.acme.Preflight(ctx); err != nil {
			return nil, err
		}

		renewed, err := p.acme.Renew(ctx, bundle, lc.Domain)
		if err != nil {
			return nil, err
		}

		return p.commit(lc, renewed)
	}

	// self-signed and imported bundles renew by regeneration
	regenerated, err := p.generate(profileForSource(bundle.Source, lc.Domain), lc.Domain)
	if err != nil {
		return nil, err
	}

	return p.commit(lc, regenerated)
}

func (p *Policy) commit(lc Context, bundle *certbundle.Bundle) (*Status, error) {
	if err := p.store.BackupThenReplace(bundle); err != nil {
		return nil, err
	}

	report := certvalidate.Validate(certvalidate.Input{
		Bundle:         bundle,
		ExpectedDomain: lc.Domain,
		ThresholdDays:  lc.ThresholdDays,
		EnforceDomain:  lc.EnforceDomain,
	}, p.now())

	// a minimal fallback bundle is already inside the renewal window when
	// committed - the state must say so instead of claiming full validity
	state := StateValid
	if report.Degraded() {
		state = StateExpiringSoon
	}

	return statusFromReport(state, report), nil
}

func selfSignedProfileFor(domain string) keypairgen.Profile {
	if domainmatch.IsDevelopmentHost(domain) {
		return keypairgen.ProfileLocalhostDev
	}

	return keypairgen.ProfileSelfSignedProd
}

func profileForSource(source certbundle.Source, domain string) keypairgen.Profile {
	switch source {
	case certbundle.SourceLocalhostDev:
		return keypairgen.ProfileLocalhostDev
	case certbundle.SourceMinimal:
		return keypairgen.ProfileMinimal
	default:
		// self-signed-prod, and the sanest regeneration for user-imported
		return selfSignedProfileFor(domain)
	}
}

func statusFromReport(state State, report *certvalidate.Report) *Status {
	if report == nil {
		return &Status{
			State:    StateNoCertificate,
			Findings: []certvalidate.Finding{{Kind: certvalidate.FindingMissingFile}},
		}
	}

	return &Status{
		State:    state,
		Source:   report.Source,
		Findings: report.Findings,
		DaysLeft: report.DaysLeft,
	}
}
