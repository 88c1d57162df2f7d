package lifecycle

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/deploykit/sslkeeper/pkg/acmeclient"
	"github.com/deploykit/sslkeeper/pkg/certbundle"
	"github.com/deploykit/sslkeeper/pkg/certstore"
	"github.com/deploykit/sslkeeper/pkg/keypairgen"
	"github.com/function61/gokit/assert"
)

type fakeAcme struct {
	preflightErr error
	obtainResult *certbundle.Bundle
	obtainErr    error
	renewResult  *certbundle.Bundle
	renewErr     error
	obtainCalls  int
	renewCalls   int
}

func (f *fakeAcme) Preflight(_ context.Context) error {
	return f.preflightErr
}

func (f *fakeAcme) Obtain(_ context.Context, domain string) (*certbundle.Bundle, error) {
	f.obtainCalls++
	return f.obtainResult, f.obtainErr
}

func (f *fakeAcme) Renew(_ context.Context, current *certbundle.Bundle, domain string) (*certbundle.Bundle, error) {
	f.renewCalls++
	return f.renewResult, f.renewErr
}

func TestEnsureSelfSignedFromNothing(t *testing.T) {
	policy, store, _, cleanup := setupCommon(t)
	defer cleanup()

	status, err := policy.Ensure(context.Background(), Context{
		Domain:   "app.example.com",
		Provider: ProviderSelfSigned,
	})
	assert.Ok(t, err)
	assert.Assert(t, status.State == StateValid)

	bundle, err := store.Load()
	assert.Ok(t, err)
	assert.Assert(t, bundle.Source == certbundle.SourceSelfSignedProd)

	facts, err := certbundle.Inspect(*bundle)
	assert.Ok(t, err)
	assert.EqualString(t, facts.SubjectCN, "app.example.com")
	assert.Assert(t, facts.SelfSigned())
	assert.Assert(t, containsName(facts.AltNames, "*.app.example.com"))

	daysLeft := facts.DaysUntilExpiry(time.Now())
	assert.Assert(t, daysLeft >= 363 && daysLeft <= 365)
}

func TestEnsureLocalhostNeverGoesToCA(t *testing.T) {
	policy, store, acme, cleanup := setupCommon(t)
	defer cleanup()

	status, err := policy.Ensure(context.Background(), Context{
		Domain:   "localhost",
		Provider: ProviderLetsEncrypt,
	})
	assert.Ok(t, err)
	assert.Assert(t, status.State == StateValid)
	assert.Assert(t, acme.obtainCalls == 0)

	bundle, err := store.Load()
	assert.Ok(t, err)
	assert.Assert(t, bundle.Source == certbundle.SourceLocalhostDev)
}

func TestEnsurePreflightFailureFallsBackToSelfSigned(t *testing.T) {
	policy, store, acme, cleanup := setupCommon(t)
	defer cleanup()

	acme.preflightErr = &acmeclient.PreflightError{Reason: "port 80 already bound"}

	status, err := policy.Ensure(context.Background(), Context{
		Domain:   "app.example.com",
		Provider: ProviderLetsEncrypt,
	})
	assert.Ok(t, err)
	assert.Assert(t, status.State == StateValid)
	assert.Assert(t, acme.obtainCalls == 0)

	bundle, err := store.Load()
	assert.Ok(t, err)
	assert.Assert(t, bundle.Source == certbundle.SourceSelfSignedProd)
}

func TestEnsureForcedLetsEncryptSurfacesPreflightError(t *testing.T) {
	policy, store, acme, cleanup := setupCommon(t)
	defer cleanup()

	acme.preflightErr = &acmeclient.PreflightError{Reason: "not root"}

	_, err := policy.Ensure(context.Background(), Context{
		Domain:   "app.example.com",
		Provider: ProviderLetsEncrypt,
		Force:    true,
	})
	assert.Assert(t, err != nil)

	preflightErr := &acmeclient.PreflightError{}
	assert.Assert(t, errors.As(err, &preflightErr))

	// no fallback happened either
	_, err = store.Load()
	assert.Assert(t, err == certstore.ErrNotFound)
}

func TestEnsureAcquiresViaAcme(t *testing.T) {
	policy, store, acme, cleanup := setupCommon(t)
	defer cleanup()

	acme.obtainResult = letsEncryptDummy(t, "app.example.com", 90)

	status, err := policy.Ensure(context.Background(), Context{
		Domain:   "app.example.com",
		Provider: ProviderLetsEncrypt,
	})
	assert.Ok(t, err)
	assert.Assert(t, status.State == StateValid)
	assert.Assert(t, acme.obtainCalls == 1)

	bundle, err := store.Load()
	assert.Ok(t, err)
	assert.Assert(t, bundle.Source == certbundle.SourceLetsEncrypt)
}

func TestRenewalFailureKeepsPreviousBundleLive(t *testing.T) {
	policy, store, acme, cleanup := setupCommon(t)
	defer cleanup()

	// valid LetsEncrypt bundle with 5 days left, threshold 30
	aging := letsEncryptDummy(t, "app.example.com", 5)
	assert.Ok(t, store.BackupThenReplace(aging))

	acme.renewErr = &acmeclient.AcquisitionError{Err: errors.New("CA unreachable")}

	status, err := policy.Ensure(context.Background(), Context{
		Domain:        "app.example.com",
		Provider:      ProviderLetsEncrypt,
		ThresholdDays: 30,
	})

	// degraded but operational: no error, warning set, old bundle untouched
	assert.Ok(t, err)
	assert.Assert(t, status.State == StateExpiringSoon)
	assert.Assert(t, status.Warning != "")
	assert.Assert(t, acme.renewCalls == 1)

	bundle, err := store.Load()
	assert.Ok(t, err)
	assert.EqualString(t, string(bundle.CertPem), string(aging.CertPem))
}

func TestRenewalSuccessCommitsAndBacksUp(t *testing.T) {
	policy, store, acme, cleanup := setupCommon(t)
	defer cleanup()

	aging := letsEncryptDummy(t, "app.example.com", 5)
	assert.Ok(t, store.BackupThenReplace(aging))

	acme.renewResult = letsEncryptDummy(t, "app.example.com", 90)

	status, err := policy.Ensure(context.Background(), Context{
		Domain:        "app.example.com",
		Provider:      ProviderLetsEncrypt,
		ThresholdDays: 30,
	})
	assert.Ok(t, err)
	assert.Assert(t, status.State == StateValid)
	assert.Assert(t, status.Warning == "")

	bundle, err := store.Load()
	assert.Ok(t, err)
	assert.EqualString(t, string(bundle.CertPem), string(acme.renewResult.CertPem))
}

func TestSelfSignedBundleRenewsByRegeneration(t *testing.T) {
	policy, store, acme, cleanup := setupCommon(t)
	defer cleanup()

	aging := selfSignedDummy(t, "app.example.com", 5)
	assert.Ok(t, store.BackupThenReplace(aging))

	status, err := policy.Ensure(context.Background(), Context{
		Domain:        "app.example.com",
		Provider:      ProviderSelfSigned,
		ThresholdDays: 30,
	})
	assert.Ok(t, err)
	assert.Assert(t, status.State == StateValid)
	assert.Assert(t, acme.renewCalls == 0)

	bundle, err := store.Load()
	assert.Ok(t, err)
	assert.Assert(t, string(bundle.CertPem) != string(aging.CertPem))
	assert.Assert(t, bundle.Source == certbundle.SourceSelfSignedProd)
}

func TestMinimalProfileIsLastResort(t *testing.T) {
	policy, store, _, cleanup := setupCommon(t)
	defer cleanup()

	// self-signed-prod generation breaks; only the minimal profile works
	policy.generate = func(profile keypairgen.Profile, domain string) (*certbundle.Bundle, error) {
		if profile != keypairgen.ProfileMinimal {
			return nil, keypairgen.ErrGenerationFailed
		}
		return fastGenerate(profile, domain)
	}

	status, err := policy.Ensure(context.Background(), Context{
		Domain:   "app.example.com",
		Provider: ProviderSelfSigned,
	})
	assert.Ok(t, err)

	// a 30-day minimal bundle sits inside the default renewal window from day
	// one, and the reported state must not pretend otherwise
	assert.Assert(t, status.State == StateExpiringSoon)

	bundle, err := store.Load()
	assert.Ok(t, err)
	assert.Assert(t, bundle.Source == certbundle.SourceMinimal)
}

func TestInvalidBundleGetsReplaced(t *testing.T) {
	policy, store, _, cleanup := setupCommon(t)
	defer cleanup()

	// mismatched pair on disk
	certHalf := selfSignedDummy(t, "app.example.com", 60)
	keyHalf := selfSignedDummy(t, "app.example.com", 60)
	assert.Ok(t, store.BackupThenReplace(&certbundle.Bundle{
		CertPem: certHalf.CertPem,
		KeyPem:  keyHalf.KeyPem,
		Source:  certbundle.SourceSelfSignedProd,
	}))

	status, err := policy.Ensure(context.Background(), Context{
		Domain:   "app.example.com",
		Provider: ProviderSelfSigned,
	})
	assert.Ok(t, err)
	assert.Assert(t, status.State == StateValid)

	bundle, err := store.Load()
	assert.Ok(t, err)

	facts, err := certbundle.Inspect(*bundle)
	assert.Ok(t, err)
	assert.Assert(t, facts.KeyPairMatches())
}

func TestStatusWithoutCertificate(t *testing.T) {
	policy, _, _, cleanup := setupCommon(t)
	defer cleanup()

	status, err := policy.Status(Context{Domain: "app.example.com"})
	assert.Ok(t, err)
	assert.Assert(t, status.State == StateNoCertificate)
}

func setupCommon(t *testing.T) (*Policy, *certstore.Store, *fakeAcme, func()) {
	dir, err := ioutil.TempDir("", "sslkeeper-lifecycle")
	assert.Ok(t, err)

	store := certstore.New(dir, "server", nil)
	acme := &fakeAcme{}

	policy := New(store, acme, nil)
	policy.generate = fastGenerate // 4096-bit keys would slow the suite down

	return policy, store, acme, func() { os.RemoveAll(dir) }
}

func fastGenerate(profile keypairgen.Profile, domain string) (*certbundle.Bundle, error) {
	params := profile.Params(domain)
	params.KeyBits = 2048

	return keypairgen.GenerateWithParams(profile, params)
}

func selfSignedDummy(t *testing.T, domain string, validityDays int) *certbundle.Bundle {
	params := keypairgen.ProfileSelfSignedProd.Params(domain)
	params.KeyBits = 2048
	params.ValidityDays = validityDays

	bundle, err := keypairgen.GenerateWithParams(keypairgen.ProfileSelfSignedProd, params)
	assert.Ok(t, err)

	return bundle
}

func letsEncryptDummy(t *testing.T, domain string, validityDays int) *certbundle.Bundle {
	bundle := selfSignedDummy(t, domain, validityDays)
	bundle.Source = certbundle.SourceLetsEncrypt

	return bundle
}

func containsName(names []string, name string) bool {
	for _, candidate := range names {
		if candidate == name {
			return true
		}
	}

	return false
}
