package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"

	"github.com/deploykit/sslkeeper/pkg/acmeclient"
	"github.com/deploykit/sslkeeper/pkg/certbundle"
	"github.com/deploykit/sslkeeper/pkg/certstore"
	"github.com/deploykit/sslkeeper/pkg/domainmatch"
	"github.com/deploykit/sslkeeper/pkg/keypairgen"
	"github.com/deploykit/sslkeeper/pkg/lifecycle"
	"github.com/function61/gokit/jsonfile"
	"github.com/function61/gokit/logex"
	"github.com/scylladb/termtables"
)

// exit codes for the status/validate surface: callers (deploy scripts,
// monitoring) branch on these
const (
	exitOk       = 0
	exitBlocking = 1
	exitDegraded = 2
)

func buildDeps(opts cliOptions) (*resolved, *certstore.Store, *lifecycle.Policy, error) {
	conf, err := resolveConfig(opts)
	if err != nil {
		return nil, nil, nil, err
	}

	store, policy := buildDepsFromResolved(conf)

	return conf, store, policy, nil
}

func buildDepsFromResolved(conf *resolved) (*certstore.Store, *lifecycle.Policy) {
	rootLogger := logex.StandardLogger()

	store := certstore.New(conf.SslPath, conf.CertName, logex.Prefix("certstore", rootLogger))

	acmeConf := acmeclient.Config{
		Email:        conf.Email,
		AccountPath:  conf.acmeAccountPath(),
		AgreeTOS:     conf.AgreeTOS,
		DirectoryURL: conf.AcmeDirectoryURL,
	}
	if conf.AcmeHTTP01 != nil {
		acmeConf.ChallengeBucket = conf.AcmeHTTP01.Bucket
		acmeConf.ChallengeBucketRegion = conf.AcmeHTTP01.Region
	}

	policy := lifecycle.New(
		store,
		acmeclient.NewLegoClient(acmeConf, rootLogger),
		logex.Prefix("lifecycle", rootLogger))

	return store, policy
}

func ensure(ctx context.Context, opts cliOptions) error {
	conf, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	// terms-of-service consent is collected here, one layer above the
	// acquirer, so the acquirer itself never prompts
	if conf.Interactive && !conf.AgreeTOS && conf.Provider == string(lifecycle.ProviderLetsEncrypt) {
		conf.AgreeTOS = confirm("Agree to the CA's terms of service?")
	}

	_, policy := buildDepsFromResolved(conf)

	status, err := policy.Ensure(ctx, conf.lifecycleContext())
	if err != nil {
		return err
	}

	printStatus(status)

	if status.Warning != "" {
		os.Exit(exitDegraded)
	}

	return nil
}

func showStatus(opts cliOptions) error {
	conf, _, policy, err := buildDeps(opts)
	if err != nil {
		return err
	}

	status, err := policy.Status(conf.lifecycleContext())
	if err != nil {
		return err
	}

	printStatus(status)

	os.Exit(exitCodeFor(status))
	return nil
}

func validate(opts cliOptions) error {
	conf, _, policy, err := buildDeps(opts)
	if err != nil {
		return err
	}

	status, err := policy.Status(conf.lifecycleContext())
	if err != nil {
		return err
	}

	for _, finding := range status.Findings {
		fmt.Println(finding.String())
	}

	os.Exit(exitCodeFor(status))
	return nil
}

func inspect(opts cliOptions, out io.Writer) error {
	_, store, _, err := buildDeps(opts)
	if err != nil {
		return err
	}

	bundle, err := store.Load()
	if err != nil {
		return err
	}

	facts, err := certbundle.Inspect(*bundle)
	if err != nil {
		return err
	}

	return jsonfile.Marshal(out, facts)
}

func generateSelfSigned(opts cliOptions) error {
	conf, store, _, err := buildDeps(opts)
	if err != nil {
		return err
	}

	profile := keypairgen.ProfileSelfSignedProd
	if domainmatch.IsDevelopmentHost(conf.Domain) {
		profile = keypairgen.ProfileLocalhostDev
	}

	bundle, err := keypairgen.Generate(profile, conf.Domain)
	if err != nil {
		return err
	}

	return store.BackupThenReplace(bundle)
}

func renew(ctx context.Context, opts cliOptions) error {
	conf, _, policy, err := buildDeps(opts)
	if err != nil {
		return err
	}

	status, err := policy.Renew(ctx, conf.lifecycleContext())
	if err != nil {
		return err
	}

	printStatus(status)

	return nil
}

func importPair(opts cliOptions, certFile string, keyFile string) error {
	conf, store, _, err := buildDeps(opts)
	if err != nil {
		return err
	}

	certPem, err := ioutil.ReadFile(certFile)
	if err != nil {
		return err
	}

	keyPem, err := ioutil.ReadFile(keyFile)
	if err != nil {
		return err
	}

	report, err := store.ImportUserProvided(certPem, keyPem, conf.Domain, conf.ThresholdDays)
	if err != nil {
		return err
	}

	fmt.Printf("imported: %d days left\n", report.DaysLeft)

	return nil
}

func consolidate(opts cliOptions) error {
	conf, store, _, err := buildDeps(opts)
	if err != nil {
		return err
	}

	report, err := store.ConsolidateFromKnownLocations(conf.legacyLocations(), conf.Domain, conf.ThresholdDays)
	if err != nil {
		return err
	}

	fmt.Printf("consolidated: %d days left\n", report.DaysLeft)

	return nil
}

func proxyPull(ctx context.Context, opts cliOptions, container string) error {
	conf, store, _, err := buildDeps(opts)
	if err != nil {
		return err
	}

	container, err = resolveContainer(container, conf)
	if err != nil {
		return err
	}

	return store.PullFromContainer(ctx, container, conf.ProxySslDir, conf.Domain, conf.ThresholdDays)
}

func proxyPush(ctx context.Context, opts cliOptions, container string) error {
	conf, store, _, err := buildDeps(opts)
	if err != nil {
		return err
	}

	container, err = resolveContainer(container, conf)
	if err != nil {
		return err
	}

	return store.PushToContainer(ctx, container, conf.ProxySslDir)
}

func resolveContainer(container string, conf *resolved) (string, error) {
	if container != "" {
		return container, nil
	}
	if conf.ProxyContainer != "" {
		return conf.ProxyContainer, nil
	}

	return "", fmt.Errorf("no container given and proxy_container not configured")
}

func printStatus(status *lifecycle.Status) {
	findings := []string{}
	for _, finding := range status.Findings {
		findings = append(findings, finding.String())
	}

	table := termtables.CreateTable()
	table.AddHeaders("State", "Source", "Days left", "Findings")
	table.AddRow(
		string(status.State),
		string(status.Source),
		status.DaysLeft,
		strings.Join(findings, ", "))

	fmt.Println(table.Render())

	if status.Warning != "" {
		fmt.Println("WARNING: " + status.Warning)
	}
}

func exitCodeFor(status *lifecycle.Status) int {
	switch status.State {
	case lifecycle.StateValid:
		return exitOk
	case lifecycle.StateExpiringSoon:
		return exitDegraded
	default: // no certificate, invalid
		return exitBlocking
	}
}

func confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)

	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
