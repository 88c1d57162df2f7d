package main

import (
	"os"
	"path/filepath"

	"github.com/deploykit/sslkeeper/pkg/certstore"
	"github.com/deploykit/sslkeeper/pkg/certvalidate"
	"github.com/deploykit/sslkeeper/pkg/lifecycle"
	"github.com/function61/gokit/jsonfile"
)

// optional config file. flags always win over file values; the file just
// saves typing the stable bits (email, paths) on every invocation.
type config struct {
	Domain           string                `json:"domain,omitempty"`
	Email            string                `json:"email,omitempty"`
	SslPath          string                `json:"ssl_path,omitempty"`
	CertName         string                `json:"cert_name,omitempty"`
	Provider         string                `json:"provider,omitempty"`
	ThresholdDays    int                   `json:"threshold_days,omitempty"`
	AcmeDirectoryURL string                `json:"acme_directory_url,omitempty"`
	AcmeHTTP01       *acmeHTTP01Challenges `json:"acme_http01_challenges,omitempty"` // (optional) bucket to upload HTTP-01 challenges to
	LegacyLocations  []legacyLocation      `json:"legacy_locations,omitempty"`       // candidates for the consolidate command
	ProxyContainer   string                `json:"proxy_container,omitempty"`
	ProxySslDir      string                `json:"proxy_ssl_dir,omitempty"`
}

type acmeHTTP01Challenges struct {
	Bucket string `json:"bucket"`
	Region string `json:"region"` // e.g. "us-east-1"
}

type legacyLocation struct {
	Cert string `json:"cert"`
	Key  string `json:"key"`
}

func loadConfigFile(path string) (*config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// config file is optional
			return &config{}, nil
		}
		return nil, err
	}
	defer file.Close()

	conf := &config{}
	// strict: unknown keys are a config error, not silently ignored
	if err := jsonfile.Unmarshal(file, conf, true); err != nil {
		return nil, err
	}

	return conf, nil
}

// flags as given on the command line; zero values mean "not set, use file/default"
type cliOptions struct {
	configPath    string
	domain        string
	email         string
	sslPath       string
	certName      string
	provider      string
	thresholdDays int
	force         bool
	interactive   bool
	enforceDomain bool
	agreeTOS      bool
}

// file + flags + defaults, fully resolved. built once per command invocation
// and passed around explicitly.
type resolved struct {
	config
	Force         bool
	Interactive   bool
	EnforceDomain bool
	AgreeTOS      bool
}

func resolveConfig(opts cliOptions) (*resolved, error) {
	conf, err := loadConfigFile(opts.configPath)
	if err != nil {
		return nil, err
	}

	merged := &resolved{
		config:        *conf,
		Force:         opts.force,
		Interactive:   opts.interactive,
		EnforceDomain: opts.enforceDomain,
		AgreeTOS:      opts.agreeTOS,
	}

	overrideString(&merged.Domain, opts.domain)
	overrideString(&merged.Email, opts.email)
	overrideString(&merged.SslPath, opts.sslPath)
	overrideString(&merged.CertName, opts.certName)
	overrideString(&merged.Provider, opts.provider)

	if opts.thresholdDays != 0 {
		merged.ThresholdDays = opts.thresholdDays
	}

	if merged.SslPath == "" {
		merged.SslPath = "ssl"
	}
	if merged.CertName == "" {
		merged.CertName = "server"
	}
	if merged.Provider == "" {
		merged.Provider = string(lifecycle.ProviderSelfSigned)
	}
	if merged.ThresholdDays == 0 {
		merged.ThresholdDays = certvalidate.DefaultRenewalThresholdDays
	}
	if merged.ProxySslDir == "" {
		merged.ProxySslDir = "/etc/nginx/ssl"
	}

	return merged, nil
}

func (r *resolved) lifecycleContext() lifecycle.Context {
	return lifecycle.Context{
		Domain:        r.Domain,
		Email:         r.Email,
		Provider:      lifecycle.Provider(r.Provider),
		Force:         r.Force,
		Interactive:   r.Interactive,
		EnforceDomain: r.EnforceDomain,
		ThresholdDays: r.ThresholdDays,
	}
}

func (r *resolved) acmeAccountPath() string {
	return filepath.Join(r.SslPath, "acme-account.json")
}

func (r *resolved) legacyLocations() []certstore.LegacyLocation {
	locations := []certstore.LegacyLocation{}
	for _, loc := range r.LegacyLocations {
		locations = append(locations, certstore.LegacyLocation{
			CertPath: loc.Cert,
			KeyPath:  loc.Key,
		})
	}

	return locations
}

func overrideString(target *string, override string) {
	if override != "" {
		*target = override
	}
}
