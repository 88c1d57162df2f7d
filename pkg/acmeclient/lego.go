package acmeclient

import (
	"context"
	"log"
	"net"
	"os"

	"github.com/deploykit/sslkeeper/pkg/certbundle"
	"github.com/function61/gokit/logex"
	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/challenge/http01"
	"github.com/go-acme/lego/v4/lego"
	legolog "github.com/go-acme/lego/v4/log"
	"github.com/go-acme/lego/v4/registration"
)

type Config struct {
	Email       string
	AccountPath string // e.g. <sslPath>/acme-account.json
	AgreeTOS    bool   // explicit consent collected by the caller

	// when set, HTTP-01 tokens are published to this bucket instead of binding
	// a local challenge listener (the bucket is expected to be fronted by the
	// domain's webserver)
	ChallengeBucket       string
	ChallengeBucketRegion string

	DirectoryURL string // "" = Let's Encrypt production
	HTTPPort     string // "" = 80; overridable for tests
}

// production Client adapter on top of lego
type LegoClient struct {
	conf Config
	logl *logex.Leveled
}

func NewLegoClient(conf Config, logger *log.Logger) *LegoClient {
	legolog.Logger = logex.Prefix("lego", logger)

	return &LegoClient{
		conf: conf,
		logl: logex.Levels(logger),
	}
}

var _ Client = (*LegoClient)(nil)

func (l *LegoClient) Preflight(ctx context.Context) error {
	if l.conf.Email == "" {
		return &PreflightError{Reason: "contact email not configured"}
	}

	// the bucket solver needs neither root nor a local listener
	if l.conf.ChallengeBucket == "" {
		if os.Geteuid() != 0 {
			return &PreflightError{Reason: "need root to bind the HTTP-01 challenge listener"}
		}

		if err := probePortFree(l.httpPort()); err != nil {
			return &PreflightError{Reason: "challenge port " + l.httpPort() + " already bound: " + err.Error()}
		}
	}

	acct, err := loadOrCreateAccount(l.conf.AccountPath, l.conf.Email)
	if err != nil {
		return &PreflightError{Reason: "acme account unavailable: " + err.Error()}
	}

	if acct.GetRegistration() == nil && !l.conf.AgreeTOS {
		return &PreflightError{Reason: "no CA registration yet and terms of service not agreed (--agree-tos)"}
	}

	return nil
}

func (l *LegoClient) Obtain(ctx context.Context, domain string) (*certbundle.Bundle, error) {
	legoClient, err := l.makeLegoClient()
	if err != nil {
		return nil, &AcquisitionError{Err: err}
	}

	resp, err := legoClient.Certificate.Obtain(certificate.ObtainRequest{
		Domains: []string{domain},
		Bundle:  true,
	})
	if err != nil {
		return nil, &AcquisitionError{Hint: hintFor(err), Err: err}
	}

	l.logl.Info.Printf("obtained certificate for %s", domain)

	return &certbundle.Bundle{
		CertPem: resp.Certificate,
		KeyPem:  resp.PrivateKey,
		Source:  certbundle.SourceLetsEncrypt,
	}, nil
}

func (l *LegoClient) Renew(ctx context.Context, current *certbundle.Bundle, domain string) (*certbundle.Bundle, error) {
	legoClient, err := l.makeLegoClient()
	if err != nil {
		return nil, &AcquisitionError{Err: err}
	}

	resp, err := legoClient.Certificate.Renew(certificate.Resource{
		Domain:      domain,
		Certificate: current.CertPem,
		PrivateKey:  current.KeyPem,
	}, true, false, "")
	if err != nil {
		return nil, &AcquisitionError{Hint: hintFor(err), Err: err}
	}

	l.logl.Info.Printf("renewed certificate for %s", domain)

	return &certbundle.Bundle{
		CertPem: resp.Certificate,
		KeyPem:  resp.PrivateKey,
		Source:  certbundle.SourceLetsEncrypt,
	}, nil
}

func (l *LegoClient) makeLegoClient() (*lego.Client, error) {
	acct, err := loadOrCreateAccount(l.conf.AccountPath, l.conf.Email)
	if err != nil {
		return nil, err
	}

	legoConf := lego.NewConfig(acct)
	legoConf.Certificate.KeyType = certcrypto.RSA2048
	if l.conf.DirectoryURL != "" {
		legoConf.CADirURL = l.conf.DirectoryURL
	}

	legoClient, err := lego.NewClient(legoConf)
	if err != nil {
		return nil, err
	}

	if acct.GetRegistration() == nil {
		// Preflight() already verified TOS consent
		reg, err := legoClient.Registration.Register(registration.RegisterOptions{
			TermsOfServiceAgreed: true,
		})
		if err != nil {
			return nil, err
		}

		acct.SetRegistration(reg)

		if err := saveAccount(l.conf.AccountPath, acct); err != nil {
			return nil, err
		}
	}

	solver, err := l.makeSolver()
	if err != nil {
		return nil, err
	}

	if err := legoClient.Challenge.SetHTTP01Provider(solver); err != nil {
		return nil, err
	}

	return legoClient, nil
}

func (l *LegoClient) makeSolver() (challenge.Provider, error) {
	if l.conf.ChallengeBucket != "" {
		return newBucketChallengeSolver(l.conf.ChallengeBucket, l.conf.ChallengeBucketRegion)
	}

	return http01.NewProviderServer("", l.httpPort()), nil
}

func (l *LegoClient) httpPort() string {
	if l.conf.HTTPPort != "" {
		return l.conf.HTTPPort
	}

	return "80"
}

func probePortFree(port string) error {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	return listener.Close()
}
