// Self-signed certificate + private key generation. Pure: returns bundle
// bytes, never touches the filesystem - persistence is certstore's job.
package keypairgen

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/deploykit/sslkeeper/pkg/certbundle"
)

var ErrGenerationFailed = errors.New("key pair generation failed")

type Profile string

const (
	// development defaults: cheap key, localhost-only names
	ProfileLocalhostDev Profile = "localhost-dev"
	// public-facing self-signed: strong key, domain + wildcard SAN
	ProfileSelfSignedProd Profile = "self-signed-prod"
	// last-resort fallback when everything else failed: short-lived, bare domain
	ProfileMinimal Profile = "minimal"
)

type Params struct {
	Domain       string
	ValidityDays int
	KeyBits      int
	DNSNames     []string
	IPAddresses  []net.IP
}

func (p Profile) Params(domain string) Params {
	switch p {
	case ProfileLocalhostDev:
		return Params{
			Domain:       "localhost",
			ValidityDays: 365,
			KeyBits:      2048,
			DNSNames:     []string{"localhost", "*.localhost"},
			IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
		}
	case ProfileSelfSignedProd:
		return Params{
			Domain:       domain,
			ValidityDays: 365,
			KeyBits:      4096,
			DNSNames:     []string{domain, "*." + domain},
		}
	default: // ProfileMinimal
		return Params{
			Domain:       domain,
			ValidityDays: 30,
			KeyBits:      2048,
			DNSNames:     []string{domain},
		}
	}
}

func (p Profile) Source() certbundle.Source {
	switch p {
	case ProfileLocalhostDev:
		return certbundle.SourceLocalhostDev
	case ProfileSelfSignedProd:
		return certbundle.SourceSelfSignedProd
	default:
		return certbundle.SourceMinimal
	}
}

func Generate(profile Profile, domain string) (*certbundle.Bundle, error) {
	return GenerateWithParams(profile, profile.Params(domain))
}

func GenerateWithParams(profile Profile, params Params) (*certbundle.Bundle, error) {
	if params.Domain == "" {
		return nil, fmt.Errorf("%w: empty domain", ErrGenerationFailed)
	}

	now := time.Now()

	privKey, err := rsa.GenerateKey(rand.Reader, params.KeyBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: params.Domain,
		},
		NotBefore:             now.Add(-1 * time.Hour), // tolerate small clock skew
		NotAfter:              now.AddDate(0, 0, params.ValidityDays),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              params.DNSNames,
		IPAddresses:           params.IPAddresses,
	}

	// self-signed: template doubles as the issuer
	certDer, err := x509.CreateCertificate(rand.Reader, &template, &template, &privKey.PublicKey, privKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	certPem := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certDer,
	})
	keyPem := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privKey),
	})

	return &certbundle.Bundle{
		CertPem: certPem,
		KeyPem:  keyPem,
		Source:  profile.Source(),
	}, nil
}
