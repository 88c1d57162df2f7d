package certbundle

import (
	"errors"
	"fmt"

	"github.com/function61/gokit/cryptoutil"
)

var ErrUnparsableCertificate = errors.New("unparsable certificate or private key")

// Inspect parses the bundle and returns structured facts about it. Tolerates
// certificates minted by any CA, not just our own generator. Both fingerprints
// go through the same gokit digest so Facts.KeyPairMatches() is a plain
// string comparison.
func Inspect(bundle Bundle) (*Facts, error) {
	cert, err := cryptoutil.ParsePemX509Certificate(bundle.CertPem)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableCertificate, err)
	}

	certFingerprint, err := cryptoutil.Sha256FingerprintForPublicKey(cert.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableCertificate, err)
	}

	privKey, err := cryptoutil.ParsePemEncodedPrivateKey(bundle.KeyPem)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableCertificate, err)
	}

	pubKey, err := cryptoutil.PublicKeyFromPrivateKey(privKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableCertificate, err)
	}

	keyFingerprint, err := cryptoutil.Sha256FingerprintForPublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableCertificate, err)
	}

	altNames := append([]string{}, cert.DNSNames...)
	for _, ip := range cert.IPAddresses {
		altNames = append(altNames, ip.String())
	}

	return &Facts{
		SubjectCN:          cert.Subject.CommonName,
		AltNames:           altNames,
		NotBefore:          cert.NotBefore,
		NotAfter:           cert.NotAfter,
		IssuerCN:           cert.Issuer.CommonName,
		CertKeyFingerprint: certFingerprint,
		PrivKeyFingerprint: keyFingerprint,
	}, nil
}
