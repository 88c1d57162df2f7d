package acmeclient

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/function61/gokit/cryptoutil"
	"github.com/function61/gokit/jsonfile"
	"github.com/go-acme/lego/v4/registration"
)

// on-disk ACME account state, beside the certificates
type accountFile struct {
	Email        string                 `json:"email"`
	PrivateKey   string                 `json:"private_key"` // PEM
	Registration *registration.Resource `json:"registration"`
}

// implements lego's registration.User
type account struct {
	accountFile
	privateKeyParsed crypto.PrivateKey
}

func (a *account) GetEmail() string {
	return a.Email
}

func (a *account) GetPrivateKey() crypto.PrivateKey {
	return a.privateKeyParsed
}

func (a *account) GetRegistration() *registration.Resource {
	return a.Registration
}

func (a *account) SetRegistration(reg *registration.Resource) {
	a.Registration = reg
}

func loadOrCreateAccount(path string, email string) (*account, error) {
	file, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}

		return createAccount(path, email)
	}
	defer file.Close()

	stored := accountFile{}
	if err := jsonfile.Unmarshal(file, &stored, true); err != nil {
		return nil, fmt.Errorf("acme account %s: %w", path, err)
	}

	key, err := cryptoutil.ParsePemEncodedPrivateKey([]byte(stored.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("acme account %s: %w", path, err)
	}

	return &account{
		accountFile:      stored,
		privateKeyParsed: key,
	}, nil
}

func createAccount(path string, email string) (*account, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	keyPem := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	acct := &account{
		accountFile: accountFile{
			Email:      email,
			PrivateKey: string(keyPem),
		},
		privateKeyParsed: key,
	}

	if err := saveAccount(path, acct); err != nil {
		return nil, err
	}

	return acct, nil
}

func saveAccount(path string, acct *account) error {
	// account key identifies us to the CA - same discipline as cert private keys
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	return jsonfile.Marshal(file, &acct.accountFile)
}
