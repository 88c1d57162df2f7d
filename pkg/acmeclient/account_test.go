package acmeclient

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/function61/gokit/assert"
)

func TestLoadOrCreateAccount(t *testing.T) {
	dir, err := ioutil.TempDir("", "sslkeeper-acme")
	assert.Ok(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "acme-account.json")

	created, err := loadOrCreateAccount(path, "ops@example.com")
	assert.Ok(t, err)
	assert.EqualString(t, created.GetEmail(), "ops@example.com")
	assert.Assert(t, created.GetPrivateKey() != nil)
	assert.Assert(t, created.GetRegistration() == nil)

	// account key must not be world readable
	stat, err := os.Stat(path)
	assert.Ok(t, err)
	assert.Assert(t, stat.Mode().Perm() == 0600)

	// second call loads the same identity instead of minting a new one
	loaded, err := loadOrCreateAccount(path, "ops@example.com")
	assert.Ok(t, err)
	assert.EqualString(t, loaded.PrivateKey, created.PrivateKey)
}

func TestLoadAccountCorruptFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "sslkeeper-acme")
	assert.Ok(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "acme-account.json")
	assert.Ok(t, ioutil.WriteFile(path, []byte("{not json"), 0600))

	_, err = loadOrCreateAccount(path, "ops@example.com")
	assert.Assert(t, err != nil)
}

func TestHintFor(t *testing.T) {
	assert.EqualString(t, hintFor(nil), "")
	assert.EqualString(t, hintFor(errors.New("dial tcp: lookup app.example.com: no such host")), "domain does not resolve publicly")
	assert.EqualString(t, hintFor(errors.New("dial tcp 1.2.3.4:80: connection refused")), "port 80 not reachable from the internet (firewall?)")
	assert.EqualString(t, hintFor(errors.New("urn:ietf:params:acme:error:rateLimited: rate limit exceeded")), "CA rate limit hit, retry later")
	assert.EqualString(t, hintFor(errors.New("something else entirely")), "")
}
