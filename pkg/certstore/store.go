// Filesystem boundary for certificate bundles: canonical <sslPath>/<name>.crt +
// <name>.key pair, a sidecar JSON recording provenance, timestamped backups
// under <sslPath>/backups/.
package certstore

import (
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/deploykit/sslkeeper/pkg/certbundle"
	"github.com/function61/gokit/jsonfile"
	"github.com/function61/gokit/logex"
)

var ErrNotFound = errors.New("no certificate bundle found")

const (
	certFileMode = 0644 // reverse proxy reads this
	keyFileMode  = 0600 // owner only
)

type Store struct {
	sslPath  string
	certName string
	docker   DockerCLI
	logl     *logex.Leveled
}

func New(sslPath string, certName string, logger *log.Logger) *Store {
	return &Store{
		sslPath:  sslPath,
		certName: certName,
		docker:   dockerBinary{},
		logl:     logex.Levels(logger),
	}
}

func (s *Store) CertPath() string {
	return filepath.Join(s.sslPath, s.certName+".crt")
}

func (s *Store) KeyPath() string {
	return filepath.Join(s.sslPath, s.certName+".key")
}

func (s *Store) sourcePath() string {
	return filepath.Join(s.sslPath, s.certName+".source.json")
}

func (s *Store) backupDir() string {
	return filepath.Join(s.sslPath, "backups")
}

// sidecar so renew knows which strategy minted the live pair
type sourceRecord struct {
	Source     certbundle.Source `json:"source"`
	ObtainedAt time.Time         `json:"obtained_at"`
}

func (s *Store) Load() (*certbundle.Bundle, error) {
	certPem, err := ioutil.ReadFile(s.CertPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	keyPem, err := ioutil.ReadFile(s.KeyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &certbundle.Bundle{
		CertPem: certPem,
		KeyPem:  keyPem,
		Source:  s.loadSource(),
	}, nil
}

// a pair without a sidecar has unknown provenance, which is exactly what
// user-imported means: full validation before trusting it
func (s *Store) loadSource() certbundle.Source {
	file, err := os.Open(s.sourcePath())
	if err != nil {
		return certbundle.SourceUserImported
	}
	defer file.Close()

	record := &sourceRecord{}
	if err := jsonfile.Unmarshal(file, record, true); err != nil {
		return certbundle.SourceUserImported
	}

	return record.Source
}

func (s *Store) saveSource(source certbundle.Source) error {
	file, err := os.Create(s.sourcePath())
	if err != nil {
		return err
	}
	defer file.Close()

	return jsonfile.Marshal(file, &sourceRecord{
		Source:     source,
		ObtainedAt: time.Now(),
	})
}

func (s *Store) KeyFileMode() (os.FileMode, error) {
	info, err := os.Stat(s.KeyPath())
	if err != nil {
		return 0, err
	}

	return info.Mode().Perm(), nil
}

// BadPermissions is auto-correctable - tighten instead of failing
func (s *Store) FixKeyPermissions() error {
	if err := os.Chmod(s.KeyPath(), keyFileMode); err != nil {
		return fmt.Errorf("fix key permissions: %w", err)
	}

	s.logl.Info.Printf("tightened %s to %#o", s.KeyPath(), keyFileMode)

	return nil
}
