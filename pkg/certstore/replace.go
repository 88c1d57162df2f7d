package certstore

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/deploykit/sslkeeper/pkg/certbundle"
	"github.com/function61/gokit/cryptorandombytes"
)

// BackupThenReplace commits a new bundle to the canonical paths. The previous
// pair (if any) is copied to a timestamped backup location first, and the
// replace aborts unless that backup is confirmed on disk - live files are
// never overwritten without a recoverable copy existing.
//
// The new pair is written to temp files and promoted via rename only after
// both writes succeeded, so a crash leaves either the old pair intact or a
// fully-written new pair.
func (s *Store) BackupThenReplace(bundle *certbundle.Bundle) error {
	if err := os.MkdirAll(s.sslPath, 0755); err != nil {
		return fmt.Errorf("backupThenReplace: %w", err)
	}

	if err := s.backupCurrent(); err != nil {
		return fmt.Errorf("backup before replace: %w", err)
	}

	certTmp, err := s.writeTemp(bundle.CertPem, certFileMode)
	if err != nil {
		return fmt.Errorf("backupThenReplace: %w", err)
	}
	defer os.Remove(certTmp) // no-op after successful rename

	keyTmp, err := s.writeTemp(bundle.KeyPem, keyFileMode)
	if err != nil {
		return fmt.Errorf("backupThenReplace: %w", err)
	}
	defer os.Remove(keyTmp)

	if err := os.Rename(keyTmp, s.KeyPath()); err != nil {
		return fmt.Errorf("backupThenReplace: %w", err)
	}

	if err := os.Rename(certTmp, s.CertPath()); err != nil {
		return fmt.Errorf("backupThenReplace: %w", err)
	}

	if err := s.saveSource(bundle.Source); err != nil {
		return fmt.Errorf("backupThenReplace: %w", err)
	}

	s.logl.Info.Printf("committed new %s bundle at %s", bundle.Source, s.CertPath())

	return nil
}

// backs up whichever halves exist - a manually broken pair (key deleted, cert
// left behind) must not make replacement impossible
func (s *Store) backupCurrent() error {
	label := fmt.Sprintf("%s-%s", s.certName, time.Now().Format("20060102-150405"))

	backedUp := false
	for _, half := range []struct {
		from string
		to   string
		mode os.FileMode
	}{
		{s.CertPath(), label + ".crt", certFileMode},
		{s.KeyPath(), label + ".key", keyFileMode},
	} {
		if _, err := os.Stat(half.from); os.IsNotExist(err) {
			continue
		}

		if err := os.MkdirAll(s.backupDir(), 0755); err != nil {
			return err
		}

		if err := copyFile(half.from, filepath.Join(s.backupDir(), half.to), half.mode); err != nil {
			return err
		}
		backedUp = true
	}

	if backedUp {
		s.logl.Info.Printf("backed up previous bundle as %s", label)
	}

	return nil
}

func (s *Store) writeTemp(content []byte, mode os.FileMode) (string, error) {
	// random suffix so concurrent invocations can't clobber each other's temp file
	tmpPath := fmt.Sprintf("%s.tmp-%s", s.CertPath(), cryptorandombytes.Base64Url(4))

	if err := ioutil.WriteFile(tmpPath, content, mode); err != nil {
		return "", err
	}

	return tmpPath, nil
}

func copyFile(from string, to string, mode os.FileMode) error {
	content, err := ioutil.ReadFile(from)
	if err != nil {
		return err
	}

	return ioutil.WriteFile(to, content, mode)
}
