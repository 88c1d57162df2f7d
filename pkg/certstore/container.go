package certstore

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
)

// narrow on purpose: the only thing we need from Docker is file copy in/out of
// a running container, and tests fake this instead of requiring a daemon
type DockerCLI interface {
	Copy(ctx context.Context, from string, to string) error
}

type dockerBinary struct{}

func (dockerBinary) Copy(ctx context.Context, from string, to string) error {
	output, err := execDockerCp(ctx, from, to)
	if err != nil {
		return fmt.Errorf("docker cp %s -> %s: %v: %s", from, to, err, strings.TrimSpace(output))
	}

	return nil
}

// PullFromContainer copies a cert/key pair out of a running reverse-proxy
// container (for when certificates were minted inside the container rather
// than at the host path) and commits it through the normal import path.
func (s *Store) PullFromContainer(
	ctx context.Context,
	container string,
	remoteDir string,
	expectedDomain string,
	thresholdDays int,
) error {
	stagingDir, err := ioutil.TempDir("", "sslkeeper-pull")
	if err != nil {
		return err
	}
	defer os.RemoveAll(stagingDir)

	remoteCert := path.Join(remoteDir, s.certName+".crt")
	remoteKey := path.Join(remoteDir, s.certName+".key")

	stagedCert := filepath.Join(stagingDir, s.certName+".crt")
	stagedKey := filepath.Join(stagingDir, s.certName+".key")

	if err := s.docker.Copy(ctx, container+":"+remoteCert, stagedCert); err != nil {
		return err
	}

	if err := s.docker.Copy(ctx, container+":"+remoteKey, stagedKey); err != nil {
		return err
	}

	certPem, err := ioutil.ReadFile(stagedCert)
	if err != nil {
		return err
	}

	keyPem, err := ioutil.ReadFile(stagedKey)
	if err != nil {
		return err
	}

	_, err = s.ImportUserProvided(certPem, keyPem, expectedDomain, thresholdDays)
	return err
}

// PushToContainer copies the live pair into a running container. Only makes
// sense for one-off restores; normally the proxy mounts <sslPath> read-only.
func (s *Store) PushToContainer(ctx context.Context, container string, remoteDir string) error {
	if _, err := os.Stat(s.CertPath()); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}

	if err := s.docker.Copy(ctx, s.CertPath(), container+":"+path.Join(remoteDir, s.certName+".crt")); err != nil {
		return err
	}

	return s.docker.Copy(ctx, s.KeyPath(), container+":"+path.Join(remoteDir, s.certName+".key"))
}

// test seam
func (s *Store) SetDockerCLI(docker DockerCLI) {
	s.docker = docker
}

func execDockerCp(ctx context.Context, from string, to string) (string, error) {
	output, err := exec.CommandContext(ctx, "docker", "cp", from, to).CombinedOutput()
	return string(output), err
}
