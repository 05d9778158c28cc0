package sshpool

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// KeyDirEnv overrides the directory searched for per-host private keys.
const KeyDirEnv = "EXAMINER_VAGRANT_DIR"

// DefaultKeyDir is used when neither configuration nor KeyDirEnv set one:
// the directory holding the Vagrantfile, assumed to be the working directory.
const DefaultKeyDir = "."

// keyProviders are the Vagrant provider directories searched, in order.
var keyProviders = []string{"vmware_desktop", "virtualbox", "libvirt"}

// ResolveKeyDir returns the configured directory, then KeyDirEnv, then
// DefaultKeyDir.
func ResolveKeyDir(configured string) string {
	if configured != "" {
		return configured
	}
	if dir := os.Getenv(KeyDirEnv); dir != "" {
		return dir
	}
	return DefaultKeyDir
}

// FindKey returns the path of the Vagrant-generated private key for host, if
// one exists under keyDir.
func FindKey(keyDir, host string) (string, bool) {
	for _, provider := range keyProviders {
		path := filepath.Join(keyDir, ".vagrant", "machines", host, provider, "private_key")
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// keyAuth loads a private key file as a public-key auth method.
func keyAuth(path string) (ssh.AuthMethod, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse key %s: %w", path, err)
	}
	return ssh.PublicKeys(signer), nil
}
