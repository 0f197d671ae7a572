// Package ociauth resolves registry credentials from the user's Docker
// config file, implementing authn.Keychain for use with
// pkg/source/registry. Adapted from the teacher's
// internal/pkg/util/ociauth: the credential-file lookup and Docker-Hub
// server-address aliasing are kept; credential-helper shellout
// (docker-credential-*) and the login/store flow are dropped, since
// spec.md lists invoking credential helpers as out of scope.
package ociauth

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/docker/cli/cli/config"
	"github.com/docker/cli/cli/config/configfile"
	"github.com/docker/cli/cli/config/types"
	"github.com/google/go-containerregistry/pkg/authn"

	"github.com/fossas/circe/pkg/sylog"
)

const (
	dockerHubRegistry      = "index.docker.io"
	dockerHubRegistryAlias = "docker.io"
	dockerHubAuthKey       = "https://index.docker.io/v1/"
)

// Keychain implements authn.Keychain against the Docker CLI's config file
// format, per spec.md §6's "registry authentication discovery" (credential
// helpers excluded).
type Keychain struct {
	mu       sync.Mutex
	authFile string
}

// NewKeychain returns a Keychain that reads authFile, or the default
// ~/.docker/config.json location if authFile is empty.
func NewKeychain(authFile string) *Keychain {
	return &Keychain{authFile: authFile}
}

// Resolve implements authn.Keychain.
func (k *Keychain) Resolve(target authn.Resource) (authn.Authenticator, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	cf, err := configFileFromPath(chooseAuthFile(k.authFile))
	if err != nil {
		if k.authFile != "" {
			sylog.Warningf("unable to read credentials from %q (%v); proceeding anonymously", k.authFile, err)
		}
		return authn.Anonymous, nil
	}

	var cfg, empty types.AuthConfig
	for _, key := range []string{target.String(), target.RegistryStr()} {
		if key == dockerHubRegistry || key == dockerHubRegistryAlias {
			key = dockerHubAuthKey
		}
		cfg, err = cf.GetAuthConfig(key)
		if err != nil {
			return nil, fmt.Errorf("ociauth: %w", err)
		}
		// GetAuthConfig always sets ServerAddress; clear it for a clean
		// is-empty comparison (see google/go-containerregistry#1510).
		cfg.ServerAddress = ""
		if cfg != empty {
			break
		}
	}

	if cfg == empty {
		return authn.Anonymous, nil
	}

	return authn.FromConfig(authn.AuthConfig{
		Username:      cfg.Username,
		Password:      cfg.Password,
		Auth:          cfg.Auth,
		IdentityToken: cfg.IdentityToken,
		RegistryToken: cfg.RegistryToken,
	}), nil
}

// chooseAuthFile returns reqAuthFile if non-empty, or the default location
// of the Docker CLI config file.
func chooseAuthFile(reqAuthFile string) string {
	if reqAuthFile != "" {
		return reqAuthFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".docker", "config.json")
}

func configFileFromPath(path string) (*configfile.ConfigFile, error) {
	cf := configfile.New(path)
	if path == "" {
		return cf, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cf, nil
		}
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cf, err = config.LoadFromReader(f)
	if err != nil {
		return nil, err
	}
	cf.Filename = path
	return cf, nil
}
