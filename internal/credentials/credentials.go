// Package credentials resolves the signing-service integration key.
package credentials

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	yamlbase "gopkg.in/yaml.v2"

	"github.com/rosterlabs/signsync/internal/yaml"
)

// Credentials contains the integration key used to authenticate against the
// signing service.
type Credentials struct {
	IntegrationKey string `yaml:"integrationKey"`
	Source         string `yaml:"-"`
}

// Get returns the configured credentials.
//
// The lookup order is:
//  1. Environment variables (see FromEnv)
//  2. Credentials file (see FromFile)
func Get() Credentials {
	if c := FromEnv(); c.IsSet() {
		return c
	}

	return FromFile()
}

// FromEnv reads the credentials from the user environment.
func FromEnv() Credentials {
	return Credentials{
		IntegrationKey: os.Getenv("SIGNSYNC_INTEGRATION_KEY"),
		Source:         "environment variables",
	}
}

// FromFile reads the credentials stored in the default file location.
func FromFile() Credentials {
	return fromFile(defaultFilepath())
}

func fromFile(path string) Credentials {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// not a real error but a valid usecase when credentials have not been persisted yet
			return Credentials{}
		}

		log.Error().Msgf("failed to read credentials: %v", err)
		return Credentials{}
	}
	defer f.Close()

	var c Credentials
	if err = yamlbase.NewDecoder(f).Decode(&c); err != nil {
		log.Error().Msgf("failed to parse credentials: %v", err)
		return Credentials{}
	}
	c.Source = path

	return c
}

// ToFile stores the provided credentials in the default file location.
func ToFile(c Credentials) error {
	return toFile(c, defaultFilepath())
}

func toFile(c Credentials, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return yaml.WriteFile(path, c, 0600)
}

// defaultFilepath returns the default location of the credentials file.
// It will be based on the user home directory, if defined, or under the current working directory otherwise.
func defaultFilepath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".signsync", "credentials.yml")
}

// IsSet reports whether an integration key is present.
func (c *Credentials) IsSet() bool {
	return c.IntegrationKey != ""
}
