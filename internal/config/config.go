// Package config loads and validates the sync configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/rosterlabs/signsync/internal/directory"
	"github.com/rosterlabs/signsync/internal/mapping"
	"github.com/rosterlabs/signsync/internal/msg"
)

// Identity source types.
const (
	IdentityCSV  = "csv"
	IdentityLDAP = "ldap"
)

// Identity selects and configures the identity source for a run.
type Identity struct {
	Type               string                `yaml:"type" mapstructure:"type"`
	Path               string                `yaml:"path,omitempty" mapstructure:"path"`
	LDAP               directory.LDAPConfig  `yaml:"ldap,omitempty" mapstructure:"ldap"`
	Groups             []string              `yaml:"groups,omitempty" mapstructure:"groups"`
	AllUsers           bool                  `yaml:"allUsers,omitempty" mapstructure:"allUsers"`
	ExtendedAttributes []string              `yaml:"extendedAttributes,omitempty" mapstructure:"extendedAttributes"`
}

// Org configures one signing-service organization.
type Org struct {
	Name           string        `yaml:"name" mapstructure:"name"`
	Host           string        `yaml:"host" mapstructure:"host"`
	Endpoint       string        `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	APIVersion     string        `yaml:"apiVersion,omitempty" mapstructure:"apiVersion"`
	IntegrationKey string        `yaml:"integrationKey,omitempty" mapstructure:"integrationKey"`
	Console        bool          `yaml:"console,omitempty" mapstructure:"console"`
	Timeout        time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// URL returns the base URL of the organization's API.
func (o Org) URL() string {
	endpoint := o.Endpoint
	if endpoint == "" {
		endpoint = "/api/rest/" + o.Version()
	}
	return "https://" + o.Host + endpoint
}

// Version returns the API version of the organization, defaulting to v6.
func (o Org) Version() string {
	if o.APIVersion == "" {
		return "v6"
	}
	return o.APIVersion
}

// UserSync holds the write-behavior switches of a run.
type UserSync struct {
	CreateUsers     bool `yaml:"createUsers,omitempty" mapstructure:"createUsers"`
	DeactivateUsers bool `yaml:"deactivateUsers,omitempty" mapstructure:"deactivateUsers"`
	SignOnlyLimit   int  `yaml:"signOnlyLimit,omitempty" mapstructure:"signOnlyLimit"`
	Workers         int  `yaml:"workers,omitempty" mapstructure:"workers"`
}

// Sync is the root of the sync configuration file.
type Sync struct {
	Identity      Identity               `yaml:"identity" mapstructure:"identity"`
	Orgs          []Org                  `yaml:"orgs" mapstructure:"orgs"`
	UserSync      UserSync               `yaml:"userSync,omitempty" mapstructure:"userSync"`
	GroupMappings []mapping.GroupMapping `yaml:"groupMappings" mapstructure:"groupMappings"`
	DefaultGroup  string                 `yaml:"defaultGroup,omitempty" mapstructure:"defaultGroup"`
}

// FromFile reads, env-expands and validates the sync config at cfgPath.
func FromFile(cfgPath string) (Sync, error) {
	var cfg Sync
	if cfgPath == "" {
		return cfg, errors.New(msg.MissingConfigFile)
	}
	ValidateSchema(cfgPath)
	if err := Unmarshal(cfgPath, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Unmarshal parses the config file at cfgPath into cfg, expanding ${ENV}
// references in string values.
func Unmarshal(cfgPath string, cfg interface{}) error {
	name := strings.TrimSuffix(filepath.Base(cfgPath), filepath.Ext(cfgPath)) // config name without extension
	v := viper.New()
	v.SetConfigName(name)
	v.AddConfigPath(filepath.Dir(cfgPath))
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf(msg.UnableToLocateConfig, err)
	}

	return v.Unmarshal(&cfg, func(decodeCfg *mapstructure.DecoderConfig) {
		decodeCfg.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			func(in reflect.Kind, out reflect.Kind, v interface{}) (interface{}, error) {
				return expandEnv(v), nil
			},
		)
	})
}

// Validate checks the config for the errors that must surface before any
// reconciliation begins.
func (c *Sync) Validate() error {
	switch c.Identity.Type {
	case IdentityCSV:
		if c.Identity.Path == "" {
			return errors.New("identity.path is required for a csv identity source")
		}
	case IdentityLDAP:
		if c.Identity.LDAP.URL == "" {
			return errors.New("identity.ldap.url is required for an ldap identity source")
		}
	default:
		return fmt.Errorf(msg.InvalidIdentitySource, c.Identity.Type)
	}

	if len(c.Orgs) == 0 {
		return errors.New(msg.MissingOrgs)
	}
	seen := map[string]bool{}
	for _, org := range c.Orgs {
		if org.Name == "" {
			return errors.New("every org needs a name")
		}
		if org.Host == "" {
			return fmt.Errorf("org %s needs a host", org.Name)
		}
		if seen[org.Name] {
			return fmt.Errorf(msg.DuplicateOrg, org.Name)
		}
		seen[org.Name] = true
	}

	if len(c.GroupMappings) == 0 {
		return errors.New(msg.MissingMappings)
	}
	for i, m := range c.GroupMappings {
		if m.DirectoryGroup == "" {
			return fmt.Errorf("groupMappings[%d] needs a directoryGroup", i)
		}
	}

	return nil
}

// DirectoryGroups returns the directory groups named by the mapping table.
func (c *Sync) DirectoryGroups() []string {
	var groups []string
	seen := map[string]bool{}
	for _, m := range c.GroupMappings {
		if !seen[m.DirectoryGroup] {
			seen[m.DirectoryGroup] = true
			groups = append(groups, m.DirectoryGroup)
		}
	}
	return groups
}

func expandEnv(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.String:
		return os.ExpandEnv(v.(string))
	case reflect.Slice:
		if val, ok := v.([]string); ok {
			var strs []string
			for _, item := range val {
				strs = append(strs, os.ExpandEnv(item))
			}
			return strs
		}
		if val, ok := v.([]interface{}); ok {
			var items []interface{}
			for _, item := range val {
				items = append(items, expandEnv(item))
			}
			return items
		}
	case reflect.Map:
		if mp, ok := v.(map[string]string); ok {
			for key, val := range mp {
				mp[key] = os.ExpandEnv(val)
			}
			return mp
		}
		if mp, ok := v.(map[string]interface{}); ok {
			for key, val := range mp {
				mp[key] = expandEnv(val)
			}
			return mp
		}
		if mp, ok := v.(map[interface{}]interface{}); ok {
			for key, val := range mp {
				mp[key] = expandEnv(val)
			}
			return mp
		}
	}
	return v
}
