package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"
)

// LDAPConfig holds the connection settings for an LDAP identity source.
type LDAPConfig struct {
	URL          string `yaml:"url" mapstructure:"url"`
	BindDN       string `yaml:"bindDN" mapstructure:"bindDN"`
	BindPassword string `yaml:"bindPassword" mapstructure:"bindPassword"`
	BaseDN       string `yaml:"baseDN" mapstructure:"baseDN"`
	UserFilter   string `yaml:"userFilter,omitempty" mapstructure:"userFilter"`
}

// LDAPConnector reads directory users from an LDAP server. Group memberships
// are taken from the memberOf attribute, reduced to the group CN.
type LDAPConnector struct {
	cfg LDAPConfig
}

// NewLDAPConnector returns a connector for the given LDAP settings.
func NewLDAPConnector(cfg LDAPConfig) *LDAPConnector {
	if cfg.UserFilter == "" {
		cfg.UserFilter = "(&(objectClass=person)(mail=*))"
	}
	return &LDAPConnector{cfg: cfg}
}

// LoadUsersAndGroups implements Connector.
func (c *LDAPConnector) LoadUsersAndGroups(ctx context.Context, groups []string, extendedAttributes []string, allUsers bool) ([]User, error) {
	conn, err := ldap.DialURL(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to reach LDAP server: %w", err)
	}
	defer conn.Close()

	if c.cfg.BindDN != "" {
		if err := conn.Bind(c.cfg.BindDN, c.cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("LDAP bind failed: %w", err)
		}
	}

	attrs := []string{"mail", "givenName", "sn", "memberOf"}
	attrs = append(attrs, extendedAttributes...)

	req := ldap.NewSearchRequest(
		c.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		c.cfg.UserFilter,
		attrs,
		nil,
	)

	res, err := conn.SearchWithPaging(req, 1000)
	if err != nil {
		return nil, fmt.Errorf("LDAP search failed: %w", err)
	}

	wanted := make(map[string]bool, len(groups))
	for _, g := range groups {
		wanted[g] = true
	}

	var users []User
	for _, entry := range res.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		email := entry.GetAttributeValue("mail")
		if email == "" {
			log.Warn().Str("dn", entry.DN).Msg("Ignoring directory entry without mail attribute")
			continue
		}

		var userGroups []string
		for _, dn := range entry.GetAttributeValues("memberOf") {
			if cn := groupCN(dn); cn != "" {
				userGroups = append(userGroups, cn)
			}
		}

		if !allUsers && !intersects(userGroups, wanted) {
			continue
		}

		users = append(users, User{
			Email:        email,
			FirstName:    entry.GetAttributeValue("givenName"),
			LastName:     entry.GetAttributeValue("sn"),
			IdentityType: "federatedID",
			Groups:       userGroups,
		})
	}

	return users, nil
}

// groupCN extracts the CN from a group DN like "CN=eng,OU=Groups,DC=example,DC=com".
func groupCN(dn string) string {
	parsed, err := ldap.ParseDN(dn)
	if err != nil || len(parsed.RDNs) == 0 {
		return ""
	}
	for _, attr := range parsed.RDNs[0].Attributes {
		if strings.EqualFold(attr.Type, "cn") {
			return attr.Value
		}
	}
	return ""
}
