// Package directory defines the identity source that sync runs read their
// users from.
package directory

import "context"

// User is a record from the identity source, tagged with the directory groups
// it belongs to.
type User struct {
	Email        string
	FirstName    string
	LastName     string
	IdentityType string
	Groups       []string
}

// Connector loads users and their group memberships from an identity source.
type Connector interface {
	// LoadUsersAndGroups returns a one-shot, finite snapshot of directory
	// users. When allUsers is false, only members of the given groups are
	// returned. extendedAttributes names additional attributes to fetch,
	// for connectors that support them.
	LoadUsersAndGroups(ctx context.Context, groups []string, extendedAttributes []string, allUsers bool) ([]User, error)
}
