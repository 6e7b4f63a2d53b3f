// Package mapping translates directory group memberships into signing-service
// group and role assignments, using a priority-ordered rule table.
package mapping

import (
	"sort"

	"golang.org/x/exp/slices"
)

// Role levels known to the signing service.
const (
	RoleNormalUser   = "NORMAL_USER"
	RoleGroupAdmin   = "GROUP_ADMIN"
	RoleAccountAdmin = "ACCOUNT_ADMIN"
)

// PrimaryOrg is the organization bucket that unqualified group mappings
// belong to.
const PrimaryOrg = "primary"

// GroupMapping maps one directory group onto a signing-service group and a
// set of roles. A lower priority takes precedence.
type GroupMapping struct {
	DirectoryGroup string   `yaml:"directoryGroup" mapstructure:"directoryGroup"`
	SignGroup      string   `yaml:"signGroup,omitempty" mapstructure:"signGroup"`
	Organization   string   `yaml:"organization,omitempty" mapstructure:"organization"`
	Roles          []string `yaml:"roles,omitempty" mapstructure:"roles"`
	Priority       int      `yaml:"priority" mapstructure:"priority"`
}

// ResolvedAssignment is the outcome of resolving a user's directory groups
// against the mapping table.
type ResolvedAssignment struct {
	// Group is the target signing-service group. Empty means the user gets no
	// explicit group assignment.
	Group string
	// Organization is the organization declared by the winning mapping entry.
	// Empty means primary.
	Organization string
	// Roles is never empty; it defaults to NORMAL_USER.
	Roles []string
}

// Resolve computes the target group and role set for a user that belongs to
// userGroups. All mapping entries whose directory group the user is a member
// of contribute their roles (a set union); the entry with the lowest priority
// alone decides the target group, with declaration order breaking ties. The
// result does not depend on the iteration order of userGroups.
func Resolve(userGroups []string, mappings []GroupMapping) ResolvedAssignment {
	member := make(map[string]bool, len(userGroups))
	for _, g := range userGroups {
		member[g] = true
	}

	var selected []GroupMapping
	for _, m := range mappings {
		if member[m.DirectoryGroup] {
			selected = append(selected, m)
		}
	}

	if len(selected) == 0 {
		return ResolvedAssignment{Roles: []string{RoleNormalUser}}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Priority < selected[j].Priority
	})

	roles := make(map[string]bool)
	for _, m := range selected {
		for _, r := range m.Roles {
			roles[r] = true
		}
	}
	if len(roles) == 0 {
		roles[RoleNormalUser] = true
	}

	roleList := make([]string, 0, len(roles))
	for r := range roles {
		roleList = append(roleList, r)
	}
	sort.Strings(roleList)

	winner := selected[0]
	return ResolvedAssignment{
		Group:        winner.SignGroup,
		Organization: winner.Organization,
		Roles:        roleList,
	}
}

// ShouldSync reports whether the assignment belongs to the organization named
// orgName. Users without an explicit target group belong to every
// organization's primary bucket and always sync.
func ShouldSync(a ResolvedAssignment, orgName string) bool {
	if a.Group == "" {
		return true
	}
	org := a.Organization
	if org == "" {
		org = PrimaryOrg
	}
	return org == orgName
}

// CommonGroup returns the first group in preferred that is also present in
// available, or fallback if the two lists share no element.
func CommonGroup(preferred, available []string, fallback string) string {
	for _, g := range preferred {
		if slices.Contains(available, g) {
			return g
		}
	}
	return fallback
}

// OrgGroups returns the signing-service groups that the mapping table assigns
// to the organization named orgName.
func OrgGroups(orgName string, mappings []GroupMapping) []string {
	var groups []string
	for _, m := range mappings {
		if m.SignGroup == "" {
			continue
		}
		org := m.Organization
		if org == "" {
			org = PrimaryOrg
		}
		if org == orgName && !slices.Contains(groups, m.SignGroup) {
			groups = append(groups, m.SignGroup)
		}
	}
	return groups
}
