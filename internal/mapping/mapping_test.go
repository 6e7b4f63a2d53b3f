package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	mappings := []GroupMapping{
		{DirectoryGroup: "contractors", Roles: []string{RoleGroupAdmin}, Priority: 0},
		{DirectoryGroup: "eng", SignGroup: "Engineering", Roles: []string{RoleGroupAdmin}, Priority: 1},
		{DirectoryGroup: "it", SignGroup: "IT", Roles: []string{RoleAccountAdmin}, Priority: 2},
		{DirectoryGroup: "staff", Roles: []string{RoleNormalUser}, Priority: 3},
	}

	testCases := []struct {
		name       string
		userGroups []string
		want       ResolvedAssignment
	}{
		{
			name:       "single match",
			userGroups: []string{"eng"},
			want:       ResolvedAssignment{Group: "Engineering", Roles: []string{RoleGroupAdmin}},
		},
		{
			name:       "lowest priority wins the group, roles are unioned",
			userGroups: []string{"it", "eng"},
			want:       ResolvedAssignment{Group: "Engineering", Roles: []string{RoleAccountAdmin, RoleGroupAdmin}},
		},
		{
			name:       "no match falls back to normal user",
			userGroups: []string{"marketing"},
			want:       ResolvedAssignment{Roles: []string{RoleNormalUser}},
		},
		{
			name:       "no groups at all",
			userGroups: nil,
			want:       ResolvedAssignment{Roles: []string{RoleNormalUser}},
		},
		{
			name:       "winner without a target group resolves to no group",
			userGroups: []string{"contractors", "eng"},
			want:       ResolvedAssignment{Roles: []string{RoleGroupAdmin}},
		},
		{
			name:       "roles-only entry still unions roles",
			userGroups: []string{"it", "staff"},
			want:       ResolvedAssignment{Group: "IT", Roles: []string{RoleAccountAdmin, RoleNormalUser}},
		},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.userGroups, mappings)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolvePriorityTies(t *testing.T) {
	mappings := []GroupMapping{
		{DirectoryGroup: "a", SignGroup: "First", Priority: 5},
		{DirectoryGroup: "b", SignGroup: "Second", Priority: 5},
	}

	got := Resolve([]string{"b", "a"}, mappings)
	// declaration order breaks the tie, not the user's group order
	assert.Equal(t, "First", got.Group)
}

func TestResolveIsDeterministic(t *testing.T) {
	mappings := []GroupMapping{
		{DirectoryGroup: "eng", SignGroup: "Engineering", Roles: []string{RoleGroupAdmin}, Priority: 2},
		{DirectoryGroup: "ops", SignGroup: "Operations", Roles: []string{RoleAccountAdmin}, Priority: 1},
	}

	first := Resolve([]string{"eng", "ops"}, mappings)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Resolve([]string{"ops", "eng"}, mappings))
	}
	assert.Equal(t, "Operations", first.Group)
	assert.Equal(t, []string{RoleAccountAdmin, RoleGroupAdmin}, first.Roles)
}

func TestResolveNeverReturnsEmptyRoles(t *testing.T) {
	mappings := []GroupMapping{
		{DirectoryGroup: "eng", SignGroup: "Engineering", Priority: 1},
	}

	got := Resolve([]string{"eng"}, mappings)
	assert.Equal(t, []string{RoleNormalUser}, got.Roles)
}

func TestShouldSync(t *testing.T) {
	testCases := []struct {
		name       string
		assignment ResolvedAssignment
		orgName    string
		want       bool
	}{
		{
			name:       "absent group syncs everywhere",
			assignment: ResolvedAssignment{Roles: []string{RoleNormalUser}},
			orgName:    "secondary",
			want:       true,
		},
		{
			name:       "group belonging to the org",
			assignment: ResolvedAssignment{Group: "Engineering", Organization: "secondary"},
			orgName:    "secondary",
			want:       true,
		},
		{
			name:       "group belonging to another org",
			assignment: ResolvedAssignment{Group: "Engineering", Organization: "secondary"},
			orgName:    "primary",
			want:       false,
		},
		{
			name:       "unqualified group defaults to primary",
			assignment: ResolvedAssignment{Group: "Engineering"},
			orgName:    "primary",
			want:       true,
		},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldSync(tt.assignment, tt.orgName))
		})
	}
}

func TestCommonGroup(t *testing.T) {
	assert.Equal(t, "B", CommonGroup([]string{"A", "B", "C"}, []string{"D", "E", "F", "B"}, "default"))
	assert.Equal(t, "default", CommonGroup([]string{"A", "B", "C"}, []string{"D", "E", "F"}, "default"))
}

func TestOrgGroups(t *testing.T) {
	mappings := []GroupMapping{
		{DirectoryGroup: "eng", SignGroup: "Engineering"},
		{DirectoryGroup: "dev", SignGroup: "Engineering"},
		{DirectoryGroup: "it", SignGroup: "IT", Organization: "secondary"},
		{DirectoryGroup: "staff"},
	}

	assert.Equal(t, []string{"Engineering"}, OrgGroups("primary", mappings))
	assert.Equal(t, []string{"IT"}, OrgGroups("secondary", mappings))
	assert.Empty(t, OrgGroups("tertiary", mappings))
}
