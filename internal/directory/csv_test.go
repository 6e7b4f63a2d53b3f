package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVConnector_LoadUsersAndGroups(t *testing.T) {
	content := `email,firstname,lastname,identity_type,groups
jane@example.com,Jane,Doe,federatedID,"Engineering, Sales"
bob@example.com,Bob,Roe,,Marketing
,Missing,Email,,Engineering
carol@example.com,Carol,Coe,enterpriseID,
`

	testCases := []struct {
		name       string
		groups     []string
		allUsers   bool
		wantEmails []string
	}{
		{
			name:       "filters by mapped groups",
			groups:     []string{"Engineering"},
			wantEmails: []string{"jane@example.com"},
		},
		{
			name:       "all users ignores the filter",
			groups:     []string{"Engineering"},
			allUsers:   true,
			wantEmails: []string{"jane@example.com", "bob@example.com", "carol@example.com"},
		},
		{
			name:       "no group overlap",
			groups:     []string{"Finance"},
			wantEmails: nil,
		},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCSVConnector(writeCSV(t, content))
			users, err := c.LoadUsersAndGroups(context.Background(), tt.groups, nil, tt.allUsers)
			require.NoError(t, err)

			var emails []string
			for _, u := range users {
				emails = append(emails, u.Email)
			}
			assert.Equal(t, tt.wantEmails, emails)
		})
	}
}

func TestCSVConnector_ParsesFields(t *testing.T) {
	c := NewCSVConnector(writeCSV(t, `email,firstname,lastname,identity_type,groups
jane@example.com,Jane,Doe,federatedID,"Engineering, Sales"
`))
	users, err := c.LoadUsersAndGroups(context.Background(), nil, nil, true)
	require.NoError(t, err)
	require.Len(t, users, 1)

	assert.Equal(t, User{
		Email:        "jane@example.com",
		FirstName:    "Jane",
		LastName:     "Doe",
		IdentityType: "federatedID",
		Groups:       []string{"Engineering", "Sales"},
	}, users[0])
}

func TestCSVConnector_HeaderIsCaseInsensitive(t *testing.T) {
	c := NewCSVConnector(writeCSV(t, `Email,FirstName,Groups
jane@example.com,Jane,Engineering
`))
	users, err := c.LoadUsersAndGroups(context.Background(), nil, nil, true)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Jane", users[0].FirstName)
}

func TestCSVConnector_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "empty file", content: ""},
		{name: "missing email column", content: "firstname,lastname\nJane,Doe\n"},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCSVConnector(writeCSV(t, tt.content))
			_, err := c.LoadUsersAndGroups(context.Background(), nil, nil, true)
			assert.Error(t, err)
		})
	}
}

func TestCSVConnector_MissingFile(t *testing.T) {
	c := NewCSVConnector(filepath.Join(t.TempDir(), "nope.csv"))
	_, err := c.LoadUsersAndGroups(context.Background(), nil, nil, true)
	assert.Error(t, err)
}
