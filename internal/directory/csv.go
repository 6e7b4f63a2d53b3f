package directory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVConnector reads directory users from a CSV file with a header row.
// Recognized columns are email, firstname, lastname, identity_type and
// groups; the groups column holds a comma separated list.
type CSVConnector struct {
	Path string
}

// NewCSVConnector returns a connector that reads from the file at path.
func NewCSVConnector(path string) *CSVConnector {
	return &CSVConnector{Path: path}
}

// LoadUsersAndGroups implements Connector.
func (c *CSVConnector) LoadUsersAndGroups(_ context.Context, groups []string, _ []string, allUsers bool) ([]User, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open directory file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty directory file: no header row found")
		}
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["email"]; !ok {
		return nil, errors.New("directory file has no email column")
	}

	wanted := make(map[string]bool, len(groups))
	for _, g := range groups {
		wanted[g] = true
	}

	var users []User
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read directory row: %w", err)
		}

		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		email := field("email")
		if email == "" {
			continue
		}

		var userGroups []string
		for _, g := range strings.Split(field("groups"), ",") {
			if g = strings.TrimSpace(g); g != "" {
				userGroups = append(userGroups, g)
			}
		}

		if !allUsers && !intersects(userGroups, wanted) {
			continue
		}

		users = append(users, User{
			Email:        email,
			FirstName:    field("firstname"),
			LastName:     field("lastname"),
			IdentityType: field("identity_type"),
			Groups:       userGroups,
		})
	}

	return users, nil
}

func intersects(groups []string, wanted map[string]bool) bool {
	for _, g := range groups {
		if wanted[g] {
			return true
		}
	}
	return false
}
