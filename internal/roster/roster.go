// Package roster models the remote signing service's view of its users.
package roster

import (
	"context"
	"sort"

	"golang.org/x/text/cases"
)

// Status is the lifecycle state of a roster entry.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	// StatusUnspecified is treated as active for matching purposes.
	StatusUnspecified Status = ""
)

// IsActive reports whether the entry should take part in reconciliation.
func (s Status) IsActive() bool {
	return s != StatusInactive
}

// Entry is a single user as known to the signing service.
type Entry struct {
	UserID    string
	Email     string
	FirstName string
	LastName  string
	Group     string
	Roles     []string
	Status    Status
}

// UserPayload is the request body for inserting or updating a user.
type UserPayload struct {
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	GroupID   string   `json:"groupId"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
}

// Service is the connector to one organization's roster.
type Service interface {
	// Users returns the full roster, keyed by case-folded email.
	Users(ctx context.Context) (map[string]Entry, error)
	// Groups returns the signing-service groups, keyed by case-folded group
	// name, with the group id as value.
	Groups(ctx context.Context) (map[string]string, error)
	// CreateGroup creates a new group and returns its id.
	CreateGroup(ctx context.Context, name string) (string, error)
	InsertUser(ctx context.Context, u UserPayload) error
	UpdateUser(ctx context.Context, userID string, u UserPayload) error
	DeactivateUser(ctx context.Context, userID string) error
	// ManagesUsers reports whether the target console supports user
	// lifecycle management (creation and deactivation).
	ManagesUsers() bool
}

var folder = cases.Fold()

// Fold normalizes a string for case-insensitive matching. Emails and group
// names are matched case-insensitively everywhere the directory and the
// roster meet.
func Fold(s string) string {
	return folder.String(s)
}

// RolesMatch reports whether two role sets are equal, independent of order.
// Role names compare exactly, without case normalization.
func RolesMatch(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// Snapshot is a frozen, email-keyed view of one organization's roster,
// fetched once per run. Actions issued during the run are not reflected back
// into it.
type Snapshot struct {
	entries map[string]Entry
}

// NewSnapshot builds a snapshot from entries keyed by case-folded email.
func NewSnapshot(entries map[string]Entry) *Snapshot {
	if entries == nil {
		entries = map[string]Entry{}
	}
	return &Snapshot{entries: entries}
}

// Lookup returns the entry matching email, case-insensitively.
func (s *Snapshot) Lookup(email string) (Entry, bool) {
	e, ok := s.entries[Fold(email)]
	return e, ok
}

// Len returns the number of roster entries.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Emails returns the case-folded emails of all entries, sorted.
func (s *Snapshot) Emails() []string {
	emails := make([]string, 0, len(s.entries))
	for e := range s.entries {
		emails = append(emails, e)
	}
	sort.Strings(emails)
	return emails
}

// Entry returns the entry stored under the given case-folded email.
func (s *Snapshot) Entry(foldedEmail string) Entry {
	return s.entries[foldedEmail]
}
