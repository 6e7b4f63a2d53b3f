package engine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/rosterlabs/signsync/internal/roster"
)

// Row is a single line of the action summary.
type Row struct {
	Label string
	Count int
}

// Result accumulates the outcome of one reconciliation run. It is owned by
// the caller of Engine.Run; no state is retained across runs.
type Result struct {
	mu sync.Mutex

	DirectoryUsersRead int
	RosterUsersRead    int

	excluded         map[string]bool
	created          map[string]bool
	deactivated      map[string]bool
	adminsMatched    map[string]bool
	groupsMatched    map[string]bool
	groupUpdates     map[string]bool
	roleUpdates      map[string]bool
	matchedNoUpdates map[string]bool
	signOnly         map[string]roster.Entry
}

// NewResult returns an empty result.
func NewResult() *Result {
	return &Result{
		excluded:         map[string]bool{},
		created:          map[string]bool{},
		deactivated:      map[string]bool{},
		adminsMatched:    map[string]bool{},
		groupsMatched:    map[string]bool{},
		groupUpdates:     map[string]bool{},
		roleUpdates:      map[string]bool{},
		matchedNoUpdates: map[string]bool{},
		signOnly:         map[string]roster.Entry{},
	}
}

func (r *Result) add(set map[string]bool, email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set[roster.Fold(email)] = true
}

func (r *Result) AddExcluded(email string)        { r.add(r.excluded, email) }
func (r *Result) AddCreated(email string)         { r.add(r.created, email) }
func (r *Result) AddDeactivated(email string)     { r.add(r.deactivated, email) }
func (r *Result) AddAdminMatched(email string)    { r.add(r.adminsMatched, email) }
func (r *Result) AddGroupMatched(email string)    { r.add(r.groupsMatched, email) }
func (r *Result) AddGroupUpdate(email string)     { r.add(r.groupUpdates, email) }
func (r *Result) AddRoleUpdate(email string)      { r.add(r.roleUpdates, email) }
func (r *Result) AddMatchedNoUpdate(email string) { r.add(r.matchedNoUpdates, email) }

// AddSignOnly records a roster entry with no corresponding directory user.
func (r *Result) AddSignOnly(email string, entry roster.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signOnly[roster.Fold(email)] = entry
}

// SignOnly returns the roster entries that had no corresponding directory
// user, keyed by case-folded email.
func (r *Result) SignOnly() map[string]roster.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]roster.Entry, len(r.signOnly))
	for k, v := range r.signOnly {
		out[k] = v
	}
	return out
}

func (r *Result) Excluded() int        { r.mu.Lock(); defer r.mu.Unlock(); return len(r.excluded) }
func (r *Result) Created() int         { r.mu.Lock(); defer r.mu.Unlock(); return len(r.created) }
func (r *Result) Deactivated() int     { r.mu.Lock(); defer r.mu.Unlock(); return len(r.deactivated) }
func (r *Result) GroupUpdates() int    { r.mu.Lock(); defer r.mu.Unlock(); return len(r.groupUpdates) }
func (r *Result) RoleUpdates() int     { r.mu.Lock(); defer r.mu.Unlock(); return len(r.roleUpdates) }
func (r *Result) MatchedNoUpdate() int { r.mu.Lock(); defer r.mu.Unlock(); return len(r.matchedNoUpdates) }

// TotalUpdated is the union of the group-update and role-update email sets,
// not their sum. A single user can appear in both.
func (r *Result) TotalUpdated() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	union := make(map[string]bool, len(r.groupUpdates)+len(r.roleUpdates))
	for e := range r.groupUpdates {
		union[e] = true
	}
	for e := range r.roleUpdates {
		union[e] = true
	}
	return len(union)
}

// Summary returns the ordered action summary rows. createUsers and
// deactivateUsers control whether the created/deactivated rows appear.
func (r *Result) Summary(createUsers, deactivateUsers bool) []Row {
	r.mu.Lock()
	defer r.mu.Unlock()

	union := make(map[string]bool, len(r.groupUpdates)+len(r.roleUpdates))
	for e := range r.groupUpdates {
		union[e] = true
	}
	for e := range r.roleUpdates {
		union[e] = true
	}

	rows := []Row{
		{"Number of directory users read", r.DirectoryUsersRead},
		{"Number of directory selected for input", r.DirectoryUsersRead - len(r.excluded)},
		{"Number of directory users excluded", len(r.excluded)},
		{"Number of Sign users read", r.RosterUsersRead},
		{"Number of Sign users not in directory (sign-only)", len(r.signOnly)},
		{"Number of Sign users updated", len(union)},
		{"Number of users with matched groups unchanged", len(r.groupsMatched)},
		{"Number of users with admin roles unchanged", len(r.adminsMatched)},
		{"Number of users with groups updated", len(r.groupUpdates)},
		{"Number of users admin roles updated", len(r.roleUpdates)},
		{"Number of users matched with no updates", len(r.matchedNoUpdates)},
	}
	if createUsers {
		rows = append(rows, Row{"Number of Sign users created", len(r.created)})
	}
	if deactivateUsers {
		rows = append(rows, Row{"Number of Sign users deactivated", len(r.deactivated)})
	}
	return rows
}

// LogSummary renders the summary once as a fixed-width key/value report.
func (r *Result) LogSummary(createUsers, deactivateUsers bool) {
	rows := r.Summary(createUsers, deactivateUsers)

	pad := 0
	for _, row := range rows {
		if len(row.Label) > pad {
			pad = len(row.Label)
		}
	}

	dashes := strings.Repeat("-", 27)
	log.Info().Msg(dashes + "------- Action Summary -------" + dashes)
	for _, row := range rows {
		log.Info().Msg(fmt.Sprintf("  %*s: %d", pad, row.Label, row.Count))
	}
}
