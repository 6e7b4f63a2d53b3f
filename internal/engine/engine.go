// Package engine reconciles directory users against signing-service rosters.
// Each run computes the minimal set of insert, update and deactivate actions
// needed to converge every configured organization's roster to the policy
// derived from directory group memberships.
package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"

	"github.com/rosterlabs/signsync/internal/directory"
	"github.com/rosterlabs/signsync/internal/mapping"
	"github.com/rosterlabs/signsync/internal/msg"
	"github.com/rosterlabs/signsync/internal/roster"
)

// DefaultGroupName is the group users end up in when mapping resolution
// yields no explicit target group.
const DefaultGroupName = "default group"

// DefaultSignOnlyLimit caps how many sign-only users a run may deactivate.
const DefaultSignOnlyLimit = 100

// Options controls a reconciliation run.
type Options struct {
	// CreateUsers inserts directory users missing from the roster.
	CreateUsers bool
	// DeactivateUsers deactivates roster entries absent from the directory.
	DeactivateUsers bool
	// DryRun plans and classifies but issues no writes.
	DryRun bool
	// DefaultGroup replaces an absent resolved group before comparison.
	DefaultGroup string
	// SignOnlyLimit refuses deactivation when the sign-only count exceeds it.
	SignOnlyLimit int
	// Workers bounds concurrent write dispatch. 1 means sequential.
	Workers int
}

// Org is one configured target roster.
type Org struct {
	Name    string
	Service roster.Service
}

// DesiredUser is a directory user together with its resolved assignment.
type DesiredUser struct {
	directory.User
	Assignment mapping.ResolvedAssignment
}

// Engine drives reconciliation across all configured organizations.
type Engine struct {
	opts     Options
	mappings []mapping.GroupMapping
	orgs     []Org
}

// New creates an engine. Mappings keep their declaration order; it breaks
// priority ties during resolution.
func New(opts Options, mappings []mapping.GroupMapping, orgs []Org) *Engine {
	if opts.DefaultGroup == "" {
		opts.DefaultGroup = DefaultGroupName
	}
	if opts.SignOnlyLimit == 0 {
		opts.SignOnlyLimit = DefaultSignOnlyLimit
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Engine{opts: opts, mappings: mappings, orgs: orgs}
}

// Run reconciles every organization against the given directory snapshot and
// returns the run's result. A roster that cannot be fetched skips its
// organization; per-user write failures are logged and never abort the pass.
func (e *Engine) Run(ctx context.Context, users []directory.User) (*Result, error) {
	res := NewResult()
	desired := e.desiredUsers(users)
	res.DirectoryUsersRead = len(desired)

	for _, org := range e.orgs {
		if err := e.reconcileOrg(ctx, org, desired, res); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Error().Err(err).Str("org", org.Name).Msg(msg.UnableToFetchRoster)
		}
	}

	return res, nil
}

// desiredUsers resolves every directory user's assignment and keys the
// outcome by case-folded email.
func (e *Engine) desiredUsers(users []directory.User) map[string]DesiredUser {
	desired := make(map[string]DesiredUser, len(users))
	for _, u := range users {
		if u.Email == "" {
			log.Warn().Msgf("Ignoring directory user with empty email: %s %s", u.FirstName, u.LastName)
			continue
		}
		desired[roster.Fold(u.Email)] = DesiredUser{
			User:       u,
			Assignment: mapping.Resolve(u.Groups, e.mappings),
		}
	}
	return desired
}

func (e *Engine) reconcileOrg(ctx context.Context, org Org, desired map[string]DesiredUser, res *Result) error {
	// The snapshot is fetched and frozen before any writes are issued.
	entries, err := org.Service.Users(ctx)
	if err != nil {
		return err
	}
	snapshot := roster.NewSnapshot(entries)
	res.RosterUsersRead += snapshot.Len()

	groups, err := org.Service.Groups(ctx)
	if err != nil {
		return err
	}
	e.ensureGroups(ctx, org, groups)

	actions := e.plan(org, desired, snapshot, groups, res)

	d := Dispatcher{Workers: e.opts.Workers}
	d.Apply(ctx, actions, func(ctx context.Context, a Action) {
		e.apply(ctx, org, a, res)
	})

	e.resolveSignOnly(ctx, org, desired, snapshot, res)
	return nil
}

// ensureGroups creates any mapped sign group the organization does not have
// yet. Comparison is case-insensitive. Creation failures are logged; the
// group id simply stays unknown for this run.
func (e *Engine) ensureGroups(ctx context.Context, org Org, groups map[string]string) {
	for _, name := range mapping.OrgGroups(org.Name, e.mappings) {
		if _, ok := groups[roster.Fold(name)]; ok {
			continue
		}
		log.Info().Str("org", org.Name).Msgf("Creating new Sign group: %s", name)
		if e.opts.DryRun {
			continue
		}
		id, err := org.Service.CreateGroup(ctx, name)
		if err != nil {
			log.Error().Err(err).Msgf("Error creating group %s", name)
			continue
		}
		groups[roster.Fold(name)] = id
	}
}

// plan classifies every directory user against the snapshot and returns the
// resulting actions, skips included. Users are visited in sorted email order
// so identical inputs produce identical plans.
func (e *Engine) plan(org Org, desired map[string]DesiredUser, snapshot *roster.Snapshot, groups map[string]string, res *Result) []Action {
	emails := maps.Keys(desired)
	sort.Strings(emails)

	var actions []Action
	for _, email := range emails {
		du := desired[email]
		if !mapping.ShouldSync(du.Assignment, org.Name) {
			continue
		}

		group := du.Assignment.Group
		if group == "" {
			group = e.opts.DefaultGroup
		}
		groupID := groups[roster.Fold(group)]
		roles := du.Assignment.Roles

		entry, ok := snapshot.Lookup(du.Email)
		if !ok {
			if e.opts.CreateUsers && org.Service.ManagesUsers() {
				actions = append(actions, Action{
					Kind:  ActionInsert,
					Email: du.Email,
					Payload: roster.UserPayload{
						Email:     du.Email,
						FirstName: du.FirstName,
						GroupID:   groupID,
						LastName:  du.LastName,
						Roles:     roles,
					},
					group: group,
				})
				continue
			}
			log.Info().Msgf("User %s not present in Sign and will be skipped.", du.Email)
			res.AddExcluded(du.Email)
			actions = append(actions, Action{Kind: ActionSkip, Email: du.Email, Reason: SkipNotPresent})
			continue
		}

		groupsMatch := strings.EqualFold(entry.Group, group)
		rolesMatch := roster.RolesMatch(roles, entry.Roles)

		if !rolesMatch {
			res.AddRoleUpdate(entry.Email)
		} else if !isNormalUserOnly(roles) {
			res.AddAdminMatched(entry.Email)
		}
		if !groupsMatch {
			res.AddGroupUpdate(entry.Email)
		} else {
			res.AddGroupMatched(entry.Email)
		}

		if groupsMatch && rolesMatch {
			log.Debug().Msgf("skipping Sign update for '%s' -- no updates needed", du.Email)
			res.AddMatchedNoUpdate(entry.Email)
			actions = append(actions, Action{Kind: ActionSkip, Email: entry.Email, UserID: entry.UserID, Reason: SkipNoUpdate})
			continue
		}

		// The merged payload keeps the roster entry's immutable fields and
		// carries the new group id and resolved roles.
		actions = append(actions, Action{
			Kind:   ActionUpdate,
			Email:  entry.Email,
			UserID: entry.UserID,
			Payload: roster.UserPayload{
				Email:     entry.Email,
				FirstName: entry.FirstName,
				GroupID:   groupID,
				LastName:  entry.LastName,
				Roles:     roles,
			},
			groupChanged: !groupsMatch,
			rolesChanged: !rolesMatch,
			group:        group,
		})
	}

	return actions
}

// apply issues one write action. Failures are logged and leave the user in
// its prior remote state; they never abort the run.
func (e *Engine) apply(ctx context.Context, org Org, a Action, res *Result) {
	if a.Kind == ActionSkip {
		return
	}
	if e.opts.DryRun {
		log.Info().Str("org", org.Name).Msgf("[dry run] would %s Sign user '%s'", a.Kind, a.Email)
		return
	}

	switch a.Kind {
	case ActionInsert:
		if err := org.Service.InsertUser(ctx, a.Payload); err != nil {
			log.Error().Err(err).Msgf("Error inserting user %s", a.Email)
			return
		}
		res.AddCreated(a.Email)
		log.Info().Msgf("Inserted Sign user '%s', Group: '%s', Roles: %v", a.Email, a.group, a.Payload.Roles)
	case ActionUpdate:
		if err := org.Service.UpdateUser(ctx, a.UserID, a.Payload); err != nil {
			log.Error().Err(err).Msgf("Error updating user %s", a.Email)
			return
		}
		log.Info().Msgf("Updated Sign user '%s', Group (%s): '%s', Roles (%s): %v",
			a.Email, changed(a.groupChanged), a.group, changed(a.rolesChanged), a.Payload.Roles)
	case ActionDeactivate:
		if err := org.Service.DeactivateUser(ctx, a.UserID); err != nil {
			log.Error().Err(err).Msgf("Error deactivating user %s", a.Email)
			return
		}
		res.AddDeactivated(a.Email)
		log.Info().Msgf("Deactivated Sign user '%s'", a.Email)
	}
}

// resolveSignOnly collects roster entries absent from the directory snapshot
// and, when enabled and supported, deactivates every one of them. The loop
// always covers the full sign-only set.
func (e *Engine) resolveSignOnly(ctx context.Context, org Org, desired map[string]DesiredUser, snapshot *roster.Snapshot, res *Result) {
	var signOnly []roster.Entry
	for _, email := range snapshot.Emails() {
		if _, ok := desired[email]; ok {
			continue
		}
		entry := snapshot.Entry(email)
		res.AddSignOnly(entry.Email, entry)
		signOnly = append(signOnly, entry)
	}

	if !e.opts.DeactivateUsers || !org.Service.ManagesUsers() {
		return
	}
	if len(signOnly) > e.opts.SignOnlyLimit {
		log.Warn().Str("org", org.Name).Msgf(msg.SignOnlyLimitExceeded, len(signOnly), e.opts.SignOnlyLimit)
		return
	}

	actions := make([]Action, 0, len(signOnly))
	for _, entry := range signOnly {
		if !entry.Status.IsActive() {
			continue
		}
		actions = append(actions, Action{
			Kind:   ActionDeactivate,
			Email:  entry.Email,
			UserID: entry.UserID,
		})
	}

	d := Dispatcher{Workers: e.opts.Workers}
	d.Apply(ctx, actions, func(ctx context.Context, a Action) {
		e.apply(ctx, org, a, res)
	})
}

func isNormalUserOnly(roles []string) bool {
	return len(roles) == 1 && roles[0] == mapping.RoleNormalUser
}

func changed(c bool) string {
	if c {
		return "new"
	}
	return "unchanged"
}
