package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/rosterlabs/signsync/internal/directory"
	"github.com/rosterlabs/signsync/internal/mapping"
	"github.com/rosterlabs/signsync/internal/roster"
)

// fakeService is an in-memory roster.Service that applies writes to its own
// state, so repeated runs observe converged state.
type fakeService struct {
	mu         sync.Mutex
	users      map[string]roster.Entry
	groups     map[string]string
	groupNames map[string]string
	manages    bool

	failUsers      bool
	failUpdate     map[string]bool
	failDeactivate map[string]bool

	inserted      []roster.UserPayload
	updated       []roster.UserPayload
	deactivated   []string
	createdGroups []string
}

func newFakeService(manages bool) *fakeService {
	return &fakeService{
		users:          map[string]roster.Entry{},
		groups:         map[string]string{},
		groupNames:     map[string]string{},
		manages:        manages,
		failUpdate:     map[string]bool{},
		failDeactivate: map[string]bool{},
	}
}

func (f *fakeService) addGroup(name string) string {
	id := "g-" + roster.Fold(name)
	f.groups[roster.Fold(name)] = id
	f.groupNames[id] = name
	return id
}

func (f *fakeService) addUser(e roster.Entry) {
	f.users[roster.Fold(e.Email)] = e
}

func (f *fakeService) Users(_ context.Context) (map[string]roster.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUsers {
		return nil, errors.New("roster unavailable")
	}
	out := make(map[string]roster.Entry, len(f.users))
	for k, v := range f.users {
		out[k] = v
	}
	return out, nil
}

func (f *fakeService) Groups(_ context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.groups))
	for k, v := range f.groups {
		out[k] = v
	}
	return out, nil
}

func (f *fakeService) CreateGroup(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdGroups = append(f.createdGroups, name)
	return f.addGroup(name), nil
}

func (f *fakeService) InsertUser(_ context.Context, u roster.UserPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, u)
	f.users[roster.Fold(u.Email)] = roster.Entry{
		UserID:    "u-" + roster.Fold(u.Email),
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Group:     f.groupNames[u.GroupID],
		Roles:     u.Roles,
		Status:    roster.StatusActive,
	}
	return nil
}

func (f *fakeService) UpdateUser(_ context.Context, userID string, u roster.UserPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate[userID] {
		return errors.New("update rejected")
	}
	for k, e := range f.users {
		if e.UserID == userID {
			e.Group = f.groupNames[u.GroupID]
			e.Roles = u.Roles
			f.users[k] = e
		}
	}
	f.updated = append(f.updated, u)
	return nil
}

func (f *fakeService) DeactivateUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDeactivate[userID] {
		return errors.New("deactivation rejected")
	}
	f.deactivated = append(f.deactivated, userID)
	for k, e := range f.users {
		if e.UserID == userID {
			e.Status = roster.StatusInactive
			f.users[k] = e
		}
	}
	return nil
}

func (f *fakeService) ManagesUsers() bool {
	return f.manages
}

var engMapping = []mapping.GroupMapping{
	{DirectoryGroup: "eng", SignGroup: "Engineering", Roles: []string{mapping.RoleGroupAdmin}, Priority: 1},
}

func TestRunUpdatesGroupAndRoles(t *testing.T) {
	svc := newFakeService(true)
	svc.addGroup("Engineering")
	svc.addGroup("Marketing")
	svc.addUser(roster.Entry{
		UserID:    "u1",
		Email:     "jane@example.com",
		FirstName: "Jane",
		LastName:  "Doe",
		Group:     "Marketing",
		Roles:     []string{mapping.RoleNormalUser},
		Status:    roster.StatusActive,
	})

	e := New(Options{}, engMapping, []Org{{Name: mapping.PrimaryOrg, Service: svc}})
	res, err := e.Run(context.Background(), []directory.User{
		{Email: "jane@example.com", FirstName: "Jane", LastName: "Doe", Groups: []string{"eng"}},
	})

	assert.NoError(t, err)
	assert.Len(t, svc.updated, 1)
	want := roster.UserPayload{
		Email:     "jane@example.com",
		FirstName: "Jane",
		GroupID:   "g-engineering",
		LastName:  "Doe",
		Roles:     []string{mapping.RoleGroupAdmin},
	}
	if diff := cmp.Diff(want, svc.updated[0]); diff != "" {
		t.Errorf("update payload mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, res.GroupUpdates())
	assert.Equal(t, 1, res.RoleUpdates())
	assert.Equal(t, 1, res.TotalUpdated())
	assert.Equal(t, 0, res.MatchedNoUpdate())
}

func TestRunIsIdempotent(t *testing.T) {
	svc := newFakeService(true)
	svc.addGroup("Engineering")
	svc.addUser(roster.Entry{
		UserID: "u1",
		Email:  "jane@example.com",
		Group:  "Marketing",
		Roles:  []string{mapping.RoleNormalUser},
		Status: roster.StatusActive,
	})

	users := []directory.User{{Email: "jane@example.com", Groups: []string{"eng"}}}
	e := New(Options{}, engMapping, []Org{{Name: mapping.PrimaryOrg, Service: svc}})

	_, err := e.Run(context.Background(), users)
	assert.NoError(t, err)
	assert.Len(t, svc.updated, 1)

	res, err := e.Run(context.Background(), users)
	assert.NoError(t, err)
	assert.Len(t, svc.updated, 1, "second run must issue no writes")
	assert.Equal(t, 1, res.MatchedNoUpdate())
	assert.Equal(t, 0, res.TotalUpdated())
}

func TestRunMatchesCaseInsensitively(t *testing.T) {
	svc := newFakeService(true)
	svc.addGroup("Engineering")
	svc.addUser(roster.Entry{
		UserID: "u1",
		Email:  "Jane.Doe@Example.COM",
		Group:  "ENGINEERING",
		Roles:  []string{mapping.RoleGroupAdmin},
		Status: roster.StatusActive,
	})

	e := New(Options{}, engMapping, []Org{{Name: mapping.PrimaryOrg, Service: svc}})
	res, err := e.Run(context.Background(), []directory.User{
		{Email: "jane.doe@example.com", Groups: []string{"eng"}},
	})

	assert.NoError(t, err)
	assert.Empty(t, svc.updated)
	assert.Equal(t, 1, res.MatchedNoUpdate())
	assert.Empty(t, res.SignOnly())
}

func TestRunInsertsMissingUser(t *testing.T) {
	svc := newFakeService(true)
	svc.addGroup("Engineering")

	e := New(Options{CreateUsers: true}, engMapping, []Org{{Name: mapping.PrimaryOrg, Service: svc}})
	res, err := e.Run(context.Background(), []directory.User{
		{Email: "new@example.com", FirstName: "New", LastName: "Hire", Groups: []string{"eng"}},
	})

	assert.NoError(t, err)
	assert.Len(t, svc.inserted, 1)
	assert.Equal(t, "g-engineering", svc.inserted[0].GroupID)
	assert.Equal(t, []string{mapping.RoleGroupAdmin}, svc.inserted[0].Roles)
	assert.Equal(t, 1, res.Created())
	assert.Equal(t, 0, res.Excluded())
}

func TestRunSkipsMissingUserWhenCreationDisabled(t *testing.T) {
	svc := newFakeService(true)
	svc.addGroup("Engineering")

	e := New(Options{}, engMapping, []Org{{Name: mapping.PrimaryOrg, Service: svc}})
	res, err := e.Run(context.Background(), []directory.User{
		{Email: "new@example.com", Groups: []string{"eng"}},
	})

	assert.NoError(t, err)
	assert.Empty(t, svc.inserted)
	assert.Equal(t, 1, res.Excluded())
}

func TestRunSkipsMissingUserWhenConsoleUnmanaged(t *testing.T) {
	svc := newFakeService(false)
	svc.addGroup("Engineering")

	e := New(Options{CreateUsers: true}, engMapping, []Org{{Name: mapping.PrimaryOrg, Service: svc}})
	res, err := e.Run(context.Background(), []directory.User{
		{Email: "new@example.com", Groups: []string{"eng"}},
	})

	assert.NoError(t, err)
	assert.Empty(t, svc.inserted)
	assert.Equal(t, 1, res.Excluded())
}

func TestRunCreatesMissingGroups(t *testing.T) {
	svc := newFakeService(true)

	e := New(Options{CreateUsers: true}, engMapping, []Org{{Name: mapping.PrimaryOrg, Service: svc}})
	_, err := e.Run(context.Background(), []directory.User{
		{Email: "new@example.com", Groups: []string{"eng"}},
	})

	assert.NoError(t, err)
	assert.Equal(t, []string{"Engineering"}, svc.createdGroups)
	assert.Len(t, svc.inserted, 1)
	assert.Equal(t, "g-engineering", svc.inserted[0].GroupID, "insert must use the freshly created group id")
}

func TestRunCollectsSignOnlyUsers(t *testing.T) {
	svc := newFakeService(true)
	svc.addGroup("Engineering")
	svc.addUser(roster.Entry{UserID: "u9", Email: "gone@example.com", Roles: []string{mapping.RoleNormalUser}, Status: roster.StatusActive})

	e := New(Options{DeactivateUsers: true}, engMapping, []Org{{Name: mapping.PrimaryOrg, Service: svc}})
	res, err := e.Run(context.Background(), nil)

	assert.NoError(t, err)
	assert.Len(t, res.SignOnly(), 1)
	assert.Equal(t, []string{"u9"}, svc.deactivated, "each sign-only user is deactivated exactly once")
	assert.Equal(t, 1, res.Deactivated())
}

func TestRunDeactivationContinuesPastErrors(t *testing.T) {
	svc := newFakeService(true)
	svc.addGroup("Engineering")
	svc.addUser(roster.Entry{UserID: "u1", Email: "a@example.com", Status: roster.StatusActive})
	svc.addUser(roster.Entry{UserID: "u2", Email: "b@example.com", Status: roster.StatusActive})
	svc.failDeactivate["u1"] = true

	e := New(Options{DeactivateUsers: true}, engMapping, []Org{{Name: mapping.PrimaryOrg, Service: svc}})
	res, err := e.Run(context.Background(), nil)

	assert.NoError(t, err)
	assert.Equal(t, []string{"u2"}, svc.deactivated)
	assert.Equal(t, 1, res.Deactivated())
	assert.Len(t, res.SignOnly(), 2)
}

func TestRunRefusesDeactivationOverLimit(t *testing.T) {
	svc := newFakeService(true)
	svc.addGroup("Engineering")
	svc.addUser(roster.Entry{UserID: "u1", Email: "a@example.com", Status: roster.StatusActive})
	svc.addUser(roster.Entry{UserID: "u2", Email: "b@example.com", Status: roster.StatusActive})

	e := New(Options{DeactivateUsers: true, SignOnlyLimit: 1}, engMapping, []Org{{Name: mapping.PrimaryOrg, Service: svc}})
	res, err := e.Run(context.Background(), nil)

	assert.NoError(t, err)
	assert.Empty(t, svc.deactivated)
	assert.Equal(t, 0, res.Deactivated())
	assert.Len(t, res.SignOnly(), 2)
}

func TestRunSkipsInactiveSignOnlyUsers(t *testing.T) {
	svc := newFakeService(true)
	svc.addGroup("Engineering")
	svc.addUser(roster.Entry{UserID: "u1", Email: "a@example.com", Status: roster.StatusInactive})

	e := New(Options{DeactivateUsers: true}, engMapping, []Org{{Name: mapping.PrimaryOrg, Service: svc}})
	res, err := e.Run(context.Background(), nil)

	assert.NoError(t, err)
	assert.Empty(t, svc.deactivated)
	assert.Len(t, res.SignOnly(), 1)
}

func TestRunUpdateFailureDoesNotAbort(t *testing.T) {
	svc := newFakeService(true)
	svc.addGroup("Engineering")
	svc.addUser(roster.Entry{UserID: "u1", Email: "a@example.com", Group: "Marketing", Roles: []string{mapping.RoleNormalUser}, Status: roster.StatusActive})
	svc.addUser(roster.Entry{UserID: "u2", Email: "b@example.com", Group: "Marketing", Roles: []string{mapping.RoleNormalUser}, Status: roster.StatusActive})
	svc.failUpdate["u1"] = true

	e := New(Options{}, engMapping, []Org{{Name: mapping.PrimaryOrg, Service: svc}})
	res, err := e.Run(context.Background(), []directory.User{
		{Email: "a@example.com", Groups: []string{"eng"}},
		{Email: "b@example.com", Groups: []string{"eng"}},
	})

	assert.NoError(t, err)
	assert.Len(t, svc.updated, 1)
	assert.Equal(t, "b@example.com", svc.updated[0].Email)
	assert.Equal(t, 2, res.TotalUpdated())
}

func TestRunGatesUsersByOrg(t *testing.T) {
	primary := newFakeService(true)
	primary.addGroup("Engineering")
	secondary := newFakeService(true)
	secondary.addGroup("IT")

	mappings := []mapping.GroupMapping{
		{DirectoryGroup: "eng", SignGroup: "Engineering", Priority: 1},
		{DirectoryGroup: "it", SignGroup: "IT", Organization: "secondary", Priority: 2},
	}

	e := New(Options{CreateUsers: true}, mappings, []Org{
		{Name: mapping.PrimaryOrg, Service: primary},
		{Name: "secondary", Service: secondary},
	})
	res, err := e.Run(context.Background(), []directory.User{
		{Email: "itops@example.com", Groups: []string{"it"}},
	})

	assert.NoError(t, err)
	assert.Empty(t, primary.inserted, "secondary-org user is invisible to the primary pass")
	assert.Len(t, secondary.inserted, 1)
	assert.Equal(t, 0, res.Excluded(), "gated users are not counted as excluded")
}

func TestRunSkipsOrgOnRosterFailure(t *testing.T) {
	svc := newFakeService(true)
	svc.failUsers = true

	e := New(Options{}, engMapping, []Org{{Name: mapping.PrimaryOrg, Service: svc}})
	res, err := e.Run(context.Background(), []directory.User{
		{Email: "jane@example.com", Groups: []string{"eng"}},
	})

	assert.NoError(t, err, "an unreachable roster must not fail the whole run")
	assert.Equal(t, 0, res.RosterUsersRead)
}

func TestRunDryRunIssuesNoWrites(t *testing.T) {
	svc := newFakeService(true)
	svc.addGroup("Engineering")
	svc.addUser(roster.Entry{UserID: "u1", Email: "jane@example.com", Group: "Marketing", Roles: []string{mapping.RoleNormalUser}, Status: roster.StatusActive})
	svc.addUser(roster.Entry{UserID: "u2", Email: "gone@example.com", Status: roster.StatusActive})

	e := New(Options{DeactivateUsers: true, DryRun: true}, engMapping, []Org{{Name: mapping.PrimaryOrg, Service: svc}})
	res, err := e.Run(context.Background(), []directory.User{
		{Email: "jane@example.com", Groups: []string{"eng"}},
	})

	assert.NoError(t, err)
	assert.Empty(t, svc.updated)
	assert.Empty(t, svc.deactivated)
	assert.Equal(t, 1, res.TotalUpdated(), "classification still happens in a dry run")
	assert.Equal(t, 0, res.Deactivated())
}

func TestRunWithWorkers(t *testing.T) {
	svc := newFakeService(true)
	svc.addGroup("Engineering")
	users := []directory.User{
		{Email: "a@example.com", Groups: []string{"eng"}},
		{Email: "b@example.com", Groups: []string{"eng"}},
		{Email: "c@example.com", Groups: []string{"eng"}},
		{Email: "d@example.com", Groups: []string{"eng"}},
	}

	e := New(Options{CreateUsers: true, Workers: 3}, engMapping, []Org{{Name: mapping.PrimaryOrg, Service: svc}})
	res, err := e.Run(context.Background(), users)

	assert.NoError(t, err)
	assert.Len(t, svc.inserted, 4)
	assert.Equal(t, 4, res.Created())
}

func TestRunIgnoresUsersWithoutEmail(t *testing.T) {
	svc := newFakeService(true)
	svc.addGroup("Engineering")

	e := New(Options{CreateUsers: true}, engMapping, []Org{{Name: mapping.PrimaryOrg, Service: svc}})
	res, err := e.Run(context.Background(), []directory.User{
		{FirstName: "No", LastName: "Email", Groups: []string{"eng"}},
	})

	assert.NoError(t, err)
	assert.Equal(t, 0, res.DirectoryUsersRead)
	assert.Empty(t, svc.inserted)
}
