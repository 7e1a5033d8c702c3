package scan

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"permaudit.io/internal/jira"
)

var errUpstream = errors.New("upstream unavailable")

// fakeJira serves canned responses and records the calls it receives.
type fakeJira struct {
	mu sync.Mutex

	userPages    [][]jira.User
	userErrAt    int // page index that fails; -1 for none
	projectPages [][]jira.Project
	permissions  map[string]jira.PermissionDef
	permErr      error
	checks       map[string]jira.GrantSet
	checkErr     map[string]bool
	schemes      map[string]jira.PermissionScheme
	schemeErr    bool
	roleDefs     map[string][]jira.RoleDetail
	roleDefsErr  bool
	roles        map[string]jira.ProjectRole // key: project/roleID
	roleErr      map[string]bool
	groups       map[string][]jira.Group
	groupErr     map[string]bool
	issuePages   map[string][]jira.IssuePage // key: JQL
	issueErrAt   int

	userCalls   []int
	issueCalls  []jira.IssueQuery
	groupCalls  map[string]int
	checkCalls  int
	inFlight    int
	maxInFlight int
	panicOnRole string
	panicGroups string // accountId whose group lookup panics
}

func newFakeJira() *fakeJira {
	return &fakeJira{
		userErrAt:  -1,
		issueErrAt: -1,
		checks:     map[string]jira.GrantSet{},
		checkErr:   map[string]bool{},
		schemes:    map[string]jira.PermissionScheme{},
		roleDefs:   map[string][]jira.RoleDetail{},
		roles:      map[string]jira.ProjectRole{},
		roleErr:    map[string]bool{},
		groups:     map[string][]jira.Group{},
		groupErr:   map[string]bool{},
		issuePages: map[string][]jira.IssuePage{},
		groupCalls: map[string]int{},
	}
}

func (f *fakeJira) SearchUsers(_ context.Context, startAt, maxResults int) ([]jira.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls = append(f.userCalls, startAt)
	idx := startAt / maxResults
	if idx == f.userErrAt {
		return nil, errUpstream
	}
	if idx >= len(f.userPages) {
		return []jira.User{}, nil
	}
	return f.userPages[idx], nil
}

func (f *fakeJira) SearchProjects(_ context.Context, startAt, maxResults int) (jira.ProjectPage, error) {
	idx := startAt / maxResults
	if idx >= len(f.projectPages) {
		return jira.ProjectPage{Values: []jira.Project{}, IsLast: true}, nil
	}
	return jira.ProjectPage{StartAt: startAt, MaxResults: maxResults, Values: f.projectPages[idx]}, nil
}

func (f *fakeJira) Permissions(context.Context) (map[string]jira.PermissionDef, error) {
	if f.permErr != nil {
		return nil, f.permErr
	}
	return f.permissions, nil
}

func (f *fakeJira) CheckGlobalPermissions(_ context.Context, accountID string, _ []string) (jira.PermissionCheck, error) {
	f.mu.Lock()
	f.checkCalls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	fail := f.checkErr[accountID]
	grants := f.checks[accountID]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	if fail {
		return jira.PermissionCheck{}, errUpstream
	}
	return jira.PermissionCheck{GlobalPermissions: grants}, nil
}

func (f *fakeJira) ProjectPermissionScheme(_ context.Context, project string) (jira.PermissionScheme, error) {
	if f.schemeErr {
		return jira.PermissionScheme{}, errUpstream
	}
	return f.schemes[project], nil
}

func (f *fakeJira) ProjectRoleDetails(_ context.Context, project string) ([]jira.RoleDetail, error) {
	if f.roleDefsErr {
		return nil, errUpstream
	}
	return f.roleDefs[project], nil
}

func (f *fakeJira) ProjectRole(_ context.Context, project, roleID string) (jira.ProjectRole, error) {
	key := project + "/" + roleID
	if f.panicOnRole == key {
		panic("boom")
	}
	if f.roleErr[key] {
		return jira.ProjectRole{}, errUpstream
	}
	return f.roles[key], nil
}

func (f *fakeJira) UserGroups(_ context.Context, accountID string) ([]jira.Group, error) {
	f.mu.Lock()
	f.groupCalls[accountID]++
	f.mu.Unlock()
	if f.panicGroups == accountID {
		panic("groups boom")
	}
	if f.groupErr[accountID] {
		return nil, errUpstream
	}
	return f.groups[accountID], nil
}

func (f *fakeJira) SearchIssues(_ context.Context, q jira.IssueQuery) (jira.IssuePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issueCalls = append(f.issueCalls, q)
	pages := f.issuePages[q.JQL]
	idx := 0
	if q.NextPageToken != "" {
		idx = len(pages)
		for i := 1; i < len(pages); i++ {
			if pages[i-1].NextPageToken == q.NextPageToken {
				idx = i
				break
			}
		}
	}
	if idx == f.issueErrAt {
		return jira.IssuePage{}, errUpstream
	}
	if idx >= len(pages) {
		return jira.IssuePage{Issues: []jira.Issue{}, IsLast: true}, nil
	}
	return pages[idx], nil
}

func user(id, name string, active *bool) jira.User {
	return jira.User{AccountID: id, AccountType: jira.AccountTypeAtlassian, DisplayName: name, Active: active}
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func userActor(id string) jira.Actor {
	return jira.Actor{Type: "atlassian-user-role-actor", ActorUser: &jira.ActorUser{AccountID: id}}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
