package scan

import "permaudit.io/internal/jira"

// RiskLevel is the heuristic access-risk tier of a role entry.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// User is a directly managed account from the directory fetch.
type User struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	Active       bool   `json:"active"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

type Project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// PermissionKeySet partitions the permission taxonomy. Both buckets are sorted.
type PermissionKeySet struct {
	Global  []string `json:"global"`
	Project []string `json:"project"`
}

type RoleDefinition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EnrichedUser is one member of a role in the assembled record.
type EnrichedUser struct {
	AccountID   string    `json:"accountId"`
	DisplayName string    `json:"displayName"`
	LastLogin   *string   `json:"lastLogin"`
	RiskLevel   RiskLevel `json:"riskLevel"`
	Groups      []string  `json:"groups"`
	Active      bool      `json:"active"`
}

type RoleEntry struct {
	Role  string         `json:"role"`
	Users []EnrichedUser `json:"users"`
}

// PermissionScheme carries null id and name when the scheme lookup failed.
type PermissionScheme struct {
	SchemeID   *int64      `json:"schemeId"`
	SchemeName *string     `json:"schemeName"`
	Roles      []RoleEntry `json:"roles"`
}

// ProjectAuditRecord is the unit shipped to the analytics sink.
type ProjectAuditRecord struct {
	ProjectID         string                   `json:"projectId"`
	ProjectKey        string                   `json:"projectKey"`
	ProjectName       string                   `json:"projectName"`
	PermissionScheme  PermissionScheme         `json:"permissionScheme"`
	GlobalPermissions []GlobalPermissionResult `json:"globalPermissions"`
}

// LastActivityEntry is a user's most recent issue touch within one project.
type LastActivityEntry struct {
	AccountID        string  `json:"accountId"`
	DisplayName      string  `json:"displayName"`
	LastActivityDate *string `json:"lastActivityDate"`
}

type ProjectActivity struct {
	ProjectKey  string              `json:"projectKey"`
	ProjectName string              `json:"projectName"`
	Users       []LastActivityEntry `json:"users"`
}

type UserRef struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
}

// GlobalPermissionResult is the capability check outcome for one user.
type GlobalPermissionResult struct {
	User        UserRef       `json:"user"`
	Permissions jira.GrantSet `json:"permissions"`
}

// Directory is the accountId index of the user directory. It is filled once
// before any fan-out and only read afterwards.
type Directory struct {
	users []User
	byID  map[string]User
}

// NewDirectory indexes users; a later duplicate accountId replaces an earlier one.
func NewDirectory(users []User) *Directory {
	d := &Directory{
		users: make([]User, 0, len(users)),
		byID:  make(map[string]User, len(users)),
	}
	for _, u := range users {
		if _, dup := d.byID[u.AccountID]; !dup {
			d.users = append(d.users, u)
		}
		d.byID[u.AccountID] = u
	}
	for i, u := range d.users {
		d.users[i] = d.byID[u.AccountID]
	}
	return d
}

func (d *Directory) Lookup(accountID string) (User, bool) {
	if d == nil {
		return User{}, false
	}
	u, ok := d.byID[accountID]
	return u, ok
}

// Users returns the directory in fetch order.
func (d *Directory) Users() []User {
	if d == nil {
		return nil
	}
	return d.users
}

func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.users)
}
