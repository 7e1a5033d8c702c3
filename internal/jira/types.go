package jira

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// User is one record of GET /rest/api/3/users/search.
type User struct {
	AccountID    string `json:"accountId"`
	AccountType  string `json:"accountType"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
	Active       *bool  `json:"active,omitempty"`
}

// AccountTypeAtlassian marks directly managed (human) accounts.
const AccountTypeAtlassian = "atlassian"

// ProjectPage is the envelope of GET /rest/api/3/project/search.
type ProjectPage struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	IsLast     bool      `json:"isLast"`
	Values     []Project `json:"values"`
}

type Project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// PermissionType partitions the permission key taxonomy.
type PermissionType string

const (
	PermissionGlobal  PermissionType = "GLOBAL"
	PermissionProject PermissionType = "PROJECT"
)

type PermissionDef struct {
	Key         string         `json:"key"`
	Name        string         `json:"name,omitempty"`
	Type        PermissionType `json:"type"`
	Description string         `json:"description,omitempty"`
}

// PermissionsResponse is GET /rest/api/3/permissions.
type PermissionsResponse struct {
	Permissions map[string]PermissionDef `json:"permissions"`
}

func (r *PermissionsResponse) validate() error {
	if r.Permissions == nil {
		return errors.New("missing permissions object")
	}
	return nil
}

type permissionCheckRequest struct {
	AccountID         string   `json:"accountId"`
	GlobalPermissions []string `json:"globalPermissions"`
}

// PermissionCheck is the response of POST /rest/api/3/permissions/check.
type PermissionCheck struct {
	GlobalPermissions GrantSet `json:"globalPermissions"`
}

// Grant reports whether a single permission is held.
type Grant struct {
	HavePermission bool `json:"havePermission"`
}

// GrantSet maps permission keys to grants. It decodes both the keyed object
// form and the bare list of granted keys that Cloud returns.
type GrantSet map[string]Grant

func (g *GrantSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*g = GrantSet{}
		return nil
	}
	switch data[0] {
	case '{':
		m := map[string]Grant{}
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		*g = m
		return nil
	case '[':
		var keys []string
		if err := json.Unmarshal(data, &keys); err != nil {
			return err
		}
		m := make(GrantSet, len(keys))
		for _, k := range keys {
			m[k] = Grant{HavePermission: true}
		}
		*g = m
		return nil
	default:
		return fmt.Errorf("globalPermissions: unexpected token %q", data[0])
	}
}

// PermissionScheme is GET /rest/api/3/project/{id}/permissionscheme.
type PermissionScheme struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RoleDetail is one entry of GET /rest/api/3/project/{id}/roledetails.
type RoleDetail struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ProjectRole is GET /rest/api/3/project/{id}/role/{roleId}.
type ProjectRole struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Actors []Actor `json:"actors"`
}

// Actor is a principal holding a project role: a user or a group.
type Actor struct {
	ID          int64       `json:"id"`
	DisplayName string      `json:"displayName"`
	Type        string      `json:"type"`
	ActorUser   *ActorUser  `json:"actorUser,omitempty"`
	ActorGroup  *ActorGroup `json:"actorGroup,omitempty"`
}

type ActorUser struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName,omitempty"`
	Active      *bool  `json:"active,omitempty"`
}

type ActorGroup struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	GroupID     string `json:"groupId,omitempty"`
}

// Group is one entry of GET /rest/api/3/user/groups.
type Group struct {
	GroupID string `json:"groupId,omitempty"`
	Name    string `json:"name"`
}

// IssueQuery drives GET /rest/api/3/search/jql.
type IssueQuery struct {
	JQL           string
	Fields        []string
	MaxResults    int
	NextPageToken string
}

// IssuePage is one page of the token-paginated issue search.
type IssuePage struct {
	Issues        []Issue `json:"issues"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
	IsLast        bool    `json:"isLast"`
}

func (p *IssuePage) validate() error {
	if p.Issues == nil {
		return errors.New("missing issues array")
	}
	return nil
}

type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

type IssueFields struct {
	Updated                  string   `json:"updated,omitempty"`
	StatusCategoryChangeDate string   `json:"statuscategorychangedate,omitempty"`
	Created                  string   `json:"created,omitempty"`
	Assignee                 *UserRef `json:"assignee,omitempty"`
	Reporter                 *UserRef `json:"reporter,omitempty"`
}

type UserRef struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName,omitempty"`
}

// ActivityFields is the issue projection needed for last-activity derivation.
var ActivityFields = []string{"updated", "statuscategorychangedate", "created", "assignee", "reporter"}
