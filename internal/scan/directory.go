package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"permaudit.io/internal/jira"
)

// ErrPermissionKeys is returned when the permission taxonomy cannot be read.
// It is fatal to a run.
var ErrPermissionKeys = errors.New("scan: fetch permission keys")

// FetchAllUsers pages through the user directory. A short or empty page ends
// the walk; any error ends it too and the accumulated users are returned.
func (s *Session) FetchAllUsers(ctx context.Context) []User {
	size := s.cfg.UsersPageSize
	var users []User
	for startAt := 0; ; startAt += size {
		page, err := s.jira.SearchUsers(ctx, startAt, size)
		if err != nil {
			s.degraded("users", "user search stopped early",
				zap.Int("start_at", startAt), zap.Int("fetched", len(users)), zap.Error(err))
			break
		}
		for _, u := range page {
			if mapped, ok := userFromJira(u); ok {
				users = append(users, mapped)
			}
		}
		if len(page) < size {
			break
		}
	}
	return users
}

func userFromJira(u jira.User) (User, bool) {
	if u.AccountType != jira.AccountTypeAtlassian || u.AccountID == "" || u.DisplayName == "" {
		return User{}, false
	}
	active := true
	if u.Active != nil {
		active = *u.Active
	}
	return User{
		AccountID:    u.AccountID,
		DisplayName:  u.DisplayName,
		Active:       active,
		EmailAddress: u.EmailAddress,
	}, true
}

// FetchAllProjects pages through project search with the same termination
// rules as FetchAllUsers.
func (s *Session) FetchAllProjects(ctx context.Context) []Project {
	size := s.cfg.ProjectsPageSize
	var projects []Project
	for startAt := 0; ; startAt += size {
		page, err := s.jira.SearchProjects(ctx, startAt, size)
		if err != nil {
			s.degraded("projects", "project search stopped early",
				zap.Int("start_at", startAt), zap.Int("fetched", len(projects)), zap.Error(err))
			break
		}
		for _, p := range page.Values {
			if p.Key == "" && p.ID == "" {
				continue
			}
			projects = append(projects, Project{ID: p.ID, Key: p.Key, Name: p.Name})
		}
		if len(page.Values) < size || page.IsLast {
			break
		}
	}
	return projects
}

// FetchPermissionKeys reads the permission taxonomy and splits it by type.
func (s *Session) FetchPermissionKeys(ctx context.Context) (PermissionKeySet, error) {
	defs, err := s.jira.Permissions(ctx)
	if err != nil {
		return PermissionKeySet{}, fmt.Errorf("%w: %w", ErrPermissionKeys, err)
	}
	keys := PermissionKeySet{Global: []string{}, Project: []string{}}
	for mapKey, def := range defs {
		key := def.Key
		if key == "" {
			key = mapKey
		}
		switch def.Type {
		case jira.PermissionGlobal:
			keys.Global = append(keys.Global, key)
		case jira.PermissionProject:
			keys.Project = append(keys.Project, key)
		}
	}
	sort.Strings(keys.Global)
	sort.Strings(keys.Project)
	return keys, nil
}
