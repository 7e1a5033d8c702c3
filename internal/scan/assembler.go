package scan

import (
	"context"
	"sort"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"permaudit.io/internal/jira"
	"permaudit.io/internal/obs"
)

// NameNotFound stands in for a member no source could name.
const NameNotFound = "NAME NOT FOUND"

// BuildProjectRecord assembles the permission scheme, role membership and
// global permission view of one project. Lookup failures degrade the record
// and never fail it.
func (s *Session) BuildProjectRecord(ctx context.Context, project Project, dir *Directory, global []GlobalPermissionResult, lastLoginResults []ProjectActivity) ProjectAuditRecord {
	ref := project.ID
	if ref == "" {
		ref = project.Key
	}

	var (
		scheme    jira.PermissionScheme
		schemeErr error
		defs      []jira.RoleDetail
		defsErr   error
	)
	var g errgroup.Group
	g.Go(func() error {
		scheme, schemeErr = s.jira.ProjectPermissionScheme(ctx, ref)
		return nil
	})
	g.Go(func() error {
		defs, defsErr = s.jira.ProjectRoleDetails(ctx, ref)
		return nil
	})
	_ = g.Wait()

	ps := PermissionScheme{Roles: []RoleEntry{}}
	if schemeErr != nil {
		s.degraded("scheme", "permission scheme lookup failed", zap.String("project", project.Key), zap.Error(schemeErr))
	} else {
		if scheme.ID != 0 {
			id := scheme.ID
			ps.SchemeID = &id
		}
		if scheme.Name != "" {
			name := scheme.Name
			ps.SchemeName = &name
		}
	}
	if defsErr != nil {
		s.degraded("roles", "role definitions lookup failed", zap.String("project", project.Key), zap.Error(defsErr))
		defs = nil
	}

	if global == nil {
		global = []GlobalPermissionResult{}
	}
	lastLogin := BuildLastLoginMap(lastLoginResults)
	grants := grantedKeys(global)

	roles := make([]RoleDefinition, 0, len(defs))
	for _, d := range defs {
		roles = append(roles, RoleDefinition{ID: strconv.FormatInt(d.ID, 10), Name: d.Name})
	}
	outcomes := settle(ctx, roles, s.cfg.RolesConcurrency, func(ctx context.Context, role RoleDefinition) (RoleEntry, error) {
		return s.buildRole(ctx, ref, role, dir, lastLogin, grants)
	})
	for i, o := range outcomes {
		if o.Err != nil {
			s.degraded("role_members", "role dropped",
				zap.String("project", project.Key), zap.String("role", roles[i].Name), zap.Error(o.Err))
			continue
		}
		ps.Roles = append(ps.Roles, o.Value)
	}

	return ProjectAuditRecord{
		ProjectID:         project.ID,
		ProjectKey:        project.Key,
		ProjectName:       project.Name,
		PermissionScheme:  ps,
		GlobalPermissions: global,
	}
}

func (s *Session) buildRole(ctx context.Context, projectRef string, role RoleDefinition, dir *Directory, lastLogin map[string]string, grants map[string][]string) (RoleEntry, error) {
	members, err := s.jira.ProjectRole(ctx, projectRef, role.ID)
	if err != nil {
		return RoleEntry{}, err
	}
	expanded := settle(ctx, members.Actors, s.cfg.MembersConcurrency, func(ctx context.Context, a jira.Actor) (*EnrichedUser, error) {
		return s.expand(ctx, a, dir, lastLogin, role.Name, grants), nil
	})
	entry := RoleEntry{Role: role.Name, Users: []EnrichedUser{}}
	for i, o := range expanded {
		if o.Err != nil {
			id := ""
			if u := members.Actors[i].ActorUser; u != nil {
				id = u.AccountID
			}
			s.degraded("role_member", "member dropped",
				zap.String("project", projectRef), zap.String("role", role.Name),
				zap.String("account_id", id), zap.Error(o.Err))
			continue
		}
		if o.Value != nil {
			entry.Users = append(entry.Users, *o.Value)
		}
	}
	return entry, nil
}

// ExpandActor resolves a role actor into a scored member entry. It returns
// nil for actors without an embedded account, such as groups.
func (s *Session) ExpandActor(ctx context.Context, actor jira.Actor, dir *Directory, lastLogin map[string]string, roleName string) *EnrichedUser {
	return s.expand(ctx, actor, dir, lastLogin, roleName, nil)
}

func (s *Session) expand(ctx context.Context, actor jira.Actor, dir *Directory, lastLogin map[string]string, roleName string, grants map[string][]string) *EnrichedUser {
	if actor.ActorUser == nil || actor.ActorUser.AccountID == "" {
		return nil
	}
	accountID := actor.ActorUser.AccountID
	known, inDirectory := dir.Lookup(accountID)

	displayName := NameNotFound
	switch {
	case inDirectory && known.DisplayName != "":
		displayName = known.DisplayName
	case actor.ActorUser.DisplayName != "":
		displayName = actor.ActorUser.DisplayName
	case actor.DisplayName != "":
		displayName = actor.DisplayName
	}

	active := true
	switch {
	case inDirectory:
		active = known.Active
	case actor.ActorUser.Active != nil:
		active = *actor.ActorUser.Active
	}

	var last *string
	if v, ok := lastLogin[accountID]; ok && v != "" {
		last = &v
	}

	groups := s.GroupsFor(ctx, accountID)
	risk := s.Classifier().Classify(RiskSubject{
		LastLogin:   last,
		Active:      active,
		GlobalRoles: grants[accountID],
	}, roleName)
	obs.RiskLevelsTotal.WithLabelValues(string(risk)).Inc()

	return &EnrichedUser{
		AccountID:   accountID,
		DisplayName: displayName,
		LastLogin:   last,
		RiskLevel:   risk,
		Groups:      groups,
		Active:      active,
	}
}

// grantedKeys indexes, per account, the global permissions it holds.
func grantedKeys(global []GlobalPermissionResult) map[string][]string {
	out := make(map[string][]string, len(global))
	for _, g := range global {
		var keys []string
		for k, grant := range g.Permissions {
			if grant.HavePermission {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		out[g.User.AccountID] = keys
	}
	return out
}
