// Package scan turns raw Jira REST responses into per-project permission
// audit records: directory fetch, group and activity enrichment, risk
// scoring and record assembly under bounded fan-out.
package scan

import (
	"context"
	"time"

	"go.uber.org/zap"

	"permaudit.io/internal/jira"
	"permaudit.io/internal/obs"
)

// Jira is the subset of the REST client the pipeline reads from.
type Jira interface {
	SearchUsers(ctx context.Context, startAt, maxResults int) ([]jira.User, error)
	SearchProjects(ctx context.Context, startAt, maxResults int) (jira.ProjectPage, error)
	Permissions(ctx context.Context) (map[string]jira.PermissionDef, error)
	CheckGlobalPermissions(ctx context.Context, accountID string, keys []string) (jira.PermissionCheck, error)
	ProjectPermissionScheme(ctx context.Context, projectKeyOrID string) (jira.PermissionScheme, error)
	ProjectRoleDetails(ctx context.Context, projectKeyOrID string) ([]jira.RoleDetail, error)
	ProjectRole(ctx context.Context, projectKeyOrID, roleID string) (jira.ProjectRole, error)
	UserGroups(ctx context.Context, accountID string) ([]jira.Group, error)
	SearchIssues(ctx context.Context, query jira.IssueQuery) (jira.IssuePage, error)
}

// Config holds the tuned page and window sizes plus the role names the
// classifier keys on.
type Config struct {
	UsersPageSize       int
	ProjectsPageSize    int
	IssuesPageSize      int
	ProjectsConcurrency int
	RolesConcurrency    int
	MembersConcurrency  int
	UserChecksBatchSize int

	AdminRole  string
	MemberRole string
	ViewerRole string
}

func DefaultConfig() Config {
	return Config{
		UsersPageSize:       100,
		ProjectsPageSize:    50,
		IssuesPageSize:      100,
		ProjectsConcurrency: 4,
		RolesConcurrency:    6,
		MembersConcurrency:  10,
		UserChecksBatchSize: 10,
		AdminRole:           "Administrator",
		MemberRole:          "Member",
		ViewerRole:          "Viewer",
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	setInt := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	setStr := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	setInt(&c.UsersPageSize, d.UsersPageSize)
	setInt(&c.ProjectsPageSize, d.ProjectsPageSize)
	setInt(&c.IssuesPageSize, d.IssuesPageSize)
	setInt(&c.ProjectsConcurrency, d.ProjectsConcurrency)
	setInt(&c.RolesConcurrency, d.RolesConcurrency)
	setInt(&c.MembersConcurrency, d.MembersConcurrency)
	setInt(&c.UserChecksBatchSize, d.UserChecksBatchSize)
	setStr(&c.AdminRole, d.AdminRole)
	setStr(&c.MemberRole, d.MemberRole)
	setStr(&c.ViewerRole, d.ViewerRole)
	return c
}

// Session is the state of a single audit run. It owns the group cache and
// the user directory; create one per run and drop it afterwards.
type Session struct {
	jira   Jira
	cfg    Config
	log    *zap.Logger
	now    func() time.Time
	groups *GroupCache
	dir    *Directory
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = obs.OrNop(l) }
}

// WithClock overrides the time source used for risk scoring.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSession(j Jira, cfg Config, opts ...Option) *Session {
	s := &Session{
		jira:   j,
		cfg:    cfg.WithDefaults(),
		log:    obs.Logger(),
		now:    time.Now,
		groups: NewGroupCache(),
		dir:    NewDirectory(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Config() Config { return s.cfg }

// Groups exposes the run's group cache.
func (s *Session) Groups() *GroupCache { return s.groups }

// Directory returns the index installed by SetDirectory.
func (s *Session) Directory() *Directory { return s.dir }

// SetDirectory installs the user index. Call it before any fan-out.
func (s *Session) SetDirectory(users []User) *Directory {
	s.dir = NewDirectory(users)
	return s.dir
}

// Classifier returns the risk classifier bound to this session's clock and role names.
func (s *Session) Classifier() Classifier {
	return Classifier{
		AdminRole:  s.cfg.AdminRole,
		MemberRole: s.cfg.MemberRole,
		ViewerRole: s.cfg.ViewerRole,
		Now:        s.now,
	}
}

func (s *Session) degraded(stage string, msg string, fields ...zap.Field) {
	obs.DegradedTotal.WithLabelValues(stage).Inc()
	s.log.Warn(msg, append(fields, zap.String("stage", stage))...)
}
