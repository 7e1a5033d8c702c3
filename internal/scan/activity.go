package scan

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"permaudit.io/internal/jira"
)

const dateLayout = "2006-01-02"

var timestampLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
	time.RFC3339,
	dateLayout,
}

// parseTimestamp accepts Jira's offset format, RFC 3339 and bare dates.
func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// issueTimestamp picks updated, then the status category change, then
// created. An unparseable pick is no signal.
func issueTimestamp(f jira.IssueFields) (time.Time, bool) {
	raw := f.Updated
	if raw == "" {
		raw = f.StatusCategoryChangeDate
	}
	if raw == "" {
		raw = f.Created
	}
	return parseTimestamp(raw)
}

func projectJQL(key string) string {
	return `project = "` + strings.ReplaceAll(key, `"`, `\"`) + `" ORDER BY created ASC`
}

// fetchAllIssues walks the token-paginated search. A failing page ends the
// walk with what was collected.
func (s *Session) fetchAllIssues(ctx context.Context, projectKey string) []jira.Issue {
	var issues []jira.Issue
	query := jira.IssueQuery{
		JQL:        projectJQL(projectKey),
		Fields:     jira.ActivityFields,
		MaxResults: s.cfg.IssuesPageSize,
	}
	for {
		page, err := s.jira.SearchIssues(ctx, query)
		if err != nil {
			s.degraded("issues", "issue search stopped early",
				zap.String("project", projectKey), zap.Int("fetched", len(issues)), zap.Error(err))
			return issues
		}
		issues = append(issues, page.Issues...)
		if page.IsLast || page.NextPageToken == "" || len(page.Issues) == 0 || page.NextPageToken == query.NextPageToken {
			return issues
		}
		query.NextPageToken = page.NextPageToken
	}
}

// LastActivityFor reduces a project's issues to the latest touch per
// directory user, as assignee or reporter. Entries follow first appearance.
func (s *Session) LastActivityFor(ctx context.Context, project Project, dir *Directory) ProjectActivity {
	type seen struct {
		user   User
		latest time.Time
		ok     bool
	}
	var order []string
	byID := map[string]*seen{}

	for _, issue := range s.fetchAllIssues(ctx, project.Key) {
		ts, tsOK := issueTimestamp(issue.Fields)
		for _, ref := range []*jira.UserRef{issue.Fields.Assignee, issue.Fields.Reporter} {
			if ref == nil || ref.AccountID == "" {
				continue
			}
			u, known := dir.Lookup(ref.AccountID)
			if !known {
				continue
			}
			entry, ok := byID[u.AccountID]
			if !ok {
				entry = &seen{user: u}
				byID[u.AccountID] = entry
				order = append(order, u.AccountID)
			}
			if tsOK && (!entry.ok || ts.After(entry.latest)) {
				entry.latest, entry.ok = ts, true
			}
		}
	}

	users := make([]LastActivityEntry, 0, len(order))
	for _, id := range order {
		e := byID[id]
		out := LastActivityEntry{AccountID: id, DisplayName: e.user.DisplayName}
		if e.ok {
			day := e.latest.UTC().Format(dateLayout)
			out.LastActivityDate = &day
		}
		users = append(users, out)
	}
	return ProjectActivity{ProjectKey: project.Key, ProjectName: project.Name, Users: users}
}
