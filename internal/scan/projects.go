package scan

import (
	"context"

	"go.uber.org/zap"
)

// LastActivityForAll derives activity for every project in windows of
// ProjectsConcurrency. A project whose walk fails contributes no result.
func (s *Session) LastActivityForAll(ctx context.Context, projects []Project, dir *Directory) []ProjectActivity {
	outcomes := settle(ctx, projects, s.cfg.ProjectsConcurrency, func(ctx context.Context, p Project) (ProjectActivity, error) {
		return s.LastActivityFor(ctx, p, dir), nil
	})
	results := make([]ProjectActivity, 0, len(projects))
	for i, o := range outcomes {
		if o.Err != nil {
			s.degraded("activity", "project activity skipped", zap.String("project", projects[i].Key), zap.Error(o.Err))
			continue
		}
		results = append(results, o.Value)
	}
	return results
}

// AssembleAll builds every project record in windows of ProjectsConcurrency
// and hands each one to emit as soon as it is ready. The returned slice holds
// one entry per project: nil, or the error that kept it from being emitted.
func (s *Session) AssembleAll(ctx context.Context, projects []Project, dir *Directory, global []GlobalPermissionResult, activity []ProjectActivity, emit func(context.Context, ProjectAuditRecord) error) []error {
	outcomes := settle(ctx, projects, s.cfg.ProjectsConcurrency, func(ctx context.Context, p Project) (struct{}, error) {
		return struct{}{}, emit(ctx, s.BuildProjectRecord(ctx, p, dir, global, activity))
	})
	errs := make([]error, len(projects))
	for i, o := range outcomes {
		errs[i] = o.Err
	}
	return errs
}
