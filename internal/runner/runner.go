// Package runner orchestrates one permission audit of an organization: it
// drives the scan pipeline, ships each project record to the analytics sink,
// and records when the organization was last scanned.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"permaudit.io/internal/analytics"
	"permaudit.io/internal/audit"
	"permaudit.io/internal/ids"
	"permaudit.io/internal/obs"
	"permaudit.io/internal/scan"
	"permaudit.io/internal/store"
)

var (
	ErrOrgRequired = errors.New("runner: orgId is required")
	ErrNoProjects  = errors.New("no projects supplied")
	ErrCooldown    = errors.New("runner: organization scanned too recently")
)

// CooldownError carries when the next run becomes possible.
type CooldownError struct {
	LastScannedAt time.Time
	RetryAt       time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%v: last scan %s, retry after %s", ErrCooldown,
		e.LastScannedAt.Format(time.RFC3339), e.RetryAt.Format(time.RFC3339))
}

func (e *CooldownError) Unwrap() error { return ErrCooldown }

// Publisher delivers payloads to the analytics sink.
type Publisher interface {
	Send(ctx context.Context, body any) error
}

type Options struct {
	Scan scan.Config
	// RunTimeout bounds a whole run; zero means no deadline.
	RunTimeout time.Duration
	// Cooldown rejects a run while the last scan is younger than this.
	Cooldown time.Duration
}

// Deps are the collaborators of a Runner. Only Jira is required.
type Deps struct {
	Jira      scan.Jira
	Publisher Publisher
	Store     store.KV
	Tracker   *Tracker
	Logger    *zap.Logger
	Now       func() time.Time
}

type Runner struct {
	jira    scan.Jira
	pub     Publisher
	kv      store.KV
	tracker *Tracker
	log     *zap.Logger
	now     func() time.Time
	opts    Options
}

func New(d Deps, opts Options) *Runner {
	r := &Runner{
		jira:    d.Jira,
		pub:     d.Publisher,
		kv:      d.Store,
		tracker: d.Tracker,
		log:     obs.OrNop(d.Logger),
		now:     d.Now,
		opts:    opts,
	}
	if r.tracker == nil {
		r.tracker = NewTracker()
	}
	if r.kv == nil {
		r.kv = store.NewInMemory()
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.opts.Scan = r.opts.Scan.WithDefaults()
	return r
}

func (r *Runner) Tracker() *Tracker { return r.tracker }

// Status reports the latest run of orgID.
func (r *Runner) Status(orgID string) (Status, bool) { return r.tracker.Status(orgID) }

type Request struct {
	OrgID       string   `json:"orgId"`
	ProjectKeys []string `json:"projectKeys,omitempty"`
	// DryRun assembles records without shipping them or recording the scan.
	DryRun bool `json:"dryRun,omitempty"`
}

// Result is the structured outcome of a run. Failures never surface as Go
// errors from Run; they set Success=false and Error.
type Result struct {
	Success         bool                      `json:"success"`
	Error           string                    `json:"error,omitempty"`
	RunID           string                    `json:"runId,omitempty"`
	OrgID           string                    `json:"orgId"`
	ProjectsTotal   int                       `json:"projectsTotal"`
	ProjectsShipped int                       `json:"projectsShipped"`
	ProjectsFailed  int                       `json:"projectsFailed"`
	StartedAt       time.Time                 `json:"startedAt"`
	FinishedAt      time.Time                 `json:"finishedAt"`
	Projects        []scan.ProjectAuditRecord `json:"projects,omitempty"`

	err error
}

// Err returns the cause of a failed run.
func (r Result) Err() error { return r.err }

// Run executes an audit synchronously.
func (r *Runner) Run(ctx context.Context, req Request) Result {
	started := r.now().UTC()
	runID, err := r.prepare(ctx, req)
	if err != nil {
		obs.RunsTotal.WithLabelValues("rejected").Inc()
		return r.failed(Result{OrgID: req.OrgID, StartedAt: started}, err)
	}
	return r.execute(ctx, runID, req)
}

// Start validates req and runs the audit in the background, detached from
// ctx cancellation. It returns the run id.
func (r *Runner) Start(ctx context.Context, req Request) (string, error) {
	runID, err := r.prepare(ctx, req)
	if err != nil {
		obs.RunsTotal.WithLabelValues("rejected").Inc()
		return "", err
	}
	bg := context.WithoutCancel(ctx)
	go r.execute(bg, runID, req)
	return runID, nil
}

// LastScannedAt returns when orgID last completed a run.
func (r *Runner) LastScannedAt(ctx context.Context, orgID string) (time.Time, bool, error) {
	if strings.TrimSpace(orgID) == "" {
		return time.Time{}, false, ErrOrgRequired
	}
	return store.LastScannedAt(ctx, r.kv, orgID)
}

func (r *Runner) prepare(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.OrgID) == "" {
		return "", ErrOrgRequired
	}
	if r.opts.Cooldown > 0 && !req.DryRun {
		last, ok, err := store.LastScannedAt(ctx, r.kv, req.OrgID)
		if err != nil {
			r.log.Warn("read last scan failed", zap.String("org_id", req.OrgID), zap.Error(err))
		} else if ok {
			retry := last.Add(r.opts.Cooldown)
			if r.now().Before(retry) {
				return "", &CooldownError{LastScannedAt: last, RetryAt: retry}
			}
		}
	}
	runID := ids.NewRunID()
	if err := r.tracker.Begin(req.OrgID, runID); err != nil {
		return "", err
	}
	return runID, nil
}

func (r *Runner) execute(ctx context.Context, runID string, req Request) Result {
	res := Result{RunID: runID, OrgID: req.OrgID, StartedAt: r.now().UTC()}
	if r.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RunTimeout)
		defer cancel()
	}
	log := r.log.With(zap.String("run_id", runID), zap.String("org_id", req.OrgID))
	_ = audit.LogEvent(ctx, "audit.run.started", map[string]any{
		"run_id":       runID,
		"org_id":       req.OrgID,
		"project_keys": req.ProjectKeys,
		"dry_run":      req.DryRun,
	})

	sess := scan.NewSession(r.jira, r.opts.Scan, scan.WithLogger(log), scan.WithClock(r.now))

	var (
		users    []scan.User
		projects []scan.Project
		keys     scan.PermissionKeySet
		keysErr  error
	)
	var g errgroup.Group
	g.Go(func() error { users = sess.FetchAllUsers(ctx); return nil })
	g.Go(func() error { projects = sess.FetchAllProjects(ctx); return nil })
	g.Go(func() error { keys, keysErr = sess.FetchPermissionKeys(ctx); return nil })
	_ = g.Wait()
	if keysErr != nil {
		return r.finish(ctx, log, r.failed(res, keysErr))
	}

	dir := sess.SetDirectory(users)
	projects = filterProjects(projects, req.ProjectKeys)
	if len(projects) == 0 {
		return r.finish(ctx, log, r.failed(res, ErrNoProjects))
	}
	res.ProjectsTotal = len(projects)
	r.tracker.SetTotal(req.OrgID, len(projects))
	log.Info("directory fetched",
		zap.Int("users", dir.Len()), zap.Int("projects", len(projects)),
		zap.Int("global_keys", len(keys.Global)), zap.Int("project_keys", len(keys.Project)))

	global := sess.CheckGlobal(ctx, dir.Users(), keys.Global)
	activity := sess.LastActivityForAll(ctx, projects, dir)

	records := make([]scan.ProjectAuditRecord, len(projects))
	index := make(map[string]int, len(projects))
	for i, p := range projects {
		index[p.Key] = i
	}
	errs := sess.AssembleAll(ctx, projects, dir, global, activity, func(ctx context.Context, rec scan.ProjectAuditRecord) error {
		records[index[rec.ProjectKey]] = rec
		defer r.tracker.Advance(req.OrgID)
		if req.DryRun {
			return nil
		}
		return r.ship(ctx, log, req.OrgID, rec)
	})
	for i, err := range errs {
		if err != nil {
			res.ProjectsFailed++
			obs.ProjectsTotal.WithLabelValues("failed").Inc()
			log.Warn("project not delivered", zap.String("project", projects[i].Key), zap.Error(err))
			continue
		}
		if !req.DryRun {
			res.ProjectsShipped++
			obs.ProjectsTotal.WithLabelValues("shipped").Inc()
		}
	}
	res.Projects = records

	if err := ctx.Err(); err != nil {
		return r.finish(ctx, log, r.failed(res, fmt.Errorf("run aborted: %w", err)))
	}
	res.Success = true
	res.FinishedAt = r.now().UTC()
	if !req.DryRun {
		if err := store.SetLastScannedAt(ctx, r.kv, req.OrgID, res.FinishedAt); err != nil {
			log.Warn("persist last scan failed", zap.Error(err))
		}
	}
	return r.finish(ctx, log, res)
}

func (r *Runner) ship(ctx context.Context, log *zap.Logger, orgID string, rec scan.ProjectAuditRecord) error {
	if r.pub == nil {
		return analytics.ErrNotConfigured
	}
	if err := r.pub.Send(ctx, BuildPayload(orgID, rec, r.now())); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "audit.project.shipped", map[string]any{
		"org_id":  orgID,
		"project": rec.ProjectKey,
		"roles":   len(rec.PermissionScheme.Roles),
	})
	log.Debug("project shipped", zap.String("project", rec.ProjectKey))
	return nil
}

func (r *Runner) failed(res Result, err error) Result {
	res.Success = false
	res.Error = err.Error()
	res.err = err
	if res.FinishedAt.IsZero() {
		res.FinishedAt = r.now().UTC()
	}
	return res
}

func (r *Runner) finish(ctx context.Context, log *zap.Logger, res Result) Result {
	outcome := "succeeded"
	event := "audit.run.completed"
	msg := fmt.Sprintf("completed %s", progressMessage(res.ProjectsTotal-res.ProjectsFailed, res.ProjectsTotal))
	if !res.Success {
		outcome, event, msg = "failed", "audit.run.failed", res.Error
	}
	obs.RunsTotal.WithLabelValues(outcome).Inc()
	obs.RunDuration.Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	r.tracker.Finish(res.OrgID, res.Success, msg)
	_ = audit.LogEvent(ctx, event, map[string]any{
		"run_id":           res.RunID,
		"org_id":           res.OrgID,
		"projects_total":   res.ProjectsTotal,
		"projects_shipped": res.ProjectsShipped,
		"projects_failed":  res.ProjectsFailed,
		"error":            res.Error,
	})
	if res.Success {
		log.Info("audit run finished", zap.Int("shipped", res.ProjectsShipped), zap.Int("failed", res.ProjectsFailed))
	} else {
		log.Error("audit run failed", zap.String("error", res.Error))
	}
	return res
}

func filterProjects(projects []scan.Project, keys []string) []scan.Project {
	if len(keys) == 0 {
		return projects
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k = strings.ToUpper(strings.TrimSpace(k)); k != "" {
			want[k] = true
		}
	}
	out := make([]scan.Project, 0, len(keys))
	for _, p := range projects {
		if want[strings.ToUpper(p.Key)] {
			out = append(out, p)
		}
	}
	return out
}
