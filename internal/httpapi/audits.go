package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"permaudit.io/internal/analytics"
	"permaudit.io/internal/audit"
	"permaudit.io/internal/auth"
	"permaudit.io/internal/runner"
)

type startAuditRequest struct {
	OrgID       string   `json:"orgId"`
	ProjectKeys []string `json:"projectKeys"`
	DryRun      bool     `json:"dryRun"`
}

type startAuditResponse struct {
	RunID  string       `json:"runId"`
	Status runner.State `json:"status"`
}

type lastScanResponse struct {
	OrgID         string `json:"orgId"`
	LastScannedAt *int64 `json:"lastScannedAt"`
}

type queryRequest struct {
	Query  string `json:"query"`
	Locale string `json:"locale"`
	OrgID  string `json:"orgId"`
}

// StartAudit launches an asynchronous run for the caller's organization.
func (a *API) StartAudit(w http.ResponseWriter, r *http.Request) {
	if a.auditor == nil {
		respondError(w, http.StatusServiceUnavailable, "auditor not configured")
		return
	}
	var in startAuditRequest
	if err := decodeBody(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	orgID, ok := a.resolveOrg(w, r, in.OrgID)
	if !ok {
		return
	}

	runID, err := a.auditor.Start(r.Context(), runner.Request{
		OrgID:       orgID,
		ProjectKeys: in.ProjectKeys,
		DryRun:      in.DryRun,
	})
	if err != nil {
		var cd *runner.CooldownError
		switch {
		case errors.As(err, &cd):
			secs := int(time.Until(cd.RetryAt).Seconds()) + 1
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			respondError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, runner.ErrRunInProgress):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, runner.ErrOrgRequired):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			a.log.Error("start audit failed", zap.String("org_id", orgID), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "could not start audit")
		}
		return
	}
	_ = audit.LogEvent(r.Context(), "audit.run.requested", map[string]any{
		"run_id":       runID,
		"org_id":       orgID,
		"project_keys": in.ProjectKeys,
		"dry_run":      in.DryRun,
	})
	writeJSON(w, http.StatusAccepted, startAuditResponse{RunID: runID, Status: runner.StateRunning})
}

// AuditStatus reports progress of the organization's latest run.
func (a *API) AuditStatus(w http.ResponseWriter, r *http.Request) {
	if a.auditor == nil {
		respondError(w, http.StatusServiceUnavailable, "auditor not configured")
		return
	}
	orgID, ok := a.resolveOrg(w, r, r.URL.Query().Get("orgId"))
	if !ok {
		return
	}
	st, found := a.auditor.Status(orgID)
	if !found {
		respondError(w, http.StatusNotFound, "no audit run for organization")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// LastScan returns the completion time of the last successful run.
func (a *API) LastScan(w http.ResponseWriter, r *http.Request) {
	if a.auditor == nil {
		respondError(w, http.StatusServiceUnavailable, "auditor not configured")
		return
	}
	orgID, ok := a.resolveOrg(w, r, r.URL.Query().Get("orgId"))
	if !ok {
		return
	}
	at, found, err := a.auditor.LastScannedAt(r.Context(), orgID)
	if err != nil {
		a.log.Error("read last scan failed", zap.String("org_id", orgID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "could not read last scan")
		return
	}
	out := lastScanResponse{OrgID: orgID}
	if found {
		ms := at.UnixMilli()
		out.LastScannedAt = &ms
	}
	writeJSON(w, http.StatusOK, out)
}

// Query forwards a question about the shipped audit data.
func (a *API) Query(w http.ResponseWriter, r *http.Request) {
	if a.querier == nil {
		respondError(w, http.StatusServiceUnavailable, "analytics not configured")
		return
	}
	var in queryRequest
	if err := decodeBody(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(in.Query) == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	orgID, ok := a.resolveOrg(w, r, in.OrgID)
	if !ok {
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())

	resp, err := a.querier.Query(r.Context(), analytics.QueryRequest{
		Query:  in.Query,
		Event:  analytics.EventPermissionAudit,
		OrgID:  orgID,
		Locale: in.Locale,
		UserID: userID,
	})
	if err != nil {
		a.log.Warn("analytics query failed", zap.String("org_id", orgID), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, analytics.QueryResponse{Success: false, Error: "analytics backend unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) resolveOrg(w http.ResponseWriter, r *http.Request, fallback string) (string, bool) {
	orgID, err := a.orgFor(r, fallback)
	switch {
	case errors.Is(err, errForeignOrg):
		respondError(w, http.StatusForbidden, err.Error())
		return "", false
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return orgID, true
}
