package runner

import (
	"time"

	"permaudit.io/internal/analytics"
	"permaudit.io/internal/scan"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Payload is the body posted to the analytics sink, one project per payload.
type Payload struct {
	Event     string                    `json:"event"`
	OrgID     string                    `json:"orgId"`
	Data      []scan.ProjectAuditRecord `json:"data"`
	Timestamp string                    `json:"timestamp"`
}

func BuildPayload(orgID string, record scan.ProjectAuditRecord, now time.Time) Payload {
	return Payload{
		Event:     analytics.EventPermissionAudit,
		OrgID:     orgID,
		Data:      []scan.ProjectAuditRecord{record},
		Timestamp: now.UTC().Format(timestampLayout),
	}
}
