package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

// AuditEvents streams run progress of the caller's organization as
// Server-Sent Events until the client disconnects.
func (a *API) AuditEvents(w http.ResponseWriter, r *http.Request) {
	if a.events == nil {
		respondError(w, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	orgID, ok := a.resolveOrg(w, r, r.URL.Query().Get("orgId"))
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := a.events.Subscribe(r.Context())

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	if err := rc.Flush(); err != nil {
		return
	}
	if a.auditor != nil {
		if st, found := a.auditor.Status(orgID); found {
			writeEvent(w, rc, st)
		}
	}

	for st := range ch {
		if st.OrgID != orgID {
			continue
		}
		if err := writeEvent(w, rc, st); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	_, _ = w.Write([]byte("event: progress\ndata: "))
	_, _ = w.Write(payload)
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return rc.Flush()
}
