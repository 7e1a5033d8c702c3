package runner

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRunInProgress rejects a second concurrent run for the same organization.
var ErrRunInProgress = errors.New("runner: audit already running for organization")

type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Status is the progress of an organization's latest run.
type Status struct {
	RunID      string     `json:"runId"`
	OrgID      string     `json:"orgId"`
	State      State      `json:"state"`
	Current    int        `json:"current"`
	Total      int        `json:"total"`
	Message    string     `json:"message"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Tracker keeps per-organization run status in memory. Change
// notifications are delivered one at a time, in the order the changes
// were applied.
type Tracker struct {
	mu     sync.Mutex
	runs   map[string]*Status
	now    func() time.Time
	notify func(Status)

	// sendMu is taken while mu is held, never the other way round.
	sendMu sync.Mutex
}

func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string]*Status), now: time.Now}
}

// OnChange registers fn to receive a copy of every status change.
func (t *Tracker) OnChange(fn func(Status)) {
	t.mu.Lock()
	t.notify = fn
	t.mu.Unlock()
}

// Begin registers a run, failing when one is still running for orgID.
func (t *Tracker) Begin(orgID, runID string) error {
	t.mu.Lock()
	if cur, ok := t.runs[orgID]; ok && cur.State == StateRunning {
		t.mu.Unlock()
		return ErrRunInProgress
	}
	st := &Status{
		RunID:     runID,
		OrgID:     orgID,
		State:     StateRunning,
		Message:   "fetching directory",
		StartedAt: t.now().UTC(),
	}
	t.runs[orgID] = st
	t.publishLocked(*st)
	return nil
}

// SetTotal records how many projects the run will ship.
func (t *Tracker) SetTotal(orgID string, total int) {
	t.update(orgID, func(s *Status) {
		s.Total = total
		s.Message = progressMessage(s.Current, total)
	})
}

// Advance marks one more project as processed.
func (t *Tracker) Advance(orgID string) {
	t.update(orgID, func(s *Status) {
		s.Current++
		s.Message = progressMessage(s.Current, s.Total)
	})
}

// Finish closes the run with its outcome.
func (t *Tracker) Finish(orgID string, ok bool, message string) {
	t.update(orgID, func(s *Status) {
		now := t.now().UTC()
		s.FinishedAt = &now
		s.State = StateFailed
		if ok {
			s.State = StateSucceeded
		}
		if message != "" {
			s.Message = message
		}
	})
}

func (t *Tracker) Status(orgID string) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.runs[orgID]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

func (t *Tracker) update(orgID string, fn func(*Status)) {
	t.mu.Lock()
	s, ok := t.runs[orgID]
	if !ok {
		t.mu.Unlock()
		return
	}
	fn(s)
	t.publishLocked(*s)
}

// publishLocked releases mu and hands snapshot to the change callback.
// Holding sendMu across the handoff keeps notifications in change order.
func (t *Tracker) publishLocked(snapshot Status) {
	notify := t.notify
	if notify == nil {
		t.mu.Unlock()
		return
	}
	t.sendMu.Lock()
	t.mu.Unlock()
	defer t.sendMu.Unlock()
	notify(snapshot)
}

func progressMessage(current, total int) string {
	return fmt.Sprintf("(%d / %d)", current, total)
}
