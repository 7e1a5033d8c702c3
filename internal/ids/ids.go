package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const runPrefix = "run_"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewRunID returns a sortable audit run identifier such as run_01HZX3....
func NewRunID() string {
	return newRunIDAt(time.Now())
}

func newRunIDAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return runPrefix + ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// RunStartedAt recovers the creation time encoded in a run id.
func RunStartedAt(runID string) (time.Time, bool) {
	raw, ok := strings.CutPrefix(runID, runPrefix)
	if !ok {
		return time.Time{}, false
	}
	id, err := ulid.ParseStrict(raw)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(id.Time()), true
}
