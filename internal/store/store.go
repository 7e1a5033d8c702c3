// Package store holds the small amount of state that outlives an audit run.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrInvalidKey is returned for blank keys.
var ErrInvalidKey = errors.New("store: key is required")

// KV is a durable string key-value store.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// InMemory is a process-local KV for tests and database-less deployments.
type InMemory struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ KV = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{data: make(map[string]string)}
}

func (m *InMemory) Get(_ context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, ErrInvalidKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *InMemory) Set(_ context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

// LastScannedKey is the storage key of an organization's last completed scan.
func LastScannedKey(orgID string) string {
	return "lastScannedAt:" + orgID
}

// LastScannedAt returns the last completed scan of orgID; ok is false when
// the organization was never scanned.
func LastScannedAt(ctx context.Context, kv KV, orgID string) (t time.Time, ok bool, err error) {
	raw, found, err := kv.Get(ctx, LastScannedKey(orgID))
	if err != nil || !found {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: decode %s: %w", LastScannedKey(orgID), err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// SetLastScannedAt records t as a millisecond epoch.
func SetLastScannedAt(ctx context.Context, kv KV, orgID string, t time.Time) error {
	return kv.Set(ctx, LastScannedKey(orgID), strconv.FormatInt(t.UnixMilli(), 10))
}
