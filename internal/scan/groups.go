package scan

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// GroupCache maps accountId to group names for the lifetime of a session.
// Entries are never invalidated. Two concurrent misses for the same account
// may both reach Jira; the later write wins.
type GroupCache struct {
	mu      sync.Mutex
	entries map[string][]string
}

func NewGroupCache() *GroupCache {
	return &GroupCache{entries: make(map[string][]string)}
}

func (c *GroupCache) Get(accountID string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[accountID]
	return v, ok
}

func (c *GroupCache) Put(accountID string, groups []string) {
	c.mu.Lock()
	c.entries[accountID] = groups
	c.mu.Unlock()
}

func (c *GroupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GroupsFor returns the account's group names, in Jira's order. A failed
// lookup yields, and caches, an empty list.
func (s *Session) GroupsFor(ctx context.Context, accountID string) []string {
	if groups, ok := s.groups.Get(accountID); ok {
		return groups
	}
	names := []string{}
	res, err := s.jira.UserGroups(ctx, accountID)
	if err != nil {
		s.degraded("groups", "group lookup failed", zap.String("account_id", accountID), zap.Error(err))
	} else {
		for _, g := range res {
			if g.Name != "" {
				names = append(names, g.Name)
			}
		}
	}
	s.groups.Put(accountID, names)
	return names
}
