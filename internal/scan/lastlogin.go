package scan

import "time"

// BuildLastLoginMap merges per-project activity into accountId -> latest
// date. Dates are compared as parsed values. A null or unparseable date never
// overwrites an entry and never creates one.
func BuildLastLoginMap(results []ProjectActivity) map[string]string {
	type best struct {
		raw string
		at  time.Time
	}
	merged := map[string]best{}
	for _, res := range results {
		for _, u := range res.Users {
			if u.AccountID == "" || u.LastActivityDate == nil {
				continue
			}
			at, ok := parseTimestamp(*u.LastActivityDate)
			if !ok {
				continue
			}
			if cur, exists := merged[u.AccountID]; exists && !at.After(cur.at) {
				continue
			}
			merged[u.AccountID] = best{raw: *u.LastActivityDate, at: at}
		}
	}
	out := make(map[string]string, len(merged))
	for id, b := range merged {
		out[id] = b.raw
	}
	return out
}
