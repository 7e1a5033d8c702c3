package scan

import (
	"context"

	"go.uber.org/zap"

	"permaudit.io/internal/jira"
)

// CheckGlobal asks Jira which global permissions each user holds, in windows
// of UserChecksBatchSize. A user whose check fails is left out.
func (s *Session) CheckGlobal(ctx context.Context, users []User, keys []string) []GlobalPermissionResult {
	outcomes := settle(ctx, users, s.cfg.UserChecksBatchSize, func(ctx context.Context, u User) (jira.PermissionCheck, error) {
		return s.jira.CheckGlobalPermissions(ctx, u.AccountID, keys)
	})
	results := make([]GlobalPermissionResult, 0, len(users))
	for i, o := range outcomes {
		u := users[i]
		if o.Err != nil {
			s.degraded("global_check", "global permission check failed",
				zap.String("account_id", u.AccountID), zap.Error(o.Err))
			continue
		}
		perms := o.Value.GlobalPermissions
		if perms == nil {
			perms = jira.GrantSet{}
		}
		results = append(results, GlobalPermissionResult{
			User:        UserRef{AccountID: u.AccountID, DisplayName: u.DisplayName},
			Permissions: perms,
		})
	}
	return results
}
