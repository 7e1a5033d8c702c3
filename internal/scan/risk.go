package scan

import (
	"math"
	"time"
)

// RiskSubject is the per-user input to classification.
type RiskSubject struct {
	LastLogin   *string
	Active      bool
	GlobalRoles []string
}

// Classifier maps a role entry to a risk tier.
type Classifier struct {
	AdminRole  string
	MemberRole string
	ViewerRole string
	Now        func() time.Time
}

// Classify applies the rules in order; a later match overrides an earlier
// one, so an inactive account is always high.
func (c Classifier) Classify(subj RiskSubject, roleName string) RiskLevel {
	idle := c.inactiveDays(subj.LastLogin)

	risk := RiskLow
	if roleName == c.AdminRole {
		if idle > 90 {
			risk = RiskHigh
		} else {
			risk = RiskMedium
		}
	}
	if roleName == c.MemberRole && idle > 180 {
		risk = RiskMedium
	}
	if roleName == c.ViewerRole && idle < 90 {
		risk = RiskLow
	}
	if !subj.Active {
		risk = RiskHigh
	}
	return risk
}

// inactiveDays is fractional days since lastLogin; unknown is +Inf.
func (c Classifier) inactiveDays(lastLogin *string) float64 {
	if lastLogin == nil {
		return math.Inf(1)
	}
	at, ok := parseTimestamp(*lastLogin)
	if !ok {
		return math.Inf(1)
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return now().Sub(at).Hours() / 24
}
