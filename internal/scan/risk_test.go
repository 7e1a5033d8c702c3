package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	daysAgo := func(n int) *string {
		s := now.AddDate(0, 0, -n).Format(dateLayout)
		return &s
	}
	c := Classifier{AdminRole: "Administrator", MemberRole: "Member", ViewerRole: "Viewer", Now: func() time.Time { return now }}

	cases := []struct {
		name   string
		role   string
		last   *string
		active bool
		want   RiskLevel
	}{
		{"dormant admin", "Administrator", daysAgo(91), true, RiskHigh},
		{"recent admin", "Administrator", daysAgo(10), true, RiskMedium},
		{"admin never seen", "Administrator", nil, true, RiskHigh},
		{"admin unparseable login", "Administrator", strPtr("soon"), true, RiskHigh},
		{"dormant member", "Member", daysAgo(181), true, RiskMedium},
		{"recent member", "Member", daysAgo(30), true, RiskLow},
		{"member never seen", "Member", nil, true, RiskMedium},
		{"recent viewer", "Viewer", daysAgo(10), true, RiskLow},
		{"dormant viewer", "Viewer", daysAgo(365), true, RiskLow},
		{"other role", "Developers", nil, true, RiskLow},
		{"inactive admin", "Administrator", daysAgo(1), false, RiskHigh},
		{"inactive member", "Member", daysAgo(1), false, RiskHigh},
		{"inactive viewer", "Viewer", daysAgo(1), false, RiskHigh},
		{"inactive other", "Developers", daysAgo(1), false, RiskHigh},
		{"role match is exact", "administrator", daysAgo(200), true, RiskLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(RiskSubject{LastLogin: tc.last, Active: tc.active}, tc.role)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClassifyUsesFractionalDays(t *testing.T) {
	login := "2024-01-01"
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Classifier{AdminRole: "Administrator"}

	c.Now = func() time.Time { return base.Add(90 * 24 * time.Hour) }
	assert.Equal(t, RiskMedium, c.Classify(RiskSubject{LastLogin: &login, Active: true}, "Administrator"))

	c.Now = func() time.Time { return base.Add(90*24*time.Hour + time.Hour) }
	assert.Equal(t, RiskHigh, c.Classify(RiskSubject{LastLogin: &login, Active: true}, "Administrator"))
}
