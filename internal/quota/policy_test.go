package quota_test

import (
	"testing"
	"time"

	"storybook-server/internal/domain"
	"storybook-server/internal/quota"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Evaluate_Unlimited(t *testing.T) {
	policy := quota.NewPolicy(2)
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	for _, role := range []domain.Role{domain.RolePremium, domain.RoleAdmin} {
		for _, count := range []int{0, 2, 500} {
			snap := policy.Evaluate(role, count, now)
			assert.True(t, snap.IsUnlimited, "role %s", role)
			assert.True(t, snap.CanCreate, "role %s count %d", role, count)
			assert.Nil(t, snap.Limit)
			assert.Nil(t, snap.Remaining)
			assert.Nil(t, snap.ResetAt)
			assert.Equal(t, count, snap.CountThisPeriod)
		}
	}
}

func TestPolicy_Evaluate_Limited(t *testing.T) {
	policy := quota.NewPolicy(2)
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		count         int
		wantRemaining int
		wantCanCreate bool
	}{
		{0, 2, true},
		{1, 1, true},
		{2, 0, false},
		{7, 0, false},
	}
	for _, tc := range tests {
		snap := policy.Evaluate(domain.RoleCustomer, tc.count, now)
		require.NotNil(t, snap.Limit)
		require.NotNil(t, snap.Remaining)
		require.NotNil(t, snap.ResetAt)
		assert.False(t, snap.IsUnlimited)
		assert.Equal(t, 2, *snap.Limit)
		assert.Equal(t, tc.wantRemaining, *snap.Remaining, "count %d", tc.count)
		assert.Equal(t, tc.wantCanCreate, snap.CanCreate, "count %d", tc.count)
	}
}

func TestPolicy_Evaluate_UnknownRoleUsesCustomerLimit(t *testing.T) {
	policy := quota.NewPolicy(3)
	snap := policy.Evaluate(domain.Role("GUEST"), 1, time.Now())

	require.NotNil(t, snap.Limit)
	assert.Equal(t, 3, *snap.Limit)
	assert.True(t, snap.CanCreate)
}

func TestPolicy_Evaluate_ResetAt(t *testing.T) {
	policy := quota.NewPolicy(2)
	moscow := time.FixedZone("MSK", 3*60*60)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"mid month", time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"first instant of month", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"last instant of month", time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"december rolls the year", time.Date(2026, 12, 31, 12, 0, 0, 0, time.UTC), time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
		// 1 April 01:00 MSK is still 31 March in UTC.
		{"non UTC input", time.Date(2026, 4, 1, 1, 0, 0, 0, moscow), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap := policy.Evaluate(domain.RoleCustomer, 0, tc.now)
			require.NotNil(t, snap.ResetAt)
			assert.True(t, tc.want.Equal(*snap.ResetAt), "got %s", snap.ResetAt)
			assert.Equal(t, time.UTC, snap.ResetAt.Location())
			assert.Equal(t, 1, snap.ResetAt.Day())
			assert.True(t, snap.ResetAt.After(tc.now))
		})
	}
}

func TestPeriodBounds(t *testing.T) {
	start, end := quota.PeriodBounds(time.Date(2026, 2, 20, 18, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), end)
}
