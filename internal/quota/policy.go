// Package quota decides whether an owner may submit another generation in the
// current calendar month.
package quota

import (
	"time"

	"storybook-server/internal/domain"
)

// Snapshot is computed on demand and never stored. Limit, Remaining and ResetAt
// are nil for unlimited roles.
type Snapshot struct {
	CountThisPeriod int        `json:"count_this_period"`
	Limit           *int       `json:"limit"`
	Remaining       *int       `json:"remaining"`
	ResetAt         *time.Time `json:"reset_at"`
	IsUnlimited     bool       `json:"is_unlimited"`
	CanCreate       bool       `json:"can_create"`
}

// Policy holds the per-role monthly limits.
type Policy struct {
	limits       map[domain.Role]int
	unlimited    map[domain.Role]struct{}
	defaultLimit int
}

// NewPolicy builds a policy where PREMIUM and ADMIN are unlimited and every other
// role, including unknown ones, gets customerLimit.
func NewPolicy(customerLimit int) *Policy {
	return &Policy{
		limits: map[domain.Role]int{
			domain.RoleCustomer: customerLimit,
		},
		unlimited: map[domain.Role]struct{}{
			domain.RolePremium: {},
			domain.RoleAdmin:   {},
		},
		defaultLimit: customerLimit,
	}
}

// Evaluate is pure: countThisPeriod must already be scoped to the period that
// contains now (see PeriodBounds).
func (p *Policy) Evaluate(role domain.Role, countThisPeriod int, now time.Time) Snapshot {
	if _, ok := p.unlimited[role]; ok {
		return Snapshot{
			CountThisPeriod: countThisPeriod,
			IsUnlimited:     true,
			CanCreate:       true,
		}
	}

	limit, ok := p.limits[role]
	if !ok {
		limit = p.defaultLimit
	}
	remaining := limit - countThisPeriod
	if remaining < 0 {
		remaining = 0
	}
	_, resetAt := PeriodBounds(now)

	return Snapshot{
		CountThisPeriod: countThisPeriod,
		Limit:           &limit,
		Remaining:       &remaining,
		ResetAt:         &resetAt,
		CanCreate:       countThisPeriod < limit,
	}
}

// PeriodBounds returns the half-open window [first of this month, first of next
// month) in UTC.
func PeriodBounds(now time.Time) (start, end time.Time) {
	now = now.UTC()
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}
