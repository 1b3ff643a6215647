// Package subscription manages per-institute billing state.
//
// Each tenant (institute) owns exactly one Settings row: the configured
// monthly price, the computed paid-until timestamp, an administrator
// override flag, and a disable kill-switch. Access state is never stored;
// it is re-derived from the row and the current time on every read.
package subscription

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotFound     = errors.New("subscription: tenant not found")
	ErrTenantExists = errors.New("subscription: tenant already set up")
	ErrInvalidPrice = errors.New("subscription: monthly price must be positive")
	ErrInvalidInput = errors.New("subscription: invalid input")
)

// Status is the derived access state of a tenant.
type Status string

const (
	// StatusActive means a paid period is currently running.
	StatusActive Status = "active"
	// StatusGrant means the administrator override is carrying access
	// because no paid period is running.
	StatusGrant Status = "grant"
	// StatusExpired means no paid period is running and no override is set.
	// A tenant that never paid resolves here too.
	StatusExpired Status = "expired"
	// StatusDisabled means the administrator kill-switch is set. It wins
	// over everything else.
	StatusDisabled Status = "disabled"
)

// Settings is the single mutable billing row per tenant.
type Settings struct {
	TenantID       string     `json:"tenant_id"`
	MonthlyPrice   int64      `json:"monthly_price"`
	EndDate        *time.Time `json:"subscription_end_date"`
	OverrideAccess bool       `json:"override_access"`
	Disabled       bool       `json:"disabled"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so callers can't mutate stored state.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	out := *s
	if s.EndDate != nil {
		end := *s.EndDate
		out.EndDate = &end
	}
	return &out
}

// PaidActive reports whether a paid period covers the given instant.
func (s *Settings) PaidActive(now time.Time) bool {
	return s.EndDate != nil && s.EndDate.After(now)
}

// Resolve derives the access state from a settings row and the current time.
//
// Precedence: Disabled > paid period (Active) > override (Grant) > Expired.
// A paid period always masks the override flag; the flag only bridges
// tenants that have not yet paid. Pure function: no side effects, and the
// same (settings, now) always yields the same status.
func Resolve(s *Settings, now time.Time) Status {
	if s.Disabled {
		return StatusDisabled
	}
	if s.PaidActive(now) {
		return StatusActive
	}
	if s.OverrideAccess {
		return StatusGrant
	}
	return StatusExpired
}
