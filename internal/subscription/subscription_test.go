package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr(t time.Time) *time.Time { return &t }

func TestResolve_Precedence(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := ptr(now.Add(30 * 24 * time.Hour))
	past := ptr(now.Add(-30 * 24 * time.Hour))

	tests := []struct {
		name string
		s    Settings
		want Status
	}{
		{"never activated", Settings{}, StatusExpired},
		{"paid period running", Settings{EndDate: future}, StatusActive},
		{"paid period lapsed", Settings{EndDate: past}, StatusExpired},
		{"override only", Settings{OverrideAccess: true}, StatusGrant},
		{"override with lapsed period", Settings{EndDate: past, OverrideAccess: true}, StatusGrant},
		{"paid period masks override", Settings{EndDate: future, OverrideAccess: true}, StatusActive},
		{"disabled wins over everything", Settings{EndDate: future, OverrideAccess: true, Disabled: true}, StatusDisabled},
		{"disabled with no period", Settings{Disabled: true}, StatusDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(&tt.s, now))
		})
	}
}

func TestResolve_ExpiryBoundary(t *testing.T) {
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := &Settings{EndDate: &end}

	assert.Equal(t, StatusActive, Resolve(s, end.Add(-time.Second)))
	// The end instant itself is outside the paid period.
	assert.Equal(t, StatusExpired, Resolve(s, end))
	assert.Equal(t, StatusExpired, Resolve(s, end.Add(time.Second)))
}

func TestResolve_Pure(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := now.Add(time.Hour)
	s := &Settings{TenantID: "dps-rkpuram", MonthlyPrice: 499, EndDate: &end, OverrideAccess: true}
	before := *s

	first := Resolve(s, now)
	second := Resolve(s, now)

	assert.Equal(t, first, second)
	assert.Equal(t, before, *s, "Resolve must not mutate settings")
}

func TestResolve_ExpiryFlipsWithoutWrite(t *testing.T) {
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := &Settings{EndDate: &end, OverrideAccess: true}

	// Same row, observed before and after the expiry instant.
	assert.Equal(t, StatusActive, Resolve(s, end.Add(-time.Minute)))
	assert.Equal(t, StatusGrant, Resolve(s, end.Add(time.Minute)))
}

func TestSettings_Clone(t *testing.T) {
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := &Settings{TenantID: "t1", MonthlyPrice: 499, EndDate: &end}

	c := s.Clone()
	c.MonthlyPrice = 999
	*c.EndDate = end.AddDate(0, 6, 0)

	assert.Equal(t, int64(499), s.MonthlyPrice)
	assert.True(t, s.EndDate.Equal(end), "clone must not share the end date pointer")

	var nilSettings *Settings
	assert.Nil(t, nilSettings.Clone())
}

func TestSettings_PaidActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, (&Settings{}).PaidActive(now))
	assert.True(t, (&Settings{EndDate: ptr(now.Add(time.Second))}).PaidActive(now))
	assert.False(t, (&Settings{EndDate: ptr(now)}).PaidActive(now))
}
