package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stagecall/internal/types"
)

func TestHealthFor(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		hb   *types.Heartbeat
		want types.HealthState
	}{
		{"never ran", nil, types.HealthUnhealthy},
		{"fresh", &types.Heartbeat{LastRunAt: now.Add(-5 * time.Minute)}, types.HealthHealthy},
		{"just under fifteen minutes", &types.Heartbeat{LastRunAt: now.Add(-14 * time.Minute)}, types.HealthHealthy},
		{"stale", &types.Heartbeat{LastRunAt: now.Add(-30 * time.Minute)}, types.HealthDegraded},
		{"just under an hour", &types.Heartbeat{LastRunAt: now.Add(-59 * time.Minute)}, types.HealthDegraded},
		{"dead", &types.Heartbeat{LastRunAt: now.Add(-2 * time.Hour)}, types.HealthUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HealthFor(tt.hb, now))
		})
	}
}
