package scheduler

import (
	"time"

	"stagecall/internal/types"
)

// Heartbeat freshness thresholds. The dispatcher is expected to run every
// few minutes; a heartbeat older than an hour means deliveries are not
// happening.
const (
	HealthyWithin  = 15 * time.Minute
	DegradedWithin = 60 * time.Minute
)

// HealthFor classifies the organization's delivery health from its heartbeat
// age. A missing heartbeat (never ran) is unhealthy.
func HealthFor(hb *types.Heartbeat, now time.Time) types.HealthState {
	if hb == nil {
		return types.HealthUnhealthy
	}
	age := now.Sub(hb.LastRunAt)
	switch {
	case age < HealthyWithin:
		return types.HealthHealthy
	case age < DegradedWithin:
		return types.HealthDegraded
	default:
		return types.HealthUnhealthy
	}
}
