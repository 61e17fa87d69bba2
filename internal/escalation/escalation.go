// Package escalation decides when fresh readings justify connecting outside
// the regular duty cycle.
package escalation

import "soilnode/internal/telemetry"

// Thresholds are the battery and moisture boundaries that trigger escalation.
type Thresholds struct {
	WarnVolts float64
	Moisture  telemetry.MoistureRule
}

// ShouldForceConnect reports whether an out-of-cycle connection attempt is
// warranted. It never asks for a reconnect when the link is already up or
// when this wake is already an upload cycle.
func ShouldForceConnect(battVolts float64, moisture int, connected bool, iter int, th Thresholds) bool {
	if connected || iter == 1 {
		return false
	}
	if battVolts <= th.WarnVolts {
		return true
	}
	return th.Moisture.Crossed(moisture)
}

// Critical reports a battery below the operating minimum. A reading at or
// below floor means the rail is not connected and is not treated as critical.
func Critical(battVolts, minVolts, floor float64) bool {
	return battVolts < minVolts && battVolts > floor
}

// Disconnected reports a battery rail reading at or below floor.
func Disconnected(battVolts, floor float64) bool {
	return battVolts <= floor
}
