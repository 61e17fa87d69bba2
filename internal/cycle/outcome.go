package cycle

import (
	"time"

	"soilnode/internal/hal"
	"soilnode/internal/queue"
	"soilnode/internal/telemetry"
)

// Outcome is everything one wake did. Nothing in it outlives the process
// except through the metrics textfile.
type Outcome struct {
	CycleID string
	Reset   hal.ResetReason

	Upload     bool // duty-cycle upload
	Forced     bool // escalation forced a connection
	Connected  bool
	Hibernated bool

	Drained bool
	Drain   queue.DrainResult

	Delivered int
	Queued    int
	Dropped   int

	IterBefore int
	IterAfter  int

	BattVolts   float64
	BattPct     int
	Soil        map[int]int
	ClockOffset time.Duration

	Health  telemetry.Health
	Records []telemetry.Record

	Started  time.Time
	Finished time.Time
}
