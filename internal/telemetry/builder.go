package telemetry

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Polarity states which direction of the raw moisture scale means "dry".
type Polarity string

const (
	// HigherIsDrier: capacitive probes reading ~2860 in air and ~1000 in water.
	HigherIsDrier Polarity = "higher_is_drier"
	// LowerIsDrier: resistive probes and inverted calibrations.
	LowerIsDrier Polarity = "lower_is_drier"
)

// MoistureRule is the one moisture comparison shared by the builder and the escalation policy.
type MoistureRule struct {
	Polarity Polarity
	WarnRaw  int
}

// Crossed reports whether raw is on the dry side of the warning boundary.
// The disconnected sentinel never crosses.
func (m MoistureRule) Crossed(raw int) bool {
	if raw == 0 {
		return false
	}
	if m.Polarity == LowerIsDrier {
		return raw <= m.WarnRaw
	}
	return raw >= m.WarnRaw
}

// BatteryModel holds the battery rail thresholds in volts.
type BatteryModel struct {
	MinVolts  float64
	MaxVolts  float64
	WarnVolts float64
	Precision int
}

// BatteryPercent linearly maps v from [min,max] to [0,100], clamped.
func BatteryPercent(v, min, max float64) int {
	if max <= min {
		return 0
	}
	pct := int(math.Round((v - min) / (max - min) * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Classify picks the status bit. First match wins.
func Classify(soil int, battVolts float64, h Health, rule MoistureRule, warnVolts float64) Status {
	switch {
	case h.Problem:
		return StatusSystemProblem
	case soil == 0:
		return StatusSensorDisconnected
	case battVolts < warnVolts:
		return StatusBatteryLow
	case rule.Crossed(soil):
		return StatusMoistureWarn
	default:
		return StatusNormal
	}
}

// Builder turns aggregated samples into records.
type Builder struct {
	DeviceID string
	Version  int
	Battery  BatteryModel
	Moisture MoistureRule
	Location *time.Location
	Now      func() time.Time
}

// Build creates the record for one sensor channel.
func (b *Builder) Build(sensorID, soil int, battVolts float64, h Health) Record {
	precision := b.Battery.Precision
	if precision < 0 {
		precision = 0
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}

	// classify on the value that goes on the wire so the status agrees with batt_volt
	volt := fmt.Sprintf("%.*f", precision, battVolts)
	rounded, err := strconv.ParseFloat(volt, 64)
	if err != nil {
		rounded = battVolts
	}

	reason := ""
	if h.Problem {
		reason = StripNewlines(h.Reason)
	}

	return Record{
		DeviceID:  b.DeviceID,
		SensorID:  sensorID,
		SoilValue: soil,
		StatusBit: Classify(soil, rounded, h, b.Moisture, b.Battery.WarnVolts),
		BattVolt:  volt,
		BattPct:   BatteryPercent(battVolts, b.Battery.MinVolts, b.Battery.MaxVolts),
		Timestamp: now().In(loc).Format(TimestampLayout),
		Reason:    reason,
		Version:   b.Version,
	}
}
