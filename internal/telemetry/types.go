// Telemetry record structs shared by the node and the collector tooling
package telemetry

import (
	"encoding/json"
	"strings"
)

// Record is one delivery unit. It is built once per sensor per wake and
// serialized exactly once; the encoded bytes are what gets POSTed or queued.
type Record struct {
	DeviceID  string `json:"device_id"`
	SensorID  int    `json:"sensor_id"`
	SoilValue int    `json:"soil_value"` // 0 = sensor disconnected
	StatusBit Status `json:"status_bit"`
	BattVolt  string `json:"batt_volt"`
	BattPct   int    `json:"batt_pct"`
	Timestamp string `json:"timestamp"` // TimestampLayout, node local time
	Reason    string `json:"reason"`
	Version   int    `json:"version"`
}

// TimestampLayout is the wall-clock format used in records.
const TimestampLayout = "2006-01-02 15:04:05"

// Encode serializes the record as a single-line JSON object.
func (r Record) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// Decode parses one queued line back into a Record.
func Decode(line []byte) (Record, error) {
	var r Record
	err := json.Unmarshal(line, &r)
	return r, err
}

// Status is the single-letter health classification carried in status_bit.
type Status string

// Status values, in classification priority order.
const (
	StatusSystemProblem      Status = "S"
	StatusSensorDisconnected Status = "D"
	StatusBatteryLow         Status = "B"
	StatusMoistureWarn       Status = "M"
	StatusNormal             Status = "A"
)

// String returns a readable name for logs.
func (s Status) String() string {
	switch s {
	case StatusSystemProblem:
		return "system_problem"
	case StatusSensorDisconnected:
		return "sensor_disconnected"
	case StatusBatteryLow:
		return "battery_low"
	case StatusMoistureWarn:
		return "moisture_warn"
	case StatusNormal:
		return "normal"
	}
	return "unknown"
}

// Health is the problem flag of one wake.
type Health struct {
	Problem bool   `json:"problem"`
	Reason  string `json:"reason,omitempty"`
}

// Flag marks a problem. The last reason wins.
func (h *Health) Flag(reason string) {
	h.Problem = true
	h.Reason = StripNewlines(reason)
}

// StripNewlines removes CR and LF so values never break the line-delimited queue.
func StripNewlines(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.NewReplacer("\r", "", "\n", " ").Replace(s)
}
