package telemetry

import (
	"strings"
	"testing"
	"time"
)

func testBuilder() *Builder {
	return &Builder{
		DeviceID: "a1b2",
		Version:  3,
		Battery:  BatteryModel{MinVolts: 3.1, MaxVolts: 4.2, WarnVolts: 3.6, Precision: 1},
		Moisture: MoistureRule{Polarity: HigherIsDrier, WarnRaw: 2489},
		Location: time.FixedZone("node", -4*3600),
		Now:      func() time.Time { return time.Date(2026, 6, 1, 16, 30, 5, 0, time.UTC) },
	}
}

func TestBuildNormal(t *testing.T) {
	rec := testBuilder().Build(36, 1500, 4.0, Health{})

	if rec.DeviceID != "a1b2" || rec.SensorID != 36 || rec.SoilValue != 1500 {
		t.Errorf("unexpected identity fields: %+v", rec)
	}
	if rec.StatusBit != StatusNormal {
		t.Errorf("expected normal, got %s", rec.StatusBit)
	}
	if rec.BattVolt != "4.0" {
		t.Errorf("expected batt_volt 4.0, got %s", rec.BattVolt)
	}
	if rec.Timestamp != "2026-06-01 12:30:05" {
		t.Errorf("unexpected timestamp %s", rec.Timestamp)
	}
	if rec.Reason != "" || rec.Version != 3 {
		t.Errorf("unexpected reason/version: %+v", rec)
	}
}

func TestClassifyPriority(t *testing.T) {
	rule := MoistureRule{Polarity: HigherIsDrier, WarnRaw: 2489}
	problem := Health{Problem: true, Reason: "Last reset: panic reset"}

	cases := []struct {
		name  string
		soil  int
		volts float64
		h     Health
		want  Status
	}{
		{"problem beats everything", 0, 3.0, problem, StatusSystemProblem},
		{"disconnected beats battery", 0, 3.0, Health{}, StatusSensorDisconnected},
		{"battery beats moisture", 2500, 3.5, Health{}, StatusBatteryLow},
		{"moisture at boundary", 2489, 4.0, Health{}, StatusMoistureWarn},
		{"normal", 2488, 3.6, Health{}, StatusNormal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.soil, tc.volts, tc.h, rule, 3.6); got != tc.want {
				t.Errorf("Classify=%s, want %s", got, tc.want)
			}
		})
	}
}

func TestSentinelIsDisconnectedNotDry(t *testing.T) {
	rec := testBuilder().Build(36, 0, 4.1, Health{})
	if rec.StatusBit != StatusSensorDisconnected {
		t.Fatalf("expected disconnected, got %s", rec.StatusBit)
	}

	lower := MoistureRule{Polarity: LowerIsDrier, WarnRaw: 800}
	if lower.Crossed(0) {
		t.Fatalf("sentinel must never cross the moisture boundary")
	}
	if !lower.Crossed(800) || lower.Crossed(801) {
		t.Fatalf("lower_is_drier boundary wrong")
	}
}

func TestBatteryPercent(t *testing.T) {
	cases := []struct {
		v    float64
		want int
	}{
		{2.5, 0},
		{3.1, 0},
		{3.65, 50},
		{4.2, 100},
		{5.0, 100},
	}
	for _, tc := range cases {
		if got := BatteryPercent(tc.v, 3.1, 4.2); got != tc.want {
			t.Errorf("BatteryPercent(%v)=%d, want %d", tc.v, got, tc.want)
		}
	}
	if got := BatteryPercent(3.5, 3.0, 4.0); got != 50 {
		t.Errorf("midpoint of 3.0..4.0 = %d, want 50", got)
	}
}

func TestBuildClassifiesOnRoundedVoltage(t *testing.T) {
	// 3.58 rounds to 3.6 on the wire, which is not below the 3.6 warning
	rec := testBuilder().Build(36, 1500, 3.58, Health{})
	if rec.BattVolt != "3.6" || rec.StatusBit != StatusNormal {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestBuildStripsNewlinesFromReason(t *testing.T) {
	rec := testBuilder().Build(36, 1500, 4.0, Health{Problem: true, Reason: "line one\nline two"})
	if strings.ContainsAny(rec.Reason, "\r\n") {
		t.Fatalf("reason contains newline: %q", rec.Reason)
	}
	b, err := rec.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(string(b), "\n") {
		t.Fatalf("encoded record spans lines: %q", b)
	}
	back, err := Decode(b)
	if err != nil || back != rec {
		t.Fatalf("decode mismatch: %+v %v", back, err)
	}
}

func TestHealthLastWriterWins(t *testing.T) {
	var h Health
	h.Flag("Queue storage mount failed")
	h.Flag("Last reset: brownout reset")
	if !h.Problem || h.Reason != "Last reset: brownout reset" {
		t.Fatalf("unexpected health %+v", h)
	}
}
