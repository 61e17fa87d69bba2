package escalation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"soilnode/internal/telemetry"
)

var th = Thresholds{
	WarnVolts: 3.6,
	Moisture:  telemetry.MoistureRule{Polarity: telemetry.HigherIsDrier, WarnRaw: 2489},
}

func TestShouldForceConnect(t *testing.T) {
	cases := []struct {
		name      string
		volts     float64
		moisture  int
		connected bool
		iter      int
		want      bool
	}{
		{"healthy", 3.9, 1500, false, 3, false},
		{"battery at warn", 3.6, 1500, false, 3, true},
		{"battery below warn", 3.4, 1500, false, 3, true},
		{"dry soil", 3.9, 2600, false, 3, true},
		{"disconnected sensor", 3.9, 0, false, 3, false},
		{"upload cycle already", 3.4, 2600, false, 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldForceConnect(tc.volts, tc.moisture, tc.connected, tc.iter, th))
		})
	}
}

func TestConnectedNeverEscalates(t *testing.T) {
	for iter := 1; iter <= 10; iter++ {
		for _, v := range []float64{0, 3.0, 3.6, 4.2} {
			for _, m := range []int{0, 1000, 2489, 4095} {
				assert.False(t, ShouldForceConnect(v, m, true, iter, th))
			}
		}
	}
}

func TestLowerIsDrierPolarity(t *testing.T) {
	inv := Thresholds{WarnVolts: 3.6, Moisture: telemetry.MoistureRule{Polarity: telemetry.LowerIsDrier, WarnRaw: 1200}}
	assert.True(t, ShouldForceConnect(3.9, 1100, false, 2, inv))
	assert.False(t, ShouldForceConnect(3.9, 1500, false, 2, inv))
}

func TestCritical(t *testing.T) {
	assert.True(t, Critical(3.0, 3.1, 0.5))
	assert.False(t, Critical(3.1, 3.1, 0.5))
	assert.False(t, Critical(0.2, 3.1, 0.5), "missing rail is not a flat battery")
	assert.True(t, Disconnected(0.2, 0.5))
	assert.False(t, Disconnected(3.0, 0.5))
}
