// Package hal holds the host implementations of the node's hardware ports:
// analog input, watchdog, power control, reset cause and identity.
package hal

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ADC reads one instantaneous sample from a channel.
type ADC interface {
	Read(channel int) (int, error)
}

// IIOADC reads the Linux industrial I/O sysfs interface
// (<dir>/in_voltage<N>_raw).
type IIOADC struct {
	Dir    string
	MaxRaw int
}

func (a IIOADC) Read(channel int) (int, error) {
	p := filepath.Join(a.Dir, fmt.Sprintf("in_voltage%d_raw", channel))
	b, err := os.ReadFile(p)
	if err != nil {
		return 0, fmt.Errorf("read adc channel %d: %w", channel, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse adc channel %d: %w", channel, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("adc channel %d out of range: %d", channel, v)
	}
	// Over-range reads are glitches; clamp and let the trimmed mean drop them.
	if a.MaxRaw > 0 && v > a.MaxRaw {
		v = a.MaxRaw
	}
	return v, nil
}

// SimChannel describes one simulated input.
type SimChannel struct {
	Baseline int
	Noise    int
	// SpikeChance is the probability of a single full-scale glitch per read.
	SpikeChance float64
}

// SimADC produces noisy readings around fixed baselines. Channels without a
// profile read 0, like an unplugged sensor.
type SimADC struct {
	Channels map[int]SimChannel
	MaxRaw   int
	Rand     *rand.Rand
}

// NewSimADC returns a SimADC seeded from seed.
func NewSimADC(channels map[int]SimChannel, maxRaw int, seed int64) *SimADC {
	return &SimADC{Channels: channels, MaxRaw: maxRaw, Rand: rand.New(rand.NewSource(seed))}
}

func (s *SimADC) Read(channel int) (int, error) {
	ch, ok := s.Channels[channel]
	if !ok || ch.Baseline == 0 {
		return 0, nil
	}
	if ch.SpikeChance > 0 && s.Rand.Float64() < ch.SpikeChance {
		return s.MaxRaw, nil
	}
	v := ch.Baseline
	if ch.Noise > 0 {
		v += s.Rand.Intn(2*ch.Noise+1) - ch.Noise
	}
	if v < 0 {
		v = 0
	}
	if s.MaxRaw > 0 && v > s.MaxRaw {
		v = s.MaxRaw
	}
	return v, nil
}

// RawToVolts converts a raw reading to volts at the ADC pin, scaled by the
// external divider ratio.
func RawToVolts(raw, maxRaw int, refVolts, divider float64) float64 {
	if maxRaw <= 0 {
		return 0
	}
	if divider <= 0 {
		divider = 1
	}
	return float64(raw) / float64(maxRaw) * refVolts * divider
}
