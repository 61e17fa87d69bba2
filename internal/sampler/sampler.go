// Package sampler averages raw ADC reads while rejecting single-sample glitches.
package sampler

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// ADC reads one instantaneous sample from a channel.
type ADC interface {
	Read(channel int) (int, error)
}

// Sampler takes repeated reads of a channel and returns their trimmed mean.
type Sampler struct {
	ADC   ADC
	Clock clockwork.Clock
	// Pulse is the watchdog liveness callback, invoked once per read.
	Pulse func()
	Log   *slog.Logger
}

// Sample takes count reads of channel, delay apart, and returns the trimmed mean.
// Any read error yields 0, the disconnected sentinel.
func (s *Sampler) Sample(channel, count int, delay time.Duration) int {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	if count <= 0 {
		return 0
	}

	clock := s.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	start := clock.Now()

	values := make([]int, 0, count)
	for i := 0; i < count; i++ {
		v, err := s.ADC.Read(channel)
		if err != nil {
			log.Error("adc read failed", "channel", channel, "sample", i, "error", err)
			return 0
		}
		values = append(values, v)
		if s.Pulse != nil {
			s.Pulse()
		}
		if delay > 0 && i < count-1 {
			clock.Sleep(delay)
		}
	}

	avg := TrimmedMean(values)
	log.Debug("channel sampled", "channel", channel, "samples", count, "delay", delay, "avg", avg, "took", clock.Since(start))
	return avg
}

// TrimmedMean drops a unique minimum and a unique maximum before taking the
// integer mean. Flat sets, and sets where trimming would leave nothing, use
// the plain mean.
func TrimmedMean(values []int) int {
	n := len(values)
	if n == 0 {
		return 0
	}

	sum := 0
	lo, hi := values[0], values[0]
	for _, v := range values {
		sum += v
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		return sum / n
	}

	loCount, hiCount := 0, 0
	for _, v := range values {
		if v == lo {
			loCount++
		}
		if v == hi {
			hiCount++
		}
	}

	trimmed, div := sum, n
	if loCount == 1 {
		trimmed -= lo
		div--
	}
	if hiCount == 1 {
		trimmed -= hi
		div--
	}
	if div < 1 {
		return sum / n
	}
	return trimmed / div
}
