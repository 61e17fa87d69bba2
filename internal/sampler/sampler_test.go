package sampler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soilnode/internal/hal"
)

type scriptADC struct {
	values map[int][]int
	pos    map[int]int
	err    error
}

func (a *scriptADC) Read(channel int) (int, error) {
	if a.err != nil {
		return 0, a.err
	}
	if a.pos == nil {
		a.pos = make(map[int]int)
	}
	vs := a.values[channel]
	v := vs[a.pos[channel]%len(vs)]
	a.pos[channel]++
	return v, nil
}

func TestTrimmedMean(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		values []int
		want   int
	}{
		{"empty", nil, 0},
		{"single", []int{1234}, 1234},
		{"flat", []int{2000, 2000, 2000, 2000}, 2000},
		{"unique spike rejected", []int{1000, 1000, 1000, 4095}, 1000},
		{"unique dip rejected", []int{1500, 1500, 0, 1500}, 1500},
		{"both extremes rejected", []int{10, 100, 100, 100, 900}, 100},
		{"repeated extremes kept", []int{10, 10, 20, 30, 30}, 20},
		{"two distinct values", []int{100, 300}, 200},
		{"max unique only", []int{100, 100, 200, 500}, 133},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TrimmedMean(tc.values))
		})
	}
}

func TestSampleUsesTrimmedMeanAndPulses(t *testing.T) {
	t.Parallel()

	adc := &scriptADC{values: map[int][]int{36: {1800, 1802, 1798, 4095, 1800}}}
	pulses := 0
	s := &Sampler{ADC: adc, Clock: clockwork.NewRealClock(), Pulse: func() { pulses++ }}

	got := s.Sample(36, 5, 0)

	// 4095 and 1798 are unique extremes; remaining mean is 1800
	assert.Equal(t, 1800, got)
	assert.Equal(t, 5, pulses)
}

func TestSampleSleepsBetweenReads(t *testing.T) {
	t.Parallel()

	adc := &scriptADC{values: map[int][]int{39: {3000}}}
	clock := clockwork.NewFakeClock()
	s := &Sampler{ADC: adc, Clock: clock}

	done := make(chan int, 1)
	go func() { done <- s.Sample(39, 3, 10*time.Millisecond) }()

	for i := 0; i < 2; i++ {
		require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
		clock.Advance(10 * time.Millisecond)
	}

	select {
	case got := <-done:
		assert.Equal(t, 3000, got)
	case <-time.After(2 * time.Second):
		t.Fatal("sample did not finish")
	}
}

func TestSampleReadErrorIsSentinel(t *testing.T) {
	t.Parallel()

	s := &Sampler{ADC: &scriptADC{err: errors.New("no such channel")}}
	assert.Equal(t, 0, s.Sample(7, 20, 0))
	assert.Equal(t, 0, s.Sample(7, 0, 0))
}

func TestSampleFlatZeroStaysZero(t *testing.T) {
	t.Parallel()

	s := &Sampler{ADC: &scriptADC{values: map[int][]int{36: {0}}}}
	assert.Equal(t, 0, s.Sample(36, 20, 0))
}

// sysfsFeed rewrites an IIO raw file before every read.
type sysfsFeed struct {
	adc   hal.IIOADC
	path  string
	reads []string
	n     int
}

func (f *sysfsFeed) Read(channel int) (int, error) {
	if err := os.WriteFile(f.path, []byte(f.reads[f.n%len(f.reads)]+"\n"), 0o644); err != nil {
		return 0, err
	}
	f.n++
	return f.adc.Read(channel)
}

func TestSampleSurvivesOverRangeSpike(t *testing.T) {
	dir := t.TempDir()
	feed := &sysfsFeed{
		adc:   hal.IIOADC{Dir: dir, MaxRaw: 4095},
		path:  filepath.Join(dir, "in_voltage36_raw"),
		reads: []string{"2000", "2002", "65535", "1998", "2000"},
	}
	s := &Sampler{ADC: feed, Clock: clockwork.NewFakeClock()}

	got := s.Sample(36, 5, 0)
	assert.Equal(t, 2000, got, "a single over-range read must not turn into the disconnected sentinel")
}
