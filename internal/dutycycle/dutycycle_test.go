package dutycycle

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soilnode/internal/nvs"
)

func TestWraparound(t *testing.T) {
	const threshold = 5
	iter := 1
	var uploads []int
	for wake := 1; wake <= 10; wake++ {
		up := ShouldUpload(iter, threshold, true)
		if up {
			uploads = append(uploads, wake)
		}
		iter = Advance(iter, threshold, false)
	}
	assert.Equal(t, []int{5, 10}, uploads)

	assert.True(t, ShouldUpload(5, 5, true))
	assert.Equal(t, 1, Advance(5, 5, false))
}

func TestUnhealthyStorageForcesUpload(t *testing.T) {
	assert.True(t, ShouldUpload(2, 5, false))
	assert.False(t, ShouldUpload(2, 5, true))
}

func TestSuccessfulDeliveryResets(t *testing.T) {
	assert.Equal(t, 1, Advance(3, 5, true))
	assert.Equal(t, 4, Advance(3, 5, false))
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 5}, {-3, 5}, {6, 5}, {1, 1}, {5, 5}, {3, 3},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in, 5), "iter %d", tc.in)
	}
}

func TestCounterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvs.yaml")
	s, err := nvs.Open(path)
	require.NoError(t, err)

	c := &Counter{Store: s, Threshold: 5}
	assert.Equal(t, 5, c.Load(), "first boot uploads")

	require.NoError(t, c.Save(3))

	s2, err := nvs.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 3, (&Counter{Store: s2, Threshold: 5}).Load())
}

func TestCounterCorruptValue(t *testing.T) {
	s := nvs.Memory()
	s.SetString(nvs.SlotIter, "xx")
	assert.Equal(t, 5, (&Counter{Store: s, Threshold: 5}).Load())

	s.SetInt(nvs.SlotIter, 42)
	assert.Equal(t, 5, (&Counter{Store: s, Threshold: 5}).Load())
}
