// Package dutycycle decides, per wake, whether the node pays for a network
// connection or stays local.
package dutycycle

import (
	"errors"
	"fmt"
	"log/slog"

	"soilnode/internal/nvs"
)

// ShouldUpload reports whether this wake is an upload cycle. A node without
// durable queue storage cannot buffer, so it uploads every cycle.
func ShouldUpload(iter, threshold int, storageHealthy bool) bool {
	return iter >= threshold || !storageHealthy
}

// Advance returns the counter value to persist before sleep.
func Advance(iter, threshold int, uploaded bool) int {
	if uploaded || iter >= threshold {
		return 1
	}
	return iter + 1
}

// Normalize maps a missing or out-of-range counter to threshold so the next
// decision is an upload.
func Normalize(iter, threshold int) int {
	if iter < 1 || iter > threshold {
		return threshold
	}
	return iter
}

// Counter persists iter in the nvs store.
type Counter struct {
	Store     *nvs.Store
	Threshold int
	Log       *slog.Logger
}

// Load reads and normalizes the stored counter.
func (c *Counter) Load() int {
	n, err := c.Store.GetInt(nvs.SlotIter)
	if err != nil {
		if !errors.Is(err, nvs.ErrSlotMissing) && c.Log != nil {
			c.Log.Warn("stored duty-cycle counter unreadable", "error", err)
		}
		return c.Threshold
	}
	v := Normalize(n, c.Threshold)
	if v != n && c.Log != nil {
		c.Log.Warn("stored duty-cycle counter out of range", "iter", n, "threshold", c.Threshold)
	}
	return v
}

// Save writes iter and commits the store.
func (c *Counter) Save(iter int) error {
	c.Store.SetInt(nvs.SlotIter, iter)
	if err := c.Store.Commit(); err != nil {
		return fmt.Errorf("persist counter: %w", err)
	}
	return nil
}
