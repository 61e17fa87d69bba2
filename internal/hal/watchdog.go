package hal

import (
	"fmt"
	"log/slog"
	"os"
)

// Watchdog must be pulsed from every loop that can outlive its timeout.
type Watchdog interface {
	Pulse()
	Close() error
}

// NopWatchdog is used when no hardware watchdog is configured.
type NopWatchdog struct{}

func (NopWatchdog) Pulse()       {}
func (NopWatchdog) Close() error { return nil }

// DevWatchdog drives a Linux watchdog character device.
type DevWatchdog struct {
	f   *os.File
	log *slog.Logger
}

// OpenWatchdog opens device (usually /dev/watchdog). Once open, the kernel
// resets the board unless Pulse is called within the configured timeout.
func OpenWatchdog(device string, log *slog.Logger) (*DevWatchdog, error) {
	f, err := os.OpenFile(device, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open watchdog: %w", err)
	}
	return &DevWatchdog{f: f, log: log}, nil
}

func (w *DevWatchdog) Pulse() {
	if _, err := w.f.Write([]byte{0}); err != nil && w.log != nil {
		w.log.Warn("watchdog pulse failed", "error", err)
	}
}

// Close disarms the watchdog with the magic close character.
func (w *DevWatchdog) Close() error {
	if _, err := w.f.Write([]byte("V")); err != nil {
		w.f.Close()
		return fmt.Errorf("disarm watchdog: %w", err)
	}
	return w.f.Close()
}

// CountingWatchdog counts pulses instead of arming hardware, for bench runs.
type CountingWatchdog struct {
	Pulses int
}

func (c *CountingWatchdog) Pulse()       { c.Pulses++ }
func (c *CountingWatchdog) Close() error { return nil }
