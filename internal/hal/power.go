package hal

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

// Power ends a wake cycle.
type Power interface {
	// Sleep powers down until the timer fires after d.
	Sleep(ctx context.Context, d time.Duration) error
	// Hibernate powers down with no timer, waiting for an external wake.
	Hibernate(ctx context.Context) error
}

// HostPower arms an RTC alarm with rtcwake and optionally runs a hibernate
// command. With neither configured it only logs; an external timer is then
// expected to start the next wake.
type HostPower struct {
	RTCWake          string
	RTCMode          string
	HibernateCommand []string
	Log              *slog.Logger
}

func (p HostPower) logger() *slog.Logger {
	if p.Log == nil {
		return slog.Default()
	}
	return p.Log
}

func (p HostPower) Sleep(ctx context.Context, d time.Duration) error {
	secs := int(d.Round(time.Second) / time.Second)
	if p.RTCWake == "" {
		p.logger().Info("sleep requested", "seconds", secs)
		return nil
	}
	mode := p.RTCMode
	if mode == "" {
		mode = "mem"
	}
	cmd := exec.CommandContext(ctx, p.RTCWake, "-m", mode, "-s", strconv.Itoa(secs))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("rtcwake: %w: %s", err, out)
	}
	return nil
}

func (p HostPower) Hibernate(ctx context.Context) error {
	if len(p.HibernateCommand) == 0 {
		p.logger().Warn("hibernate requested, no command configured")
		return nil
	}
	cmd := exec.CommandContext(ctx, p.HibernateCommand[0], p.HibernateCommand[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("hibernate: %w: %s", err, out)
	}
	return nil
}
