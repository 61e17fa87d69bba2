package hal

import (
	"fmt"
	"strings"
)

// ResetReason is the cause of the previous restart.
type ResetReason int

const (
	ResetUnknown ResetReason = iota
	ResetPowerOn
	ResetExternal
	ResetSoftware
	ResetPanic
	ResetInterruptWatchdog
	ResetTaskWatchdog
	ResetOtherWatchdog
	ResetDeepSleep
	ResetBrownout
	ResetSDIO
)

var resetNames = map[ResetReason]string{
	ResetUnknown:           "unknown",
	ResetPowerOn:           "power-on reset",
	ResetExternal:          "external reset",
	ResetSoftware:          "software reset",
	ResetPanic:             "panic reset",
	ResetInterruptWatchdog: "interrupt watchdog reset",
	ResetTaskWatchdog:      "task watchdog reset",
	ResetOtherWatchdog:     "other watchdog reset",
	ResetDeepSleep:         "deep sleep reset",
	ResetBrownout:          "brownout reset",
	ResetSDIO:              "SDIO reset",
}

var resetFlags = map[string]ResetReason{
	"unknown":   ResetUnknown,
	"poweron":   ResetPowerOn,
	"external":  ResetExternal,
	"software":  ResetSoftware,
	"panic":     ResetPanic,
	"int-wdt":   ResetInterruptWatchdog,
	"task-wdt":  ResetTaskWatchdog,
	"wdt":       ResetOtherWatchdog,
	"deepsleep": ResetDeepSleep,
	"brownout":  ResetBrownout,
	"sdio":      ResetSDIO,
}

func (r ResetReason) String() string {
	if s, ok := resetNames[r]; ok {
		return s
	}
	return resetNames[ResetUnknown]
}

// Abnormal reports whether the restart should be surfaced as a problem.
func (r ResetReason) Abnormal() bool {
	return r != ResetPowerOn && r != ResetDeepSleep
}

// Problem is the health reason for an abnormal restart, empty otherwise.
func (r ResetReason) Problem() string {
	if !r.Abnormal() {
		return ""
	}
	return "Last reset: " + r.String()
}

// LosesClock reports whether the restart cut power to the clock, which
// invalidates any stored time correction.
func (r ResetReason) LosesClock() bool {
	return r == ResetPowerOn || r == ResetBrownout
}

// ParseResetReason accepts the short flag names (poweron, deepsleep, panic, ...).
func ParseResetReason(s string) (ResetReason, error) {
	r, ok := resetFlags[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return ResetUnknown, fmt.Errorf("unknown reset reason %q", s)
	}
	return r, nil
}

// Power state markers kept in nvs.
const (
	MarkerAwake       = "awake"
	MarkerSleeping    = "sleeping"
	MarkerHibernating = "hibernating"
)

// DetectResetReason derives the restart cause from the marker the previous
// wake left behind. A missing marker is a first power-on; a leftover awake
// marker means the previous cycle never reached sleep.
func DetectResetReason(marker string) ResetReason {
	switch marker {
	case "":
		return ResetPowerOn
	case MarkerSleeping, MarkerHibernating:
		return ResetDeepSleep
	default:
		return ResetUnknown
	}
}
