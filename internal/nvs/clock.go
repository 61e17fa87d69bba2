package nvs

import (
	"fmt"
	"time"
)

// ClockSync is the last successful time sync: the correction to add to the
// host clock and the host clock reading it was measured at.
type ClockSync struct {
	Offset   time.Duration
	HostTime time.Time
}

// LoadClockSync reads the stored correction. ok is false when none is stored;
// err is set when the slots exist but cannot be parsed.
func LoadClockSync(s *Store) (cs ClockSync, ok bool, err error) {
	off, hasOff := s.GetString(SlotTimeOffset)
	at, hasAt := s.GetString(SlotTimeSyncedAt)
	if !hasOff || !hasAt {
		return ClockSync{}, false, nil
	}
	if cs.Offset, err = time.ParseDuration(off); err != nil {
		return ClockSync{}, false, fmt.Errorf("slot %s: %w", SlotTimeOffset, err)
	}
	if cs.HostTime, err = time.Parse(time.RFC3339Nano, at); err != nil {
		return ClockSync{}, false, fmt.Errorf("slot %s: %w", SlotTimeSyncedAt, err)
	}
	return cs, true, nil
}

// Save writes cs into the store. Commit is left to the caller.
func (cs ClockSync) Save(s *Store) {
	s.SetString(SlotTimeOffset, cs.Offset.String())
	s.SetString(SlotTimeSyncedAt, cs.HostTime.UTC().Format(time.RFC3339Nano))
}

// ClearClockSync forgets the stored correction.
func ClearClockSync(s *Store) {
	s.Delete(SlotTimeOffset)
	s.Delete(SlotTimeSyncedAt)
}
