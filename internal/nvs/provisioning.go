package nvs

import (
	"errors"
	"fmt"
)

// Provisioning is the typed view of the provisioned slots, loaded once per wake.
type Provisioning struct {
	SSID         string
	Password     string
	CollectorURL string
	TimeServer   string
	ADCOffset    int
}

// ErrCalibration reports an absent or non-numeric calibration slot.
var ErrCalibration = errors.New("invalid adc calibration offset")

// LoadProvisioning reads the provisioned slots. A bad calibration offset
// defaults to 0 and is reported through the returned error; every other
// field is still filled in.
func LoadProvisioning(s *Store) (Provisioning, error) {
	var p Provisioning
	p.SSID, _ = s.GetString(SlotSSID)
	p.Password, _ = s.GetString(SlotPassword)
	p.CollectorURL, _ = s.GetString(SlotCollectorURL)
	p.TimeServer, _ = s.GetString(SlotTimeServer)

	off, err := s.GetInt(SlotADCOffset)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrCalibration, err)
	}
	p.ADCOffset = off
	return p, nil
}

// Save writes p into the store. Commit is left to the caller.
func (p Provisioning) Save(s *Store) {
	s.SetString(SlotSSID, p.SSID)
	s.SetString(SlotPassword, p.Password)
	s.SetString(SlotCollectorURL, p.CollectorURL)
	s.SetString(SlotTimeServer, p.TimeServer)
	s.SetInt(SlotADCOffset, p.ADCOffset)
}
