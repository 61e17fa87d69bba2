// YAML node config loader with CUE validation integration
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Sampling controls how many reads make one aggregate.
type Sampling struct {
	Count int           `yaml:"count"`
	Delay time.Duration `yaml:"delay"`
}

// ADC describes the analog front end.
type ADC struct {
	IIODir   string  `yaml:"iio_dir"`
	MaxRaw   int     `yaml:"max_raw"`
	RefVolts float64 `yaml:"ref_volts"`
}

// Battery holds the rail channel and voltage thresholds.
type Battery struct {
	Channel      int     `yaml:"channel"`
	Divider      float64 `yaml:"divider"`
	WarnVolts    float64 `yaml:"warn"`
	MinVolts     float64 `yaml:"min"`
	MaxVolts     float64 `yaml:"max"`
	Disconnected float64 `yaml:"disconnected"`
	Precision    int     `yaml:"precision"`
}

// Moisture sets the warning boundary and which direction means dry.
type Moisture struct {
	Polarity string `yaml:"polarity"`
	WarnRaw  int    `yaml:"warn_raw"`
}

// Network bounds every blocking step on the link.
type Network struct {
	ConnectAttempts int           `yaml:"connect_attempts"`
	ConnectDelay    time.Duration `yaml:"connect_delay"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
	SendDelay       time.Duration `yaml:"send_delay"`
	TimeSyncTimeout time.Duration `yaml:"time_sync_timeout"`
}

// Time is the fixed local offset used for record timestamps.
type Time struct {
	UTCOffset time.Duration `yaml:"utc_offset"`
	DSTOffset time.Duration `yaml:"dst_offset"`
}

// Watchdog configures the hardware watchdog device. Empty device disables it.
type Watchdog struct {
	Device string `yaml:"device"`
}

// Power configures how a cycle ends.
type Power struct {
	RTCWake          string   `yaml:"rtcwake"`
	RTCMode          string   `yaml:"rtc_mode"`
	HibernateCommand []string `yaml:"hibernate_command"`
}

// Metrics configures the node_exporter textfile output.
type Metrics struct {
	Textfile string `yaml:"textfile"`
}

// SimChannel is one simulated input used by --simulate.
type SimChannel struct {
	Channel     int     `yaml:"channel"`
	Baseline    int     `yaml:"baseline"`
	Noise       int     `yaml:"noise"`
	SpikeChance float64 `yaml:"spike_chance"`
}

// Simulation is the ADC profile for bench runs without hardware.
type Simulation struct {
	Seed     int64        `yaml:"seed"`
	Channels []SimChannel `yaml:"channels"`
}

// Sensor is one moisture input.
type Sensor struct {
	Channel int `yaml:"channel"`
}

// NodeConfig is the root configuration of one node build.
type NodeConfig struct {
	Version       int           `yaml:"version"`
	DeviceID      string        `yaml:"device_id"`
	DataDir       string        `yaml:"data_dir"`
	SleepInterval time.Duration `yaml:"sleep_interval"`
	UploadEvery   int           `yaml:"upload_every"`
	Sensors       []Sensor      `yaml:"sensors"`
	Sampling      Sampling      `yaml:"sampling"`
	ADC           ADC           `yaml:"adc"`
	Battery       Battery       `yaml:"battery"`
	Moisture      Moisture      `yaml:"moisture"`
	Network       Network       `yaml:"network"`
	Time          Time          `yaml:"time"`
	Watchdog      Watchdog      `yaml:"watchdog"`
	Power         Power         `yaml:"power"`
	Metrics       Metrics       `yaml:"metrics"`
	Simulation    Simulation    `yaml:"simulation"`
}

// Moisture polarities.
const (
	HigherIsDrier = "higher_is_drier"
	LowerIsDrier  = "lower_is_drier"
)

// Default returns the reference node configuration.
func Default() NodeConfig {
	return NodeConfig{
		Version:       1,
		DataDir:       "/var/lib/soilnode",
		SleepInterval: time.Minute,
		UploadEvery:   5,
		Sensors:       []Sensor{{Channel: 36}},
		Sampling:      Sampling{Count: 20, Delay: 10 * time.Millisecond},
		ADC:           ADC{IIODir: "/sys/bus/iio/devices/iio:device0", MaxRaw: 4095, RefVolts: 3.3},
		Battery: Battery{
			Channel: 39, Divider: 1, WarnVolts: 3.6, MinVolts: 3.1, MaxVolts: 4.2,
			Disconnected: 0.5, Precision: 1,
		},
		// 20% on a 2860 (air) .. 1000 (submerged) scale
		Moisture: Moisture{Polarity: HigherIsDrier, WarnRaw: 2489},
		Network: Network{
			ConnectAttempts: 300, ConnectDelay: 100 * time.Millisecond,
			HTTPTimeout: 10 * time.Second, SendDelay: 100 * time.Millisecond,
			TimeSyncTimeout: 10 * time.Second,
		},
		Time: Time{UTCOffset: -5 * time.Hour, DSTOffset: time.Hour},
	}
}

// Load reads a YAML config, validates it against the embedded CUE schema and
// fills defaults for anything left unset.
func Load(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse is Load for in-memory YAML. name is used in validation errors.
func Parse(name string, data []byte) (*NodeConfig, error) {
	if len(bytes.TrimSpace(data)) > 0 {
		if err := ValidateWithCue(name, data); err != nil {
			return nil, err
		}
	}
	cfg := Default()
	cfg.Sensors = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Sensors) == 0 {
		cfg.Sensors = Default().Sensors
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints the schema cannot express.
func (c *NodeConfig) Validate() error {
	var errs []error
	if c.UploadEvery < 1 {
		errs = append(errs, errors.New("upload_every must be at least 1"))
	}
	if c.Battery.MaxVolts <= c.Battery.MinVolts {
		errs = append(errs, fmt.Errorf("battery.max (%.2f) must exceed battery.min (%.2f)", c.Battery.MaxVolts, c.Battery.MinVolts))
	}
	if c.Battery.Disconnected >= c.Battery.MinVolts {
		errs = append(errs, errors.New("battery.disconnected must be below battery.min"))
	}
	if c.Moisture.Polarity != HigherIsDrier && c.Moisture.Polarity != LowerIsDrier {
		errs = append(errs, fmt.Errorf("moisture.polarity %q is not %s or %s", c.Moisture.Polarity, HigherIsDrier, LowerIsDrier))
	}
	seen := map[int]bool{}
	for _, s := range c.Sensors {
		if seen[s.Channel] {
			errs = append(errs, fmt.Errorf("sensor channel %d listed twice", s.Channel))
		}
		if s.Channel == c.Battery.Channel {
			errs = append(errs, fmt.Errorf("sensor channel %d is the battery channel", s.Channel))
		}
		seen[s.Channel] = true
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	return errors.Join(errs...)
}

// Location is the fixed zone for record timestamps.
func (c *NodeConfig) Location() *time.Location {
	off := c.Time.UTCOffset + c.Time.DSTOffset
	return time.FixedZone(fmt.Sprintf("UTC%+.1f", off.Hours()), int(off/time.Second))
}

// SensorChannels returns the configured moisture channels in order.
func (c *NodeConfig) SensorChannels() []int {
	out := make([]int, len(c.Sensors))
	for i, s := range c.Sensors {
		out[i] = s.Channel
	}
	return out
}

// QueueDir is where the store-and-forward queue lives.
func (c *NodeConfig) QueueDir() string { return filepath.Join(c.DataDir, "queue") }

// NVSPath is the slot store file.
func (c *NodeConfig) NVSPath() string { return filepath.Join(c.DataDir, "nvs.yaml") }
