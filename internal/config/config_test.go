package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, `
version: 3
data_dir: /tmp/node
upload_every: 4
sensors:
  - channel: 32
  - channel: 33
sampling:
  delay: 5ms
moisture:
  polarity: lower_is_drier
  warn_raw: 1200
network:
  connect_delay: 250ms
time:
  utc_offset: -4h
  dst_offset: 0s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Version != 3 || cfg.UploadEvery != 4 {
		t.Errorf("unexpected header: %+v", cfg)
	}
	if got := cfg.SensorChannels(); len(got) != 2 || got[0] != 32 || got[1] != 33 {
		t.Errorf("unexpected sensors: %v", got)
	}
	if cfg.Sampling.Delay != 5*time.Millisecond || cfg.Sampling.Count != 20 {
		t.Errorf("sampling defaults not merged: %+v", cfg.Sampling)
	}
	if cfg.Network.ConnectDelay != 250*time.Millisecond || cfg.Network.ConnectAttempts != 300 {
		t.Errorf("network defaults not merged: %+v", cfg.Network)
	}
	if cfg.Moisture.Polarity != LowerIsDrier {
		t.Errorf("polarity = %q", cfg.Moisture.Polarity)
	}
	_, off := time.Date(2026, 1, 1, 0, 0, 0, 0, cfg.Location()).Zone()
	if off != -4*3600 {
		t.Errorf("zone offset = %d", off)
	}
	if cfg.QueueDir() != "/tmp/node/queue" || cfg.NVSPath() != "/tmp/node/nvs.yaml" {
		t.Errorf("paths: %s %s", cfg.QueueDir(), cfg.NVSPath())
	}
}

func TestLoadConfig_ReferenceFile(t *testing.T) {
	cfg, err := Load("../../config/node.yaml")
	if err != nil {
		t.Fatalf("reference config rejected: %v", err)
	}
	if cfg.Battery.Channel != 39 || cfg.Moisture.WarnRaw != 2489 {
		t.Errorf("unexpected reference config: %+v", cfg)
	}
	if len(cfg.Simulation.Channels) != 2 {
		t.Errorf("simulation channels = %d", len(cfg.Simulation.Channels))
	}
}

func TestLoadConfig_SchemaRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":    "upload_evry: 5\n",
		"bad polarity":   "moisture:\n  polarity: sideways\n",
		"bad duration":   "sleep_interval: soon\n",
		"zero threshold": "upload_every: 0\n",
		"wrong type":     "sensors:\n  - channel: thirty\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected schema error")
			}
		})
	}
}

func TestValidate_CrossField(t *testing.T) {
	cfg := Default()
	cfg.Battery.MaxVolts = 3.0
	cfg.Sensors = []Sensor{{Channel: 39}, {Channel: 39}}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"battery.max", "listed twice", "battery channel"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestParse_EmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse("empty.yaml", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.UploadEvery != 5 || len(cfg.Sensors) != 1 || cfg.Sensors[0].Channel != 36 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestDefault_MoistureWarnMatchesPercentScale(t *testing.T) {
	const air, submerged, warnPct = 2860, 1000, 20
	warn := Default().Moisture.WarnRaw
	for raw := submerged; raw <= 4095; raw++ {
		pct := (raw - air) * 100 / (submerged - air)
		if got, want := raw >= warn, pct < warnPct; got != want {
			t.Fatalf("raw %d: warns=%v, percent %d says %v", raw, got, pct, want)
		}
	}
}
