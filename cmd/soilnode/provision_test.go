package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"soilnode/internal/config"
	"soilnode/internal/logging"
	"soilnode/internal/nvs"
	"soilnode/internal/queue"
)

func changedSet(names ...string) func(string) bool {
	return func(n string) bool {
		for _, x := range names {
			if x == n {
				return true
			}
		}
		return false
	}
}

func TestApplyProvisioningFreshStore(t *testing.T) {
	store := nvs.Memory()
	provSSID, provCollectorURL = "field", "http://collector/api"
	t.Cleanup(func() { provSSID, provCollectorURL = "", "" })

	if err := applyProvisioning(store, changedSet("ssid", "collector-url")); err != nil {
		t.Fatalf("applyProvisioning: %v", err)
	}
	p, err := nvs.LoadProvisioning(store)
	if err != nil {
		t.Fatalf("LoadProvisioning: %v", err)
	}
	if p.SSID != "field" || p.CollectorURL != "http://collector/api" || p.ADCOffset != 0 {
		t.Fatalf("provisioning = %+v", p)
	}
}

func TestApplyProvisioningKeepsUnchanged(t *testing.T) {
	store := nvs.Memory()
	nvs.Provisioning{SSID: "old", TimeServer: "pool.ntp.org", ADCOffset: 40}.Save(store)
	provSSID = "new"
	t.Cleanup(func() { provSSID = "" })

	if err := applyProvisioning(store, changedSet("ssid")); err != nil {
		t.Fatalf("applyProvisioning: %v", err)
	}
	p, _ := nvs.LoadProvisioning(store)
	if p.SSID != "new" || p.TimeServer != "pool.ntp.org" || p.ADCOffset != 40 {
		t.Fatalf("provisioning = %+v", p)
	}
}

func TestApplyProvisioningCorruptOffset(t *testing.T) {
	store := nvs.Memory()
	store.SetString(nvs.SlotADCOffset, "garbage")

	err := applyProvisioning(store, changedSet("ssid"))
	if !errors.Is(err, nvs.ErrCalibration) {
		t.Fatalf("expected calibration error, got %v", err)
	}

	provADCOffset = -12
	t.Cleanup(func() { provADCOffset = 0 })
	if err := applyProvisioning(store, changedSet("adc-offset")); err != nil {
		t.Fatalf("repair: %v", err)
	}
	if n, _ := store.GetInt(nvs.SlotADCOffset); n != -12 {
		t.Fatalf("offset = %d", n)
	}
}

func TestStatusPlain(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	store := nvs.Memory()
	nvs.Provisioning{SSID: "field", Password: "secret"}.Save(store)
	store.SetInt(nvs.SlotIter, 3)
	store.SetString(nvs.SlotPowerState, "awake")

	q, err := queue.Open(cfg.QueueDir(), logging.Discard())
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := q.Enqueue([]byte(`{"sensor_id":36}`)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var buf bytes.Buffer
	renderStatus(&buf, collectStatus(&cfg, store, q, nil), false)
	out := buf.String()
	for _, want := range []string{"3 of 5", "1 records", "field", "awake"} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "secret") {
		t.Fatalf("password leaked:\n%s", out)
	}
}

func TestStatusQueueUnavailable(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "x")
	var buf bytes.Buffer
	renderStatus(&buf, collectStatus(&cfg, nvs.Memory(), nil, queue.ErrUnavailable), false)
	if !strings.Contains(buf.String(), "queue") {
		t.Fatalf("status = %s", buf.String())
	}
}
