// Package nvs is the node's durable key/value slot store.
//
// Slots are addressed by stable logical keys instead of byte offsets. The
// whole store is one small YAML document replaced atomically on Commit, so a
// power cut leaves either the old or the new contents on disk.
package nvs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LayoutVersion is bumped whenever slot keys or encodings change.
const LayoutVersion = 1

// Slot keys.
const (
	SlotSSID         = "wifi.ssid"
	SlotPassword     = "wifi.password"
	SlotCollectorURL = "collector.url"
	SlotTimeServer   = "time.server"
	SlotIter         = "cycle.iter"
	SlotADCOffset    = "adc.offset"
	SlotDeviceUUID   = "device.uuid"
	SlotPowerState   = "power.state"
	SlotTimeOffset   = "time.offset"
	SlotTimeSyncedAt = "time.synced_at"
)

var (
	ErrSlotMissing = errors.New("slot not set")
	ErrLayout      = errors.New("unsupported nvs layout")
)

type document struct {
	Layout int               `yaml:"layout"`
	Slots  map[string]string `yaml:"slots"`
}

// Store holds slot values in memory until Commit.
type Store struct {
	path  string
	slots map[string]string
	dirty bool
}

// Open loads the store at path. A missing file is an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, slots: make(map[string]string)}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read nvs: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse nvs: %w", err)
	}
	if doc.Layout > LayoutVersion {
		return nil, fmt.Errorf("%w: %d", ErrLayout, doc.Layout)
	}
	for k, v := range doc.Slots {
		s.slots[k] = v
	}
	return s, nil
}

// Memory returns a store that is never persisted. Commit is a no-op.
func Memory() *Store {
	return &Store{slots: make(map[string]string)}
}

// Path returns the backing file, empty for memory stores.
func (s *Store) Path() string { return s.path }

// GetString returns a string slot.
func (s *Store) GetString(key string) (string, bool) {
	v, ok := s.slots[key]
	return v, ok
}

// GetInt returns an integer slot. Missing slots return ErrSlotMissing;
// non-numeric contents return the strconv error.
func (s *Store) GetInt(key string) (int, error) {
	v, ok := s.slots[key]
	if !ok {
		return 0, fmt.Errorf("%s: %w", key, ErrSlotMissing)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// SetString stores a string slot.
func (s *Store) SetString(key, value string) {
	if cur, ok := s.slots[key]; ok && cur == value {
		return
	}
	s.slots[key] = value
	s.dirty = true
}

// SetInt stores an integer slot.
func (s *Store) SetInt(key string, value int) {
	s.SetString(key, strconv.Itoa(value))
}

// Delete clears a slot.
func (s *Store) Delete(key string) {
	if _, ok := s.slots[key]; ok {
		delete(s.slots, key)
		s.dirty = true
	}
}

// Keys returns the set slot keys in sorted order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.slots))
	for k := range s.slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Commit writes the store if anything changed.
func (s *Store) Commit() error {
	if s.path == "" || !s.dirty {
		return nil
	}
	b, err := yaml.Marshal(document{Layout: LayoutVersion, Slots: s.slots})
	if err != nil {
		return fmt.Errorf("encode nvs: %w", err)
	}
	if err := writeAtomic(s.path, b); err != nil {
		return fmt.Errorf("commit nvs: %w", err)
	}
	s.dirty = false
	return nil
}

func writeAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".nvs-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	d, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer d.Close()
	_ = d.Sync()
	return nil
}
