package main

import (
	"testing"
	"time"

	"soilnode/internal/logging"
	"soilnode/internal/sink"
	"soilnode/internal/telemetry"
)

type recordingDisplay struct{ rows []telemetry.Record }

func (d *recordingDisplay) Write(r telemetry.Record) error {
	d.rows = append(d.rows, r)
	return nil
}

func TestNewWritersPrintOnly(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "greptime.local:4001")
	w, err := newWriters(true, "", nil, time.UTC, logging.Discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	if _, ok := w.(*sink.JSONStdoutWriter); !ok {
		t.Fatalf("expected *sink.JSONStdoutWriter, got %T", w)
	}
}

func TestNewWritersGreptimeFallback(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	w, err := newWriters(false, "", nil, time.UTC, logging.Discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	if _, ok := w.(*sink.JSONStdoutWriter); !ok {
		t.Fatalf("expected *sink.JSONStdoutWriter, got %T", w)
	}
}

func TestNewWritersForward(t *testing.T) {
	w, err := newWriters(true, "http://collector.local/api", nil, time.UTC, logging.Discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	if _, ok := w.(*sink.MultiWriter); !ok {
		t.Fatalf("expected *sink.MultiWriter, got %T", w)
	}
}

func TestNewWritersDisplayReplacesStdout(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	d := &recordingDisplay{}
	w, err := newWriters(false, "", d, time.UTC, logging.Discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	if w != sink.RecordWriter(d) {
		t.Fatalf("expected the display itself, got %T", w)
	}
}

func TestNewWritersDisplayBesideGreptime(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "127.0.0.1:4001")
	w, err := newWriters(false, "", &recordingDisplay{}, time.UTC, logging.Discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	if _, ok := w.(*sink.MultiWriter); !ok {
		t.Fatalf("expected *sink.MultiWriter, got %T", w)
	}
}
