// Package sink forwards telemetry records to collector-side destinations:
// STDOUT, GreptimeDB or another collector endpoint.
package sink

import "soilnode/internal/telemetry"

// RecordWriter is an interface to support different output writers.
type RecordWriter interface {
	Write(telemetry.Record) error
}

// Optional: writers can also support batch mode
type batchWriter interface {
	WriteBatch([]telemetry.Record) error
}

// WriteAll writes rows using batch mode when w supports it.
func WriteAll(w RecordWriter, rows []telemetry.Record) error {
	if bw, ok := w.(batchWriter); ok {
		return bw.WriteBatch(rows)
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// RejectObserver is implemented by writers that also report records which
// never reached Write, such as malformed POSTs or torn queue lines.
type RejectObserver interface {
	Reject(reason string, size int)
}

// NotifyReject tells w about a dropped record if it cares.
func NotifyReject(w RecordWriter, reason string, size int) {
	if ro, ok := w.(RejectObserver); ok {
		ro.Reject(reason, size)
	}
}
