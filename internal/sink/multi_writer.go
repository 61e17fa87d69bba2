package sink

import "soilnode/internal/telemetry"

// MultiWriter fans records out to multiple writers.
type MultiWriter struct {
	writers []RecordWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...RecordWriter) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// Write sends a record to all writers.
func (mw *MultiWriter) Write(row telemetry.Record) error {
	for _, w := range mw.writers {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteBatch sends multiple records to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []telemetry.Record) error {
	for _, w := range mw.writers {
		if err := WriteAll(w, rows); err != nil {
			return err
		}
	}
	return nil
}

// Reject forwards to every writer that observes rejects.
func (mw *MultiWriter) Reject(reason string, size int) {
	for _, w := range mw.writers {
		NotifyReject(w, reason, size)
	}
}
