package sink

import (
	"fmt"
	"io"
	"os"

	"soilnode/internal/telemetry"
)

// JSONStdoutWriter prints records as JSON lines, the same bytes the node queues.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// Write outputs a record in JSON format.
func (w *JSONStdoutWriter) Write(row telemetry.Record) error {
	data, err := row.Encode()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteBatch outputs multiple records in JSON format.
func (w *JSONStdoutWriter) WriteBatch(rows []telemetry.Record) error {
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}
