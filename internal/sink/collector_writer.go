package sink

import (
	"context"
	"fmt"

	"soilnode/internal/link"
	"soilnode/internal/telemetry"
)

// CollectorWriter re-posts records to a collector endpoint, for replaying a
// queue file pulled off a node that never got back online.
type CollectorWriter struct {
	Transport link.Transport
	URL       string
}

func (w *CollectorWriter) Write(row telemetry.Record) error {
	payload, err := row.Encode()
	if err != nil {
		return err
	}
	status, body := w.Transport.Post(context.Background(), w.URL, payload)
	if !link.Delivered(status) {
		return fmt.Errorf("collector returned %d: %s", status, body)
	}
	return nil
}
