package main

import (
	"log/slog"
	"os"
	"time"

	"soilnode/internal/link"
	"soilnode/internal/logging"
	"soilnode/internal/sink"
)

// newWriters picks the record sink from flags and env vars. display, when
// set, takes the place of STDOUT. forwardURL, when set, adds a collector
// that receives every record as well.
func newWriters(printOnly bool, forwardURL string, display sink.RecordWriter, loc *time.Location, log *slog.Logger) (sink.RecordWriter, error) {
	base, err := baseWriter(printOnly, display, loc, log)
	if err != nil {
		return nil, err
	}
	if forwardURL == "" {
		return base, nil
	}
	fw := &sink.CollectorWriter{Transport: link.NewHTTPTransport(10*time.Second, log), URL: forwardURL}
	return sink.NewMultiWriter(base, fw), nil
}

// baseWriter chooses STDOUT or GreptimeDB based on printOnly and env vars.
// A display always sees the records, after the database accepted them.
func baseWriter(printOnly bool, display sink.RecordWriter, loc *time.Location, log *slog.Logger) (sink.RecordWriter, error) {
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	if printOnly || endpoint == "" {
		if display != nil {
			return display, nil
		}
		return sink.NewJSONStdoutWriter(), nil
	}
	database := firstNonEmpty(os.Getenv("GREPTIMEDB_DATABASE"), "public")
	table := firstNonEmpty(os.Getenv("GREPTIMEDB_TABLE"), sink.DefaultTable)
	db, err := sink.NewGreptimeDBWriter(endpoint, database, table, loc, log)
	if err != nil {
		return nil, err
	}
	if display != nil {
		return sink.NewMultiWriter(db, display), nil
	}
	return db, nil
}

// startTUI opens the terminal dashboard and routes logging into it.
func startTUI(title string) (*sink.TUIWriter, *slog.Logger) {
	tw := sink.NewTUIWriter(title)
	return tw, logging.NewWithWriter(tw.LogWriter(), verbose)
}
