package sink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"soilnode/internal/telemetry"
)

// ReplayStats counts what a replay did.
type ReplayStats struct {
	Written int
	Skipped int
}

// ReplayLog replays queued records from r to writer. A speed >0 spaces
// writes by the gap between record timestamps divided by speed. If
// speed <= 0, no artificial delay is inserted. Torn lines are skipped.
func ReplayLog(r io.Reader, writer RecordWriter, speed float64, log *slog.Logger) (ReplayStats, error) {
	if log == nil {
		log = slog.Default()
	}
	var stats ReplayStats
	var prev time.Time
	br := bufio.NewReader(r)
	for {
		line, rerr := br.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			if !json.Valid(line) {
				stats.Skipped++
				log.Warn("skipping torn line", "bytes", len(line))
				NotifyReject(writer, "torn line", len(line))
			} else {
				row, err := telemetry.Decode(line)
				if err != nil {
					return stats, err
				}
				ts, terr := time.Parse(telemetry.TimestampLayout, row.Timestamp)
				if terr == nil && !prev.IsZero() && speed > 0 {
					diff := ts.Sub(prev)
					if speed != 1 {
						diff = time.Duration(float64(diff) / speed)
					}
					if diff > 0 {
						time.Sleep(diff)
					}
				}
				if err := writer.Write(row); err != nil {
					return stats, err
				}
				stats.Written++
				if terr == nil {
					prev = ts
				}
			}
		}
		if errors.Is(rerr, io.EOF) {
			return stats, nil
		}
		if rerr != nil {
			return stats, rerr
		}
	}
}

// ReplayLogFile opens a queue file and replays its records.
func ReplayLogFile(path string, writer RecordWriter, speed float64, log *slog.Logger) (ReplayStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReplayStats{}, err
	}
	defer f.Close()
	return ReplayLog(f, writer, speed, log)
}
