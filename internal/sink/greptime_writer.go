package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"soilnode/internal/telemetry"
)

// DefaultTable is the GreptimeDB table soil records land in.
const DefaultTable = "soil_telemetry"

const defaultGreptimePort = 4001

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes records to GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client greptimeClient
	table  string
	// loc interprets record timestamps, which carry no zone.
	loc *time.Location
	log *slog.Logger
}

// NewGreptimeDBWriter connects to endpoint (host or host:port).
func NewGreptimeDBWriter(endpoint, database, tableName string, loc *time.Location, log *slog.Logger) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	if tableName == "" {
		tableName = DefaultTable
	}
	if loc == nil {
		loc = time.UTC
	}
	return &GreptimeDBWriter{client: client, table: tableName, loc: loc, log: log}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, p, err := net.SplitHostPort(endpoint)
	if err != nil {
		// bare host
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("greptime endpoint port %q: %w", p, err)
	}
	return host, port, nil
}

// Write inserts a single record.
func (w *GreptimeDBWriter) Write(row telemetry.Record) error {
	return w.WriteBatch([]telemetry.Record{row})
}

// WriteBatch inserts multiple records in one request.
func (w *GreptimeDBWriter) WriteBatch(rows []telemetry.Record) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := w.newTable()
	if err != nil {
		return err
	}
	for _, r := range rows {
		loc := w.loc
		if loc == nil {
			loc = time.UTC
		}
		ts, err := time.ParseInLocation(telemetry.TimestampLayout, r.Timestamp, loc)
		if err != nil {
			return fmt.Errorf("record %s/%d timestamp %q: %w", r.DeviceID, r.SensorID, r.Timestamp, err)
		}
		volts, err := strconv.ParseFloat(r.BattVolt, 64)
		if err != nil {
			return fmt.Errorf("record %s/%d batt_volt %q: %w", r.DeviceID, r.SensorID, r.BattVolt, err)
		}
		if err := tbl.AddRow(
			r.DeviceID,
			int64(r.SensorID),
			int64(r.SoilValue),
			string(r.StatusBit),
			volts,
			int64(r.BattPct),
			r.Reason,
			int64(r.Version),
			ts,
		); err != nil {
			return fmt.Errorf("add row: %w", err)
		}
	}

	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		w.logger().Error("greptime write failed", "table", w.table, "error", err)
		return err
	}
	w.logger().Debug("greptime rows written", "table", w.table, "rows", len(rows))
	return nil
}

func (w *GreptimeDBWriter) logger() *slog.Logger {
	if w.log == nil {
		return slog.Default()
	}
	return w.log
}

func (w *GreptimeDBWriter) newTable() (*table.Table, error) {
	tbl, err := table.New(w.table)
	if err != nil {
		return nil, err
	}
	cols := []struct {
		name string
		kind types.ColumnType
		tag  bool
	}{
		{"device_id", types.STRING, true},
		{"sensor_id", types.INT64, true},
		{"soil_value", types.INT64, false},
		{"status_bit", types.STRING, false},
		{"batt_volt", types.FLOAT64, false},
		{"batt_pct", types.INT64, false},
		{"reason", types.STRING, false},
		{"version", types.INT64, false},
	}
	for _, c := range cols {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.kind)
		} else {
			err = tbl.AddFieldColumn(c.name, c.kind)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}
