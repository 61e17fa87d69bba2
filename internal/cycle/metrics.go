package cycle

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics describe the last wake. The process exits after every cycle, so
// they are written once to a node_exporter textfile instead of being served.
type Metrics struct {
	reg *prometheus.Registry

	Upload          prometheus.Gauge
	Forced          prometheus.Gauge
	Connected       prometheus.Gauge
	Hibernated      prometheus.Gauge
	HealthProblem   prometheus.Gauge
	Iter            prometheus.Gauge
	BatteryVolts    prometheus.Gauge
	BatteryPercent  prometheus.Gauge
	SoilRaw         *prometheus.GaugeVec
	Records         *prometheus.GaugeVec
	DrainRecords    *prometheus.GaugeVec
	ClockOffset     prometheus.Gauge
	Duration        prometheus.Gauge
	LastCycleSecond prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		Upload: factory.NewGauge(prometheus.GaugeOpts{
			Name: "soilnode_cycle_upload",
			Help: "1 if the last wake was a duty-cycle upload cycle",
		}),
		Forced: factory.NewGauge(prometheus.GaugeOpts{
			Name: "soilnode_cycle_escalated",
			Help: "1 if thresholds forced a connection outside the duty cycle",
		}),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "soilnode_link_connected",
			Help: "1 if the link came up during the last wake",
		}),
		Hibernated: factory.NewGauge(prometheus.GaugeOpts{
			Name: "soilnode_hibernated",
			Help: "1 if the last wake ended in hibernation on a critical battery",
		}),
		HealthProblem: factory.NewGauge(prometheus.GaugeOpts{
			Name: "soilnode_health_problem",
			Help: "1 if a system problem was flagged during the last wake",
		}),
		Iter: factory.NewGauge(prometheus.GaugeOpts{
			Name: "soilnode_cycle_iter",
			Help: "Duty-cycle counter persisted for the next wake",
		}),
		BatteryVolts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "soilnode_battery_volts",
			Help: "Trimmed-mean battery rail voltage",
		}),
		BatteryPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "soilnode_battery_percent",
			Help: "Battery charge estimate",
		}),
		SoilRaw: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "soilnode_soil_raw",
			Help: "Trimmed-mean raw moisture reading per sensor channel",
		}, []string{"sensor"}),
		Records: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "soilnode_records",
			Help: "Records built in the last wake by outcome",
		}, []string{"result"}),
		DrainRecords: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "soilnode_queue_drain_records",
			Help: "Queued records handled by the last drain pass",
		}, []string{"result"}),
		ClockOffset: factory.NewGauge(prometheus.GaugeOpts{
			Name: "soilnode_clock_offset_seconds",
			Help: "Offset applied from the last time sync",
		}),
		Duration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "soilnode_cycle_duration_seconds",
			Help: "Wall time spent awake",
		}),
		LastCycleSecond: factory.NewGauge(prometheus.GaugeOpts{
			Name: "soilnode_last_cycle_timestamp_seconds",
			Help: "Unix time the last wake finished",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Observe records an outcome.
func (m *Metrics) Observe(o Outcome) {
	m.Upload.Set(b2f(o.Upload))
	m.Forced.Set(b2f(o.Forced))
	m.Connected.Set(b2f(o.Connected))
	m.Hibernated.Set(b2f(o.Hibernated))
	m.HealthProblem.Set(b2f(o.Health.Problem))
	m.Iter.Set(float64(o.IterAfter))
	m.BatteryVolts.Set(o.BattVolts)
	m.BatteryPercent.Set(float64(o.BattPct))
	for ch, v := range o.Soil {
		m.SoilRaw.WithLabelValues(strconv.Itoa(ch)).Set(float64(v))
	}
	m.Records.WithLabelValues("delivered").Set(float64(o.Delivered))
	m.Records.WithLabelValues("queued").Set(float64(o.Queued))
	m.Records.WithLabelValues("dropped").Set(float64(o.Dropped))
	m.DrainRecords.WithLabelValues("delivered").Set(float64(o.Drain.Delivered))
	m.DrainRecords.WithLabelValues("failed").Set(float64(o.Drain.Attempted - o.Drain.Delivered))
	m.DrainRecords.WithLabelValues("discarded").Set(float64(o.Drain.Discarded))
	m.ClockOffset.Set(o.ClockOffset.Seconds())
	m.Duration.Set(o.Finished.Sub(o.Started).Seconds())
	m.LastCycleSecond.Set(float64(o.Finished.Unix()))
}

// WriteTextfile writes the registry in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
