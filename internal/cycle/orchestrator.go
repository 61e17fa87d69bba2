// Package cycle runs one wake of the node from reset to sleep.
package cycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"soilnode/internal/config"
	"soilnode/internal/dutycycle"
	"soilnode/internal/escalation"
	"soilnode/internal/hal"
	"soilnode/internal/link"
	"soilnode/internal/logging"
	"soilnode/internal/nvs"
	"soilnode/internal/queue"
	"soilnode/internal/sampler"
	"soilnode/internal/telemetry"
)

// Health reasons raised during a wake.
const (
	ReasonQueueStorage = "Queue storage mount failed"
	ReasonCalibration  = "Invalid ADC calibration offset"
	ReasonNoTime       = "Failed to get any time"
)

// minPlausibleYear marks a clock that was never set.
const minPlausibleYear = 2020

// Ports are the collaborators one wake talks to.
type Ports struct {
	Store     *nvs.Store
	Queue     *queue.Queue
	ADC       hal.ADC
	Watchdog  hal.Watchdog
	Power     hal.Power
	Radio     link.Radio
	TimeSync  link.TimeSync
	Transport link.Transport
	Clock     clockwork.Clock
	DeviceID  string
	// Reset overrides detection from the persisted power state marker.
	Reset *hal.ResetReason
	// Metrics, when set, are filled and written to cfg.Metrics.Textfile.
	Metrics *Metrics
}

// Orchestrator sequences a single wake cycle.
type Orchestrator struct {
	cfg     *config.NodeConfig
	p       Ports
	sampler *sampler.Sampler
	counter *dutycycle.Counter
	builder *telemetry.Builder
	offset  time.Duration
}

// New wires an orchestrator. Missing optional ports get inert defaults.
func New(cfg *config.NodeConfig, p Ports) *Orchestrator {
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Watchdog == nil {
		p.Watchdog = hal.NopWatchdog{}
	}
	if p.Radio == nil {
		p.Radio = link.OfflineRadio{}
	}
	if p.Store == nil {
		p.Store = nvs.Memory()
	}
	if p.Power == nil {
		p.Power = hal.HostPower{}
	}
	if p.Transport == nil {
		p.Transport = link.NewHTTPTransport(cfg.Network.HTTPTimeout, nil)
	}
	o := &Orchestrator{cfg: cfg, p: p}
	o.sampler = &sampler.Sampler{ADC: p.ADC, Clock: p.Clock, Pulse: p.Watchdog.Pulse}
	o.counter = &dutycycle.Counter{Store: p.Store, Threshold: cfg.UploadEvery}
	o.builder = &telemetry.Builder{
		DeviceID: p.DeviceID,
		Version:  cfg.Version,
		Battery: telemetry.BatteryModel{
			MinVolts:  cfg.Battery.MinVolts,
			MaxVolts:  cfg.Battery.MaxVolts,
			WarnVolts: cfg.Battery.WarnVolts,
			Precision: cfg.Battery.Precision,
		},
		Moisture: o.moistureRule(),
		Location: cfg.Location(),
		Now:      o.now,
	}
	return o
}

func (o *Orchestrator) moistureRule() telemetry.MoistureRule {
	return telemetry.MoistureRule{Polarity: telemetry.Polarity(o.cfg.Moisture.Polarity), WarnRaw: o.cfg.Moisture.WarnRaw}
}

// now is the node clock corrected by the last time sync.
func (o *Orchestrator) now() time.Time {
	return o.p.Clock.Now().Add(o.offset)
}

func (o *Orchestrator) clockPlausible() bool {
	return o.now().Year() >= minPlausibleYear
}

// Run executes one wake. It never returns an error: every failure is logged,
// folded into the outcome and the cycle still reaches sleep.
func (o *Orchestrator) Run(ctx context.Context) Outcome {
	out := Outcome{CycleID: uuid.NewString(), Started: o.p.Clock.Now(), Soil: map[int]int{}}
	log := logging.FromContext(ctx).With("cycle", out.CycleID)
	ctx = logging.NewContext(ctx, log)
	o.sampler.Log = log
	o.counter.Log = log

	// WAKE
	out.Reset = o.resetReason()
	if problem := out.Reset.Problem(); problem != "" {
		log.Warn("abnormal restart", "reason", out.Reset.String())
		out.Health.Flag(problem)
	} else {
		log.Info("woke", "reason", out.Reset.String())
	}
	o.restoreClock(log, out.Reset, &out)
	o.p.Store.SetString(nvs.SlotPowerState, hal.MarkerAwake)
	if err := o.p.Store.Commit(); err != nil {
		log.Error("mark awake", "error", err)
	}

	if !o.p.Queue.Ready() {
		log.Error("queue storage unavailable, every cycle will upload")
		out.Health.Flag(ReasonQueueStorage)
	}

	prov, err := nvs.LoadProvisioning(o.p.Store)
	if err != nil {
		log.Warn("calibration offset defaulted to 0", "error", err)
		out.Health.Flag(ReasonCalibration)
	}

	// DECIDE_CYCLE
	threshold := o.cfg.UploadEvery
	out.IterBefore = o.counter.Load()
	plausible := o.clockPlausible()
	out.Upload = dutycycle.ShouldUpload(out.IterBefore, threshold, o.p.Queue.Ready()) || !plausible
	iter := dutycycle.Advance(out.IterBefore, threshold, out.Upload)
	log.Info("duty cycle", "iter", out.IterBefore, "upload_every", threshold, "upload", out.Upload, "clock_plausible", plausible)

	if out.Upload {
		o.connectAndDrain(ctx, prov, &out)
	}

	// SAMPLE_BATTERY
	out.BattVolts = o.sampleBattery()
	out.BattPct = telemetry.BatteryPercent(out.BattVolts, o.cfg.Battery.MinVolts, o.cfg.Battery.MaxVolts)
	switch {
	case escalation.Critical(out.BattVolts, o.cfg.Battery.MinVolts, o.cfg.Battery.Disconnected):
		log.Error("battery critical, hibernating", "volts", out.BattVolts, "pct", out.BattPct)
		out.IterAfter = iter
		o.persist(log, iter, hal.MarkerHibernating)
		out.Hibernated = true
		o.finish(log, &out)
		if err := o.p.Power.Hibernate(ctx); err != nil {
			log.Error("hibernate", "error", err)
		}
		return out
	case escalation.Disconnected(out.BattVolts, o.cfg.Battery.Disconnected):
		log.Error("battery disconnected", "volts", out.BattVolts)
	case out.BattVolts < o.cfg.Battery.WarnVolts:
		log.Warn("battery low", "volts", out.BattVolts, "pct", out.BattPct)
	default:
		log.Info("battery normal", "volts", out.BattVolts, "pct", out.BattPct)
	}

	// SAMPLE_SENSORS, once, so escalation and records see the same values
	channels := o.cfg.SensorChannels()
	for _, ch := range channels {
		out.Soil[ch] = o.sampleSoil(ch, prov.ADCOffset)
	}

	// ESCALATION_CHECK
	th := escalation.Thresholds{WarnVolts: o.cfg.Battery.WarnVolts, Moisture: o.moistureRule()}
	for _, ch := range channels {
		if escalation.ShouldForceConnect(out.BattVolts, out.Soil[ch], o.p.Radio.Connected(), iter, th) {
			log.Warn("threshold crossed, connecting early", "sensor", ch, "soil", out.Soil[ch], "volts", out.BattVolts)
			out.Forced = true
			o.connectAndDrain(ctx, prov, &out)
			break
		}
	}

	if !o.clockPlausible() {
		log.Error("no valid wall clock, timestamps will be wrong")
		out.Health.Flag(ReasonNoTime)
	}

	// BUILD_RECORD + DELIVER_OR_ENQUEUE
	for _, ch := range channels {
		o.p.Watchdog.Pulse()
		rec := o.builder.Build(ch, out.Soil[ch], out.BattVolts, out.Health)
		out.Records = append(out.Records, rec)
		log.Info("record built", "sensor", ch, "soil", rec.SoilValue, "status", rec.StatusBit.String(), "batt", rec.BattVolt, "pct", rec.BattPct, "ts", rec.Timestamp)
		o.deliverOrEnqueue(ctx, log, rec, prov.CollectorURL, &out)
	}

	// PERSIST_COUNTER
	if out.Delivered > 0 || out.Drain.Delivered > 0 {
		iter = 1
	}
	out.IterAfter = iter
	o.persist(log, iter, hal.MarkerSleeping)
	o.finish(log, &out)

	// SLEEP
	if out.Health.Problem {
		log.Warn("system problem this cycle", "reason", out.Health.Reason)
	}
	log.Info("cycle complete, sleeping", "interval", o.cfg.SleepInterval, "delivered", out.Delivered, "queued", out.Queued, "dropped", out.Dropped)
	if err := o.p.Power.Sleep(ctx, o.cfg.SleepInterval); err != nil {
		log.Error("sleep", "error", err)
	}
	return out
}

// restoreClock applies the correction from the last successful sync, which
// lets duty cycling resume on a host whose clock was never set. It is
// discarded when the restart cut clock power or the host clock went
// backwards since it was measured.
func (o *Orchestrator) restoreClock(log *slog.Logger, reset hal.ResetReason, out *Outcome) {
	cs, ok, err := nvs.LoadClockSync(o.p.Store)
	switch {
	case err != nil:
		log.Warn("stored time correction unreadable", "error", err)
		nvs.ClearClockSync(o.p.Store)
		return
	case !ok:
		return
	case reset.LosesClock():
		log.Info("time correction dropped after power loss", "reset", reset.String())
		nvs.ClearClockSync(o.p.Store)
		return
	case o.p.Clock.Now().Before(cs.HostTime):
		log.Warn("host clock went backwards, time correction dropped", "synced_at", cs.HostTime)
		nvs.ClearClockSync(o.p.Store)
		return
	}
	o.offset = cs.Offset
	out.ClockOffset = cs.Offset
	log.Debug("time correction restored", "offset", cs.Offset, "synced_at", cs.HostTime)
}

func (o *Orchestrator) resetReason() hal.ResetReason {
	if o.p.Reset != nil {
		return *o.p.Reset
	}
	marker, _ := o.p.Store.GetString(nvs.SlotPowerState)
	return hal.DetectResetReason(marker)
}

// connectAndDrain brings the link up, syncs time and replays the queue.
// Failure leaves the cycle offline.
func (o *Orchestrator) connectAndDrain(ctx context.Context, prov nvs.Provisioning, out *Outcome) {
	log := logging.FromContext(ctx)
	if o.p.Radio.Connected() {
		return
	}
	creds := link.Credentials{SSID: prov.SSID, Password: prov.Password, Endpoint: prov.CollectorURL}
	if err := o.p.Radio.Connect(ctx, creds); err != nil {
		log.Error("link down, continuing offline", "error", err)
		return
	}
	out.Connected = true

	if o.p.TimeSync != nil {
		sctx, cancel := context.WithTimeout(ctx, o.cfg.Network.TimeSyncTimeout)
		off, err := o.p.TimeSync.Sync(sctx, prov.TimeServer)
		cancel()
		if err != nil {
			log.Warn("time sync failed", "server", prov.TimeServer, "error", err)
		} else {
			o.offset = off
			out.ClockOffset = off
			nvs.ClockSync{Offset: off, HostTime: o.p.Clock.Now()}.Save(o.p.Store)
			log.Info("time synced", "server", prov.TimeServer, "offset", off, "now", o.now().In(o.cfg.Location()).Format(telemetry.TimestampLayout))
		}
	}

	res, err := o.p.Queue.Drain(func(line []byte) bool {
		o.p.Watchdog.Pulse()
		status, body := o.p.Transport.Post(ctx, prov.CollectorURL, line)
		if o.cfg.Network.SendDelay > 0 {
			o.p.Clock.Sleep(o.cfg.Network.SendDelay)
		}
		if !link.Delivered(status) {
			log.Warn("queued record rejected", "status", status, "body", body)
			return false
		}
		return true
	})
	if err != nil {
		log.Error("drain queue", "error", err)
	}
	out.Drained = true
	out.Drain.Attempted += res.Attempted
	out.Drain.Delivered += res.Delivered
	out.Drain.Discarded += res.Discarded
	out.Drain.AllSucceeded = res.AllSucceeded
}

func (o *Orchestrator) sampleBattery() float64 {
	raw := o.sampler.Sample(o.cfg.Battery.Channel, o.cfg.Sampling.Count, o.cfg.Sampling.Delay)
	return hal.RawToVolts(raw, o.cfg.ADC.MaxRaw, o.cfg.ADC.RefVolts, o.cfg.Battery.Divider)
}

// sampleSoil applies the calibration offset to live readings only; the
// disconnected sentinel stays 0.
func (o *Orchestrator) sampleSoil(ch, offset int) int {
	v := o.sampler.Sample(ch, o.cfg.Sampling.Count, o.cfg.Sampling.Delay)
	if v == 0 {
		return 0
	}
	v += offset
	if v < 1 {
		v = 1
	}
	return v
}

func (o *Orchestrator) deliverOrEnqueue(ctx context.Context, log *slog.Logger, rec telemetry.Record, url string, out *Outcome) {
	payload, err := rec.Encode()
	if err != nil {
		log.Error("encode record", "sensor", rec.SensorID, "error", err)
		out.Dropped++
		return
	}
	if o.p.Radio.Connected() {
		status, body := o.p.Transport.Post(ctx, url, payload)
		if link.Delivered(status) {
			log.Info("record delivered", "sensor", rec.SensorID)
			out.Delivered++
			return
		}
		log.Warn("delivery failed, queueing", "sensor", rec.SensorID, "status", status, "body", body)
	} else if out.Upload || out.Forced {
		log.Warn("link down, queueing", "sensor", rec.SensorID)
	} else {
		log.Info("local cycle, queueing", "sensor", rec.SensorID)
	}

	if err := o.p.Queue.Enqueue(payload); err != nil {
		if errors.Is(err, queue.ErrUnavailable) {
			log.Error("record dropped, no queue storage", "sensor", rec.SensorID)
		} else {
			log.Error("record dropped", "sensor", rec.SensorID, "error", err)
		}
		out.Dropped++
		return
	}
	out.Queued++
}

func (o *Orchestrator) persist(log *slog.Logger, iter int, marker string) {
	o.p.Store.SetString(nvs.SlotPowerState, marker)
	if err := o.counter.Save(iter); err != nil {
		log.Error("persist counter", "iter", iter, "error", err)
	}
}

func (o *Orchestrator) finish(log *slog.Logger, out *Outcome) {
	out.Finished = o.p.Clock.Now()
	if o.p.Metrics == nil {
		return
	}
	o.p.Metrics.Observe(*out)
	if path := o.cfg.Metrics.Textfile; path != "" {
		if err := o.p.Metrics.WriteTextfile(path); err != nil {
			log.Warn("metrics not written", "error", err)
		}
	}
}
