package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rileyhilliard/upsmon/internal/monitor"
	"github.com/rileyhilliard/upsmon/internal/status"
)

// gaugeField maps a numeric status field to a metric.
type gaugeField struct {
	field string
	desc  *prometheus.Desc
}

// Collector implements prometheus.Collector over the latest loop snapshot.
type Collector struct {
	store *monitor.Store
	host  string

	fields []gaugeField

	up           *prometheus.Desc
	onMains      *prometheus.Desc
	alarmCounter *prometheus.Desc
	threshold    *prometheus.Desc
	triggered    *prometheus.Desc
	failures     *prometheus.Desc
	linkLost     *prometheus.Desc
	running      *prometheus.Desc
	lastPoll     *prometheus.Desc
}

func newDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc("upsmon_"+name, help, []string{"ups"}, nil)
}

// NewCollector creates a collector reading from store. host labels every series.
func NewCollector(store *monitor.Store, host string) *Collector {
	return &Collector{
		store: store,
		host:  host,
		fields: []gaugeField{
			{"input_voltage", newDesc("input_voltage_volts", "AC input voltage")},
			{"input_frequency", newDesc("input_frequency_hertz", "AC input frequency")},
			{"battery_soc", newDesc("battery_charge_percent", "Battery state of charge")},
			{"battery_voltage", newDesc("battery_voltage_volts", "Battery DC voltage")},
			{"battery_temp_c", newDesc("battery_temperature_celsius", "Battery temperature")},
			{"output_voltage", newDesc("output_voltage_volts", "Output voltage")},
			{"output_frequency", newDesc("output_frequency_hertz", "Output frequency")},
			{"output_current", newDesc("output_current_amperes", "Output current")},
			{"output_watts_percent", newDesc("output_load_percent", "Output load as a percentage of rated watts")},
			{"output_va_percent", newDesc("output_va_percent", "Output load as a percentage of rated VA")},
			{"output_efficiency", newDesc("output_efficiency_percent", "Output efficiency")},
			{"output_energy", newDesc("output_energy_kwh", "Energy delivered since the counter was reset")},
		},
		up:           newDesc("up", "Whether the console session is usable (1=yes, 0=no)"),
		onMains:      newDesc("on_mains", "Whether the UPS reports status Online (1=yes, 0=no)"),
		alarmCounter: newDesc("alarm_counter", "Consecutive readings without AC input"),
		threshold:    newDesc("alarm_threshold", "Readings without AC input that trigger a ramp-down"),
		triggered:    newDesc("rampdown_triggered", "Whether the last reading triggered a ramp-down (1=yes, 0=no)"),
		failures:     newDesc("poll_failures", "Consecutive failed polls"),
		linkLost:     newDesc("link_lost", "Whether the link to the UPS is considered lost (1=yes, 0=no)"),
		running:      newDesc("running", "Whether polling is active (1=yes, 0=paused)"),
		lastPoll:     newDesc("last_poll_timestamp_seconds", "Unix time of the last successful reading"),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, f := range c.fields {
		ch <- f.desc
	}
	ch <- c.up
	ch <- c.onMains
	ch <- c.alarmCounter
	ch <- c.threshold
	ch <- c.triggered
	ch <- c.failures
	ch <- c.linkLost
	ch <- c.running
	ch <- c.lastPoll
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap, ok := c.store.Latest()
	if !ok {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0, c.host)
		return
	}

	gauge := func(desc *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, c.host)
	}

	gauge(c.up, boolFloat(snap.Online()))
	gauge(c.alarmCounter, float64(snap.Alarm.Counter))
	gauge(c.threshold, float64(snap.Alarm.Threshold))
	gauge(c.triggered, boolFloat(snap.Triggered))
	gauge(c.failures, float64(snap.Failures))
	gauge(c.linkLost, boolFloat(snap.LinkLost))
	gauge(c.running, boolFloat(snap.Running))

	if snap.Record == nil {
		return
	}

	gauge(c.lastPoll, float64(snap.PolledAt.Unix()))
	if snap.Record.Online != nil {
		gauge(c.onMains, boolFloat(status.Bool(snap.Record.Online)))
	}

	values := snap.Record.Numeric()
	for _, f := range c.fields {
		if v, ok := values[f.field]; ok {
			gauge(f.desc, v)
		}
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
