package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/muurk/easyfire/internal/sensor"
)

// SensorCollector exports the table's current values as gauges at scrape time.
// Values that have not been decoded yet are omitted.
type SensorCollector struct {
	table *sensor.Table

	temperature *prometheus.Desc
	flag        *prometheus.Desc
	updated     *prometheus.Desc
}

// NewSensorCollector creates a collector reading from table
func NewSensorCollector(table *sensor.Table) *SensorCollector {
	return &SensorCollector{
		table: table,
		temperature: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sensor", "temperature_celsius"),
			"Latest decoded temperature.",
			[]string{"sensor", "index"}, nil,
		),
		flag: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sensor", "flag"),
			"Latest decoded control flag (0 or 1).",
			[]string{"sensor", "index"}, nil,
		),
		updated: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sensor", "updated_timestamp_seconds"),
			"Unix time the sensor value was last updated.",
			[]string{"sensor"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *SensorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.temperature
	ch <- c.flag
	ch <- c.updated
}

// Collect implements prometheus.Collector
func (c *SensorCollector) Collect(ch chan<- prometheus.Metric) {
	for _, e := range c.table.Snapshot().Entries() {
		if !e.Value.Valid {
			continue
		}
		index := strconv.Itoa(e.Index)
		switch e.Kind {
		case sensor.KindTemperature:
			ch <- prometheus.MustNewConstMetric(c.temperature, prometheus.GaugeValue, e.Value.Temperature.Celsius(), e.Name, index)
		case sensor.KindFlag:
			v := 0.0
			if e.Value.Flag {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(c.flag, prometheus.GaugeValue, v, e.Name, index)
		default:
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.updated, prometheus.GaugeValue, float64(e.Value.UpdatedAt.UnixNano())/1e9, e.Name)
	}
}
