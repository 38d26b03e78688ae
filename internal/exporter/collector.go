// Package exporter serves the bridge contents as Prometheus metrics.
package exporter

import (
	"codeberg.org/mutker/bsec-exporter/internal/bridge"
	"codeberg.org/mutker/bsec-exporter/internal/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// Source is the read side of the metrics bridge.
type Source interface {
	Read() *bridge.Snapshot
}

type descPair struct {
	value    *prometheus.Desc
	accuracy *prometheus.Desc
}

// Collector turns one bridge snapshot per scrape into gauges. Outputs that
// are not yet available are left out of the scrape.
type Collector struct {
	source Source
	descs  map[engine.OutputKind]descPair
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(source Source, subscribed []engine.OutputKind) *Collector {
	c := &Collector{
		source: source,
		descs:  make(map[engine.OutputKind]descPair, len(subscribed)),
	}

	for _, k := range subscribed {
		spec, ok := catalogue[k]
		if !ok {
			continue
		}
		c.descs[k] = descPair{
			value:    prometheus.NewDesc(spec.valueName(), spec.valueHelp(), nil, nil),
			accuracy: prometheus.NewDesc(spec.accuracyName(), spec.accuracyHelp(), nil, nil),
		}
	}

	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d.value
		ch <- d.accuracy
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Read()

	for _, e := range snap.Available() {
		d, ok := c.descs[e.Kind]
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(d.value, prometheus.GaugeValue, e.Value)
		ch <- prometheus.MustNewConstMetric(d.accuracy, prometheus.GaugeValue, float64(e.Accuracy))
	}
}
