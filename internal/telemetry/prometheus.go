package telemetry

import (
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bsec_exporter"

type Prometheus struct {
	threshold int

	cycles         prometheus.Counter
	sensorFailures prometheus.Counter
	engineErrors   *prometheus.CounterVec
	consecutive    prometheus.Gauge
	degraded       prometheus.Gauge
	stateSaves     *prometheus.CounterVec
	coldStart      prometheus.Gauge
	lastPublish    prometheus.Gauge
}

// NewPrometheus registers the self-metrics with reg. The degraded gauge flips
// to 1 once consecutive sensor failures reach threshold.
func NewPrometheus(reg prometheus.Registerer, threshold int) (*Prometheus, error) {
	p := &Prometheus{
		threshold: threshold,
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed sample/process/publish cycles.",
		}),
		sensorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_failures_total",
			Help:      "Failed sensor reads.",
		}),
		engineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Fusion engine errors by class.",
		}, []string{"class"}),
		consecutive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Sensor reads failed in a row.",
		}),
		degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "degraded",
			Help:      "1 while published values are stale because of repeated sensor failures.",
		}),
		stateSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_saves_total",
			Help:      "Engine state saves by result.",
		}, []string{"result"}),
		coldStart: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cold_start",
			Help:      "1 when the engine started without prior state.",
		}),
		lastPublish: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_publish_timestamp_seconds",
			Help:      "Unix time of the last published cycle.",
		}),
	}

	for _, c := range []prometheus.Collector{
		p.cycles, p.sensorFailures, p.engineErrors, p.consecutive,
		p.degraded, p.stateSaves, p.coldStart, p.lastPublish,
	} {
		if err := reg.Register(c); err != nil {
			return nil, errors.New().Wrap(ErrRegister, err)
		}
	}

	// expose both label values from the start
	p.stateSaves.WithLabelValues("success")
	p.stateSaves.WithLabelValues("failure")

	return p, nil
}

func (p *Prometheus) CycleCompleted(published time.Time) {
	p.cycles.Inc()
	p.lastPublish.Set(float64(published.UnixNano()) / 1e9)
}

func (p *Prometheus) SensorFailure(consecutive int) {
	p.sensorFailures.Inc()
	p.consecutive.Set(float64(consecutive))
	if p.threshold > 0 && consecutive >= p.threshold {
		p.degraded.Set(1)
	}
}

func (p *Prometheus) SensorRecovered() {
	p.consecutive.Set(0)
	p.degraded.Set(0)
}

func (p *Prometheus) EngineError(class string) {
	p.engineErrors.WithLabelValues(class).Inc()
}

func (p *Prometheus) StateSaved(err error) {
	if err != nil {
		p.stateSaves.WithLabelValues("failure").Inc()
		return
	}
	p.stateSaves.WithLabelValues("success").Inc()
}

func (p *Prometheus) ColdStart(cold bool) {
	if cold {
		p.coldStart.Set(1)
		return
	}
	p.coldStart.Set(0)
}
