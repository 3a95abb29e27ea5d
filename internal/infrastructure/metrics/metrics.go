package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "unifibridge"

// Collector holds the bridge's Prometheus metrics on a private registry.
//
// It satisfies the unifi.Metrics interface. All methods are safe for
// concurrent use.
type Collector struct {
	registry *prometheus.Registry

	cycles          *prometheus.CounterVec // by result
	cycleDuration   prometheus.Histogram
	stateWrites     *prometheus.CounterVec // by outcome: written, skipped
	channelsCreated prometheus.Counter
	queueLength     prometheus.Gauge
	mqttDrops       prometheus.Counter
}

// New creates a Collector and registers its metrics together with the Go
// runtime and process collectors.
func New() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cycles_total",
			Help:      "Poll cycles by result",
		}, []string{"result"}),

		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of poll cycles from login to drain",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		stateWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "state_writes_total",
			Help:      "Drained state updates by outcome",
		}, []string{"outcome"}),

		channelsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "channels_created_total",
			Help:      "Channel objects created in the object tree",
		}),

		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "queue_length",
			Help:      "State updates queued by the last flattening phase",
		}),

		mqttDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "mqtt_disconnects_total",
			Help:      "Unexpected losses of the MQTT broker connection",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.cycles,
		c.cycleDuration,
		c.stateWrites,
		c.channelsCreated,
		c.queueLength,
		c.mqttDrops,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("registering metric: %w", err)
		}
	}

	return c, nil
}

// ObserveCycle records one finished poll cycle.
func (c *Collector) ObserveCycle(result string, d time.Duration) {
	c.cycles.WithLabelValues(result).Inc()
	c.cycleDuration.Observe(d.Seconds())
}

// ObserveSync records the outcome of one drain.
func (c *Collector) ObserveSync(written, skipped int) {
	c.stateWrites.WithLabelValues("written").Add(float64(written))
	c.stateWrites.WithLabelValues("skipped").Add(float64(skipped))
}

// AddChannelsCreated counts newly created channel objects.
func (c *Collector) AddChannelsCreated(n int) {
	c.channelsCreated.Add(float64(n))
}

// SetQueueLength reports the size of the update queue before draining.
func (c *Collector) SetQueueLength(n int) {
	c.queueLength.Set(float64(n))
}

// ObserveBrokerDisconnect counts one lost MQTT connection.
func (c *Collector) ObserveBrokerDisconnect() {
	c.mqttDrops.Inc()
}

// RegisterGaugeFunc exposes a value sampled at scrape time, such as the
// number of WebSocket clients.
func (c *Collector) RegisterGaugeFunc(name, help string, fn func() float64) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, fn)
	if err := c.registry.Register(g); err != nil {
		return fmt.Errorf("registering %s: %w", name, err)
	}
	return nil
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		Registry: c.registry,
	})
}
