package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles Prometheus metrics for a simulation run and
// exposes them over HTTP.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Requests          *prometheus.CounterVec
	CompletionSeconds *prometheus.HistogramVec
	TickDuration      prometheus.Histogram

	NodeEnergy      *prometheus.GaugeVec
	TotalEnergy     prometheus.Gauge
	ActiveLinks     prometheus.Gauge
	NodesPoweredOn  prometheus.Gauge
	QoSSatisfaction prometheus.Gauge
	SimulatedTime   prometheus.Gauge
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ntn_requests_total",
		Help: "Requests observed by the simulation, labeled by priority and lifecycle status.",
	}, []string{"priority", "status"})
	requests, err := registerCounterVec(reg, requests, "ntn_requests_total")
	if err != nil {
		return nil, err
	}

	completion := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ntn_request_completion_seconds",
		Help:    "Simulated time from creation to terminal state, labeled by priority.",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 2, 5},
	}, []string{"priority"})
	completion, err = registerHistogramVec(reg, completion, "ntn_request_completion_seconds")
	if err != nil {
		return nil, err
	}

	tickDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ntn_tick_duration_seconds",
		Help:    "Wall-clock time spent computing one simulation tick.",
		Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}), "ntn_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	nodeEnergy := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ntn_node_energy_joules",
		Help: "Cumulative energy consumed per node.",
	}, []string{"node", "variant"})
	nodeEnergy, err = registerGaugeVec(reg, nodeEnergy, "ntn_node_energy_joules")
	if err != nil {
		return nil, err
	}

	totalEnergy, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ntn_energy_total_joules",
		Help: "Cumulative energy consumed by all nodes.",
	}), "ntn_energy_total_joules")
	if err != nil {
		return nil, err
	}
	activeLinks, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ntn_active_links",
		Help: "Links with a non-empty transmission queue.",
	}), "ntn_active_links")
	if err != nil {
		return nil, err
	}
	poweredOn, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ntn_nodes_powered_on",
		Help: "Compute nodes currently switched on.",
	}), "ntn_nodes_powered_on")
	if err != nil {
		return nil, err
	}
	qos, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ntn_qos_satisfaction_percent",
		Help: "Share of requests completed within their deadline.",
	}), "ntn_qos_satisfaction_percent")
	if err != nil {
		return nil, err
	}
	simTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ntn_simulated_time_seconds",
		Help: "Current simulation time.",
	}), "ntn_simulated_time_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:          gatherer,
		Requests:          requests,
		CompletionSeconds: completion,
		TickDuration:      tickDuration,
		NodeEnergy:        nodeEnergy,
		TotalEnergy:       totalEnergy,
		ActiveLinks:       activeLinks,
		NodesPoweredOn:    poweredOn,
		QoSSatisfaction:   qos,
		SimulatedTime:     simTime,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveTick records the per-tick network gauges.
func (c *SimCollector) ObserveTick(now float64, wall time.Duration, activeLinks, poweredOn int, totalEnergy float64) {
	if c == nil {
		return
	}
	c.SimulatedTime.Set(now)
	c.TickDuration.Observe(wall.Seconds())
	c.ActiveLinks.Set(float64(activeLinks))
	c.NodesPoweredOn.Set(float64(poweredOn))
	c.TotalEnergy.Set(totalEnergy)
}

// RecordRequest counts a request reaching a lifecycle status.
func (c *SimCollector) RecordRequest(priority, status string) {
	if c == nil {
		return
	}
	c.Requests.WithLabelValues(priority, status).Inc()
}

// ObserveCompletion records the simulated lifetime of a terminal request.
func (c *SimCollector) ObserveCompletion(priority string, seconds float64) {
	if c == nil {
		return
	}
	c.CompletionSeconds.WithLabelValues(priority).Observe(seconds)
}

// SetNodeEnergy updates the cumulative energy gauge of one node.
func (c *SimCollector) SetNodeEnergy(node, variant string, joules float64) {
	if c == nil {
		return
	}
	c.NodeEnergy.WithLabelValues(node, variant).Set(joules)
}

// SetQoS updates the QoS satisfaction gauge.
func (c *SimCollector) SetQoS(percent float64) {
	if c == nil {
		return
	}
	c.QoSSatisfaction.Set(percent)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
