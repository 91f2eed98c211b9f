package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TrainerCollector exposes Q-learning training metrics.
type TrainerCollector struct {
	gatherer prometheus.Gatherer

	EpisodeDuration prometheus.Histogram
	EpisodesTotal   prometheus.Counter
	Epsilon         prometheus.Gauge
	EpisodeReward   prometheus.Gauge
	EpisodeEnergy   prometheus.Gauge
	EpisodeQoS      prometheus.Gauge
	QTableStates    prometheus.Gauge
}

// NewTrainerCollector registers trainer metrics against the provided registerer.
func NewTrainerCollector(reg prometheus.Registerer) (*TrainerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qtrain_episode_duration_seconds",
		Help:    "Wall-clock duration of one training episode.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}), "qtrain_episode_duration_seconds")
	if err != nil {
		return nil, err
	}

	episodes, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qtrain_episodes_total",
		Help: "Number of completed training episodes.",
	}), "qtrain_episodes_total")
	if err != nil {
		return nil, err
	}

	gauges := make(map[string]prometheus.Gauge)
	for _, g := range []struct{ name, help string }{
		{"qtrain_epsilon", "Exploration rate used during the last episode."},
		{"qtrain_episode_reward", "Terminal reward of the last episode."},
		{"qtrain_episode_energy_joules", "Total energy of the last episode."},
		{"qtrain_episode_qos_percent", "QoS satisfaction of the last episode."},
		{"qtrain_qtable_states", "Number of distinct states in the Q-table."},
	} {
		gauge, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help}), g.name)
		if err != nil {
			return nil, err
		}
		gauges[g.name] = gauge
	}

	return &TrainerCollector{
		gatherer:        gatherer,
		EpisodeDuration: duration,
		EpisodesTotal:   episodes,
		Epsilon:         gauges["qtrain_epsilon"],
		EpisodeReward:   gauges["qtrain_episode_reward"],
		EpisodeEnergy:   gauges["qtrain_episode_energy_joules"],
		EpisodeQoS:      gauges["qtrain_episode_qos_percent"],
		QTableStates:    gauges["qtrain_qtable_states"],
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *TrainerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveEpisode records the outcome of one training episode.
func (c *TrainerCollector) ObserveEpisode(d time.Duration, epsilon, reward, energy, qos float64, states int) {
	if c == nil {
		return
	}
	c.EpisodeDuration.Observe(d.Seconds())
	c.EpisodesTotal.Inc()
	c.Epsilon.Set(epsilon)
	c.EpisodeReward.Set(reward)
	c.EpisodeEnergy.Set(energy)
	c.EpisodeQoS.Set(qos)
	c.QTableStates.Set(float64(states))
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
