// Package trainer fits a Q-learning assignment table over repeated
// simulation episodes.
//
// Training first calibrates the energy range with a baseline strategy,
// then runs episodes with a decaying exploration rate. Each episode ends
// with a terminal reward that is -10 below the QoS threshold and
// (1-normalisedEnergy)*qos² otherwise, qos being the satisfied fraction.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/signalsfoundry/ntn-simulator/internal/assignment"
	"github.com/signalsfoundry/ntn-simulator/internal/logging"
	"github.com/signalsfoundry/ntn-simulator/internal/observability"
	"github.com/signalsfoundry/ntn-simulator/internal/sim"
	"go.opentelemetry.io/otel/attribute"
)

// Terminal reward constants.
const (
	belowThresholdReward = -10.0
	// Factors applied to the calibrated minimum and maximum energy
	// before normalising.
	minEnergyScale = 0.6
	maxEnergyScale = 0.9
)

// EpisodeObserver receives one observation per training episode.
// observability.TrainerCollector satisfies it.
type EpisodeObserver interface {
	ObserveEpisode(d time.Duration, epsilon, reward, energy, qos float64, states int)
}

// Option customises a Trainer.
type Option func(*Trainer)

func WithLogger(l logging.Logger) Option {
	return func(t *Trainer) { t.log = l }
}

func WithObserver(o EpisodeObserver) Option {
	return func(t *Trainer) { t.observer = o }
}

// WithLearner continues training an existing learner instead of a fresh
// one built from Config.Sim.QLearning.
func WithLearner(q *assignment.QLearning) Option {
	return func(t *Trainer) { t.learner = q }
}

// Calibration is the energy range observed with the baseline strategy.
type Calibration struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Normalize maps energy onto the widened calibration range, clamped to
// [0, 1].
func (c Calibration) Normalize(energy float64) float64 {
	lo, hi := c.Min*minEnergyScale, c.Max*maxEnergyScale
	if !(hi > lo) {
		return 0
	}
	return math.Min(1, math.Max(0, (energy-lo)/(hi-lo)))
}

// Reward is the terminal episode reward for a run that consumed energy
// joules with qosPercent satisfied requests.
func (c Calibration) Reward(energy, qosPercent, threshold float64) float64 {
	if qosPercent < threshold {
		return belowThresholdReward
	}
	q := qosPercent / 100
	return (1 - c.Normalize(energy)) * q * q
}

// EpisodeResult summarises one training episode.
type EpisodeResult struct {
	Episode  int           `json:"episode"`
	Seed     uint64        `json:"seed"`
	Epsilon  float64       `json:"epsilon"`
	Energy   float64       `json:"energy"`
	QoS      float64       `json:"qos"`
	Reward   float64       `json:"reward"`
	States   int           `json:"states"`
	Duration time.Duration `json:"duration"`
}

// Trainer runs calibration and training episodes. It is not safe for
// concurrent use.
type Trainer struct {
	cfg      Config
	learner  *assignment.QLearning
	log      logging.Logger
	observer EpisodeObserver

	calibration *Calibration
}

// New validates cfg and prepares the learner, loading Config.TablePath
// when the file exists.
func New(cfg Config, opts ...Option) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Trainer{cfg: cfg, log: logging.Noop()}
	for _, opt := range opts {
		opt(t)
	}
	if t.learner == nil {
		t.learner = assignment.NewQLearning(cfg.Sim.QLearning)
		if cfg.TablePath != "" {
			err := t.learner.LoadTableFile(cfg.TablePath)
			switch {
			case errors.Is(err, os.ErrNotExist):
			case err != nil:
				return nil, fmt.Errorf("load q-table: %w", err)
			default:
				t.log.Info(context.Background(), "resuming from q-table",
					logging.String("path", cfg.TablePath),
					logging.Int("states", len(t.learner.Table())),
				)
			}
		}
	}
	return t, nil
}

// Learner returns the strategy being trained.
func (t *Trainer) Learner() *assignment.QLearning { return t.learner }

// SetCalibration skips the calibration runs.
func (t *Trainer) SetCalibration(c Calibration) { t.calibration = &c }

func (t *Trainer) episodeConfig(k int) sim.Config {
	cfg := t.cfg.Sim
	cfg.Seed += uint64(k)
	cfg.QTablePath = ""
	cfg.RealTime = false
	return cfg
}

// Calibrate runs the baseline strategy CalibrationEpisodes times and
// records the minimum and maximum total energy.
func (t *Trainer) Calibrate(ctx context.Context) (c Calibration, err error) {
	ctx, span := observability.StartSpan(ctx, "trainer.Calibrate",
		attribute.String("trainer.baseline", t.cfg.Baseline),
		attribute.Int("trainer.episodes", t.cfg.CalibrationEpisodes),
	)
	defer func() { observability.EndSpan(span, err) }()

	c = Calibration{Min: math.Inf(1), Max: math.Inf(-1)}
	for k := 0; k < t.cfg.CalibrationEpisodes; k++ {
		cfg := t.episodeConfig(k)
		cfg.AssignmentStrategy = t.cfg.Baseline
		s, err := sim.New(cfg)
		if err != nil {
			return c, err
		}
		energy, err := s.Run(ctx)
		if err != nil {
			return c, fmt.Errorf("calibration episode %d: %w", k, err)
		}
		c.Min = math.Min(c.Min, energy)
		c.Max = math.Max(c.Max, energy)
	}
	t.calibration = &c
	span.SetAttributes(attribute.Float64("trainer.min_energy", c.Min), attribute.Float64("trainer.max_energy", c.Max))
	t.log.Info(ctx, "energy calibrated",
		logging.String("baseline", t.cfg.Baseline),
		logging.Float("min_energy", c.Min),
		logging.Float("max_energy", c.Max),
	)
	return c, nil
}

// Episode runs training episode k: the learner keeps its table, explores
// with the scheduled epsilon and receives the terminal reward.
func (t *Trainer) Episode(ctx context.Context, k int) (res EpisodeResult, err error) {
	if t.calibration == nil {
		if _, err := t.Calibrate(ctx); err != nil {
			return EpisodeResult{}, err
		}
	}
	cfg := t.episodeConfig(k)
	res = EpisodeResult{Episode: k, Seed: cfg.Seed, Epsilon: t.cfg.Epsilon.At(k)}

	ctx, span := observability.StartSpan(ctx, "trainer.Episode",
		attribute.Int("trainer.episode", k),
		attribute.Float64("trainer.epsilon", res.Epsilon),
	)
	defer func() { observability.EndSpan(span, err) }()
	started := time.Now()

	cfg.QLearning.Epsilon = res.Epsilon
	s, err := sim.New(cfg, sim.WithAssignment(t.learner))
	if err != nil {
		return res, err
	}
	t.learner.BeginEpisode()
	energy, err := s.Run(ctx)
	if err != nil {
		return res, fmt.Errorf("episode %d: %w", k, err)
	}
	res.Energy = energy
	res.QoS = s.EvaluateQoSSatisfaction()
	res.Reward = t.calibration.Reward(energy, res.QoS, t.cfg.QoSThreshold)
	t.learner.EndEpisode(res.Reward)
	res.States = len(t.learner.Table())
	res.Duration = time.Since(started)

	span.SetAttributes(
		attribute.Float64("trainer.energy_j", res.Energy),
		attribute.Float64("trainer.qos_percent", res.QoS),
		attribute.Float64("trainer.reward", res.Reward),
	)
	if t.observer != nil {
		t.observer.ObserveEpisode(res.Duration, res.Epsilon, res.Reward, res.Energy, res.QoS, res.States)
	}
	return res, nil
}

// Train calibrates when needed, runs every episode and persists the
// table. The table is saved even when training stops early.
func (t *Trainer) Train(ctx context.Context) (results []EpisodeResult, err error) {
	ctx, span := observability.StartSpan(ctx, "trainer.Train", attribute.Int("trainer.episodes", t.cfg.Episodes))
	defer func() {
		if saveErr := t.save(ctx); saveErr != nil && err == nil {
			err = saveErr
		}
		observability.EndSpan(span, err)
	}()

	for k := 0; k < t.cfg.Episodes; k++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := t.Episode(ctx, k)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		t.log.Debug(ctx, "episode finished",
			logging.Int("episode", k),
			logging.Float("epsilon", res.Epsilon),
			logging.Float("energy_j", res.Energy),
			logging.Float("qos_percent", res.QoS),
			logging.Float("reward", res.Reward),
		)
		if t.cfg.SaveEvery > 0 && (k+1)%t.cfg.SaveEvery == 0 {
			if err := t.save(ctx); err != nil {
				return results, err
			}
			t.log.Info(ctx, "training progress",
				logging.Int("episode", k+1),
				logging.Int("states", res.States),
				logging.Float("epsilon", res.Epsilon),
				logging.Float("reward", res.Reward),
			)
		}
	}
	return results, nil
}

func (t *Trainer) save(ctx context.Context) error {
	if t.cfg.TablePath == "" {
		return nil
	}
	if err := t.learner.SaveTableFile(t.cfg.TablePath); err != nil {
		return fmt.Errorf("save q-table: %w", err)
	}
	t.log.Debug(ctx, "q-table saved", logging.String("path", t.cfg.TablePath))
	return nil
}
