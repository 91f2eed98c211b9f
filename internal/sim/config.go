package sim

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/signalsfoundry/ntn-simulator/core"
	"github.com/signalsfoundry/ntn-simulator/internal/assignment"
	"github.com/signalsfoundry/ntn-simulator/internal/power"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every configuration problem detected before a
// simulation is built.
var ErrInvalidConfig = errors.New("invalid simulation configuration")

// Arrival modes.
const (
	// ArrivalPoisson gives every user exactly one request at a
	// Poisson-distributed tick.
	ArrivalPoisson = "poisson"
	// ArrivalBernoulli lets every user issue a request on every tick with
	// a fixed probability.
	ArrivalBernoulli = "bernoulli"
)

// DefaultEpoch anchors SGP4 propagation when no epoch is configured.
var DefaultEpoch = time.Date(2021, time.October, 2, 14, 10, 0, 0, time.UTC)

// ArrivalConfig controls how requests are generated.
type ArrivalConfig struct {
	Mode string `json:"mode" yaml:"mode"`
	// Probability is the per-user, per-tick request probability of the
	// Bernoulli mode.
	Probability float64 `json:"probability" yaml:"probability"`
	// BufferS keeps the last seconds of the run free of new requests so
	// that late arrivals can still finish.
	BufferS float64 `json:"buffer_s" yaml:"buffer_s"`
}

// Config describes one simulation run. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	Seed      uint64  `json:"seed" yaml:"seed"`
	TimeStep  float64 `json:"time_step" yaml:"time_step"`
	MaxTime   float64 `json:"max_time" yaml:"max_time"`
	UserCount int     `json:"user_count" yaml:"user_count"`
	// UserSpreadM places generated users uniformly on [-spread, spread]
	// along the ground.
	UserSpreadM float64 `json:"user_spread_m" yaml:"user_spread_m"`

	AssignmentStrategy string                     `json:"assignment_strategy" yaml:"assignment_strategy"`
	PowerStrategy      string                     `json:"power_strategy" yaml:"power_strategy"`
	Power              power.Params               `json:"power" yaml:"power"`
	QLearning          assignment.QLearningConfig `json:"qlearning" yaml:"qlearning"`
	// QTablePath is loaded into a Q-learning strategy at construction
	// when the file exists.
	QTablePath string `json:"qtable_path,omitempty" yaml:"qtable_path,omitempty"`

	Arrivals        ArrivalConfig `json:"arrivals" yaml:"arrivals"`
	CoverageRadiusM float64       `json:"coverage_radius_m" yaml:"coverage_radius_m"`

	// TopologyPath points at a JSON or YAML topology; the built-in
	// topology is used when empty.
	TopologyPath string    `json:"topology_path,omitempty" yaml:"topology_path,omitempty"`
	Epoch        time.Time `json:"epoch,omitempty" yaml:"epoch,omitempty"`
	RealTime     bool      `json:"real_time" yaml:"real_time"`
	Debug        bool      `json:"debug" yaml:"debug"`
}

// DefaultConfig returns the reference scenario: ten users over a 20 s run
// with 100 ms ticks, time-greedy assignment and on-demand power.
func DefaultConfig() Config {
	return Config{
		Seed:               42,
		TimeStep:           0.1,
		MaxTime:            20,
		UserCount:          10,
		UserSpreadM:        10000,
		AssignmentStrategy: assignment.NameTimeGreedy,
		PowerStrategy:      power.NameOnDemand,
		Power:              power.DefaultParams(),
		QLearning:          assignment.DefaultQLearningConfig(),
		Arrivals:           ArrivalConfig{Mode: ArrivalPoisson, Probability: 0.01, BufferS: 2},
		CoverageRadiusM:    5000,
	}
}

// Validate checks the configuration against the built-in strategy
// registries.
func (c Config) Validate() error {
	return c.validate(assignment.DefaultRegistry(), power.DefaultRegistry(), true)
}

func (c Config) validate(assignments *assignment.Registry, powers *power.Registry, checkAssignment bool) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if !(c.TimeStep > 0) || math.IsInf(c.TimeStep, 0) {
		return invalid("time_step must be positive, got %v", c.TimeStep)
	}
	if !(c.MaxTime > 0) || math.IsInf(c.MaxTime, 0) {
		return invalid("max_time must be positive, got %v", c.MaxTime)
	}
	if c.UserCount < 0 {
		return invalid("user_count must not be negative, got %d", c.UserCount)
	}
	if c.UserSpreadM < 0 || math.IsNaN(c.UserSpreadM) {
		return invalid("user_spread_m must not be negative, got %v", c.UserSpreadM)
	}
	if !(c.CoverageRadiusM > 0) {
		return invalid("coverage_radius_m must be positive, got %v", c.CoverageRadiusM)
	}
	switch c.Arrivals.Mode {
	case ArrivalPoisson, ArrivalBernoulli:
	default:
		return invalid("unknown arrival mode %q", c.Arrivals.Mode)
	}
	if p := c.Arrivals.Probability; p < 0 || p > 1 || math.IsNaN(p) {
		return invalid("arrival probability %v outside [0,1]", p)
	}
	if c.Arrivals.BufferS < 0 || math.IsNaN(c.Arrivals.BufferS) {
		return invalid("arrival buffer must not be negative, got %v", c.Arrivals.BufferS)
	}
	if err := c.Power.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.QLearning.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !powers.Has(c.PowerStrategy) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, power.ErrUnknownStrategy, c.PowerStrategy)
	}
	if checkAssignment && !assignments.Has(c.AssignmentStrategy) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, assignment.ErrUnknownStrategy, c.AssignmentStrategy)
	}
	return nil
}

func (c Config) epoch() time.Time {
	if c.Epoch.IsZero() {
		return DefaultEpoch
	}
	return c.Epoch
}

// LoadConfig reads a configuration file on top of DefaultConfig. YAML is
// chosen for .yaml and .yml files, JSON otherwise.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if core.IsYAMLPath(path) {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		err = dec.Decode(&cfg)
	} else {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: decode %q: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
