package trainer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/signalsfoundry/ntn-simulator/core"
	"github.com/signalsfoundry/ntn-simulator/internal/assignment"
	"github.com/signalsfoundry/ntn-simulator/internal/sim"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps trainer configuration problems.
var ErrInvalidConfig = errors.New("invalid trainer configuration")

// Config controls a training session.
type Config struct {
	// Sim is the scenario every episode runs. Episode k uses seed
	// Sim.Seed+k; the assignment name is ignored.
	Sim sim.Config `json:"sim" yaml:"sim"`

	Episodes            int                        `json:"episodes" yaml:"episodes"`
	CalibrationEpisodes int                        `json:"calibration_episodes" yaml:"calibration_episodes"`
	Baseline            string                     `json:"baseline" yaml:"baseline"`
	Epsilon             assignment.EpsilonSchedule `json:"epsilon" yaml:"epsilon"`
	// QoSThreshold is the satisfaction percentage below which an episode
	// is penalised.
	QoSThreshold float64 `json:"qos_threshold" yaml:"qos_threshold"`

	// TablePath is loaded before training when present and written after
	// every SaveEvery episodes and at the end. Empty disables persistence.
	TablePath string `json:"table_path,omitempty" yaml:"table_path,omitempty"`
	SaveEvery int    `json:"save_every" yaml:"save_every"`
}

// DefaultConfig trains for 100 episodes after 25 time-greedy
// calibration runs.
func DefaultConfig() Config {
	return Config{
		Sim:                 sim.DefaultConfig(),
		Episodes:            100,
		CalibrationEpisodes: 25,
		Baseline:            assignment.NameTimeGreedy,
		Epsilon:             assignment.EpsilonSchedule{Start: 1, End: 0.1, Rate: 0.05},
		QoSThreshold:        90,
		SaveEvery:           10,
	}
}

func (c Config) Validate() error {
	if c.Episodes <= 0 {
		return fmt.Errorf("%w: episodes must be positive, got %d", ErrInvalidConfig, c.Episodes)
	}
	if c.CalibrationEpisodes <= 0 {
		return fmt.Errorf("%w: calibration_episodes must be positive, got %d", ErrInvalidConfig, c.CalibrationEpisodes)
	}
	if c.Baseline == assignment.NameQLearning || !assignment.DefaultRegistry().Has(c.Baseline) {
		return fmt.Errorf("%w: %w: baseline %q", ErrInvalidConfig, assignment.ErrUnknownStrategy, c.Baseline)
	}
	e := c.Epsilon
	if e.Start < 0 || e.Start > 1 || e.End < 0 || e.End > 1 || e.Rate < 0 {
		return fmt.Errorf("%w: epsilon schedule %+v", ErrInvalidConfig, e)
	}
	if c.QoSThreshold < 0 || c.QoSThreshold > 100 {
		return fmt.Errorf("%w: qos_threshold %v outside [0,100]", ErrInvalidConfig, c.QoSThreshold)
	}
	if c.SaveEvery < 0 {
		return fmt.Errorf("%w: save_every must not be negative", ErrInvalidConfig)
	}
	base := c.Sim
	base.AssignmentStrategy = c.Baseline
	if err := base.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// LoadConfig reads a trainer configuration on top of DefaultConfig,
// choosing YAML or JSON from the file extension.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read trainer config %q: %w", path, err)
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
	return cfg, cfg.Validate()
}
