package trainer

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/ntn-simulator/internal/assignment"
)

func smallConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Sim.MaxTime = 2
	cfg.Sim.UserCount = 3
	cfg.Sim.Arrivals.BufferS = 0.5
	cfg.Episodes = 3
	cfg.CalibrationEpisodes = 2
	cfg.SaveEvery = 2
	cfg.TablePath = filepath.Join(t.TempDir(), "qtable.yaml")
	return cfg
}

type countingObserver struct {
	episodes []float64
}

func (o *countingObserver) ObserveEpisode(_ time.Duration, epsilon, _, _, _ float64, _ int) {
	o.episodes = append(o.episodes, epsilon)
}

func TestCalibrationReward(t *testing.T) {
	c := Calibration{Min: 100, Max: 200}
	cases := []struct {
		name    string
		energy  float64
		qos     float64
		want    float64
		epsilon float64
	}{
		{"below threshold", 120, 89.9, belowThresholdReward, 0},
		{"mid range", 120, 100, 0.5, 1e-12},
		{"mid range partial qos", 120, 95, 0.5 * 0.95 * 0.95, 1e-12},
		{"cheaper than calibrated", 0, 100, 1, 0},
		{"costlier than calibrated", 1e6, 100, 0, 0},
	}
	for _, tc := range cases {
		got := c.Reward(tc.energy, tc.qos, 90)
		if math.Abs(got-tc.want) > tc.epsilon {
			t.Fatalf("%s: reward = %v, want %v", tc.name, got, tc.want)
		}
	}
	if n := (Calibration{}).Normalize(50); n != 0 {
		t.Fatalf("degenerate calibration should normalise to 0, got %v", n)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"no episodes":        func(c *Config) { c.Episodes = 0 },
		"no calibration":     func(c *Config) { c.CalibrationEpisodes = 0 },
		"learning baseline":  func(c *Config) { c.Baseline = assignment.NameQLearning },
		"unknown baseline":   func(c *Config) { c.Baseline = "oracle" },
		"threshold":          func(c *Config) { c.QoSThreshold = 120 },
		"epsilon start":      func(c *Config) { c.Epsilon.Start = 2 },
		"negative save":      func(c *Config) { c.SaveEvery = -1 },
		"invalid simulation": func(c *Config) { c.Sim.TimeStep = 0 },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestTrainPersistsTable(t *testing.T) {
	cfg := smallConfig(t)
	obs := &countingObserver{}
	tr, err := New(cfg, WithObserver(obs))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	results, err := tr.Train(context.Background())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(results) != cfg.Episodes || len(obs.episodes) != cfg.Episodes {
		t.Fatalf("expected %d episodes, got %d results and %d observations", cfg.Episodes, len(results), len(obs.episodes))
	}
	for i, r := range results {
		if r.Episode != i || r.Seed != cfg.Sim.Seed+uint64(i) {
			t.Fatalf("unexpected episode bookkeeping %+v", r)
		}
		if i > 0 && r.Epsilon >= results[i-1].Epsilon {
			t.Fatalf("epsilon did not decay: %v then %v", results[i-1].Epsilon, r.Epsilon)
		}
		if r.QoS < 0 || r.QoS > 100 {
			t.Fatalf("qos %v outside [0,100]", r.QoS)
		}
	}
	if tr.calibration == nil || tr.calibration.Min > tr.calibration.Max {
		t.Fatalf("calibration missing or inverted: %+v", tr.calibration)
	}

	states := len(tr.Learner().Table())
	if states == 0 {
		t.Fatalf("expected a populated q-table")
	}
	resumed, err := New(cfg)
	if err != nil {
		t.Fatalf("New resumed: %v", err)
	}
	if got := len(resumed.Learner().Table()); got != states {
		t.Fatalf("resumed table has %d states, want %d", got, states)
	}
}

func TestEpisodeUsesGivenCalibration(t *testing.T) {
	cfg := smallConfig(t)
	cfg.TablePath = ""
	tr, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr.SetCalibration(Calibration{Min: 1, Max: 2})
	res, err := tr.Episode(context.Background(), 0)
	if err != nil {
		t.Fatalf("Episode: %v", err)
	}
	want := Calibration{Min: 1, Max: 2}.Reward(res.Energy, res.QoS, cfg.QoSThreshold)
	if res.Reward != want {
		t.Fatalf("reward %v, want %v", res.Reward, want)
	}
	if *tr.calibration != (Calibration{Min: 1, Max: 2}) {
		t.Fatalf("calibration was recomputed: %+v", tr.calibration)
	}
}

func TestTrainStopsOnCancel(t *testing.T) {
	cfg := smallConfig(t)
	tr, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr.SetCalibration(Calibration{Min: 1, Max: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := tr.Train(ctx)
	if !errors.Is(err, context.Canceled) || len(results) != 0 {
		t.Fatalf("expected immediate cancellation, got %d results and %v", len(results), err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	raw := "episodes: 5\nbaseline: closest\nepsilon:\n  start: 0.5\n  end: 0.05\n  rate: 0.1\nsim:\n  user_count: 4\n  max_time: 3\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Episodes != 5 || cfg.Baseline != assignment.NameClosest || cfg.Epsilon.Start != 0.5 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Sim.UserCount != 4 || cfg.Sim.MaxTime != 3 || cfg.Sim.TimeStep != DefaultConfig().Sim.TimeStep {
		t.Fatalf("nested simulation config not merged: %+v", cfg.Sim)
	}
	if cfg.CalibrationEpisodes != DefaultConfig().CalibrationEpisodes {
		t.Fatalf("defaults lost: %+v", cfg)
	}

	bad := filepath.Join(t.TempDir(), "train.json")
	if err := os.WriteFile(bad, []byte(`{"episodez": 3}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
