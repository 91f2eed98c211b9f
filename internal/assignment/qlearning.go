package assignment

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/ntn-simulator/core"
)

// MaxQNodes bounds the action space of the Q-learning strategy. Candidates
// beyond this index are never chosen.
const MaxQNodes = 16

// ErrInvalidQConfig is returned by QLearningConfig.Validate.
var ErrInvalidQConfig = errors.New("invalid q-learning configuration")

// EnergyBucket discretises a node's remaining battery.
type EnergyBucket uint8

const (
	EnergyUnlimited EnergyBucket = iota
	EnergyDepleted
	EnergyLow
	EnergyHigh
)

// lowEnergyJ separates the low and high remaining-energy buckets.
const lowEnergyJ = 1000

func energyBucket(n core.Node) EnergyBucket {
	switch {
	case n.HasUnlimitedBattery():
		return EnergyUnlimited
	case n.RemainingEnergy() <= 0:
		return EnergyDepleted
	case n.RemainingEnergy() < lowEnergyJ:
		return EnergyLow
	default:
		return EnergyHigh
	}
}

// SizeBucket discretises a request size.
type SizeBucket uint8

const (
	SizeUpTo3Mbit SizeBucket = iota
	SizeUpTo6Mbit
	SizeUpTo8Mbit
	SizeAbove8Mbit
)

func sizeBucket(bits float64) SizeBucket {
	switch mbit := bits / 1e6; {
	case mbit <= 3:
		return SizeUpTo3Mbit
	case mbit <= 6:
		return SizeUpTo6Mbit
	case mbit <= 8:
		return SizeUpTo8Mbit
	default:
		return SizeAbove8Mbit
	}
}

// StateKey is the discretised system state seen by one decision.
type StateKey struct {
	Energy    [MaxQNodes]EnergyBucket
	PowerMask uint32
	NodeCount uint8
	Size      SizeBucket
}

// ActionValues holds one value per candidate index.
type ActionValues [MaxQNodes]float64

// QTable maps states to action values.
type QTable map[StateKey]*ActionValues

func (t QTable) values(s StateKey) *ActionValues {
	v, ok := t[s]
	if !ok {
		v = new(ActionValues)
		t[s] = v
	}
	return v
}

// QLearningConfig tunes the learner.
type QLearningConfig struct {
	Alpha   float64 `json:"alpha" yaml:"alpha"`
	Gamma   float64 `json:"gamma" yaml:"gamma"`
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`
}

// DefaultQLearningConfig returns a greedy learner with the usual step size
// and discount.
func DefaultQLearningConfig() QLearningConfig {
	return QLearningConfig{Alpha: 0.1, Gamma: 0.9, Epsilon: 0}
}

func (c QLearningConfig) Validate() error {
	for name, v := range map[string]float64{"alpha": c.Alpha, "gamma": c.Gamma, "epsilon": c.Epsilon} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s=%v outside [0,1]", ErrInvalidQConfig, name, v)
		}
	}
	return nil
}

// EpsilonSchedule decays exploration exponentially across episodes.
type EpsilonSchedule struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	Rate  float64 `json:"rate" yaml:"rate"`
}

// At returns epsilon for episode k.
func (s EpsilonSchedule) At(k int) float64 {
	return s.End + (s.Start-s.End)*math.Exp(-s.Rate*float64(k))
}

// failedReward is the intermediate reward of a decision whose request
// failed.
const failedReward = -100.0

// QLearning is an epsilon-greedy tabular learner. The table lives for the
// lifetime of the strategy; only the last decision is forgotten between
// episodes.
type QLearning struct {
	env   Env
	cfg   QLearningConfig
	table QTable

	lastState   *StateKey
	lastAction  int
	lastRequest *core.Request
	lastNode    core.Node
	lastPath    []core.Node

	updates int
}

// NewQLearning creates a learner with an empty table.
func NewQLearning(cfg QLearningConfig) *QLearning {
	return &QLearning{cfg: cfg, table: make(QTable)}
}

func (q *QLearning) Name() string { return NameQLearning }
func (q *QLearning) Bind(env Env) { q.env = env }

// Table exposes the learned values.
func (q *QLearning) Table() QTable { return q.table }

// Epsilon returns the current exploration rate.
func (q *QLearning) Epsilon() float64 { return q.cfg.Epsilon }

// SetEpsilon changes the exploration rate, clamped to [0,1].
func (q *QLearning) SetEpsilon(eps float64) {
	q.cfg.Epsilon = math.Min(1, math.Max(0, eps))
}

// Updates returns how many TD updates have been applied.
func (q *QLearning) Updates() int { return q.updates }

// BeginEpisode forgets the last decision. The table is kept.
func (q *QLearning) BeginEpisode() {
	q.lastState = nil
	q.lastAction = 0
	q.lastRequest = nil
	q.lastNode = nil
	q.lastPath = nil
}

// EndEpisode applies the terminal reward to the last decision of the
// episode.
func (q *QLearning) EndEpisode(reward float64) {
	q.update(reward, nil)
}

// StateFor discretises the request and candidate set.
func (q *QLearning) StateFor(req *core.Request, candidates []core.Node) StateKey {
	n := min(len(candidates), MaxQNodes)
	key := StateKey{NodeCount: uint8(n), Size: sizeBucket(req.Size)}
	for i, c := range candidates[:n] {
		key.Energy[i] = energyBucket(c)
		if c.IsOn() {
			key.PowerMask |= 1 << i
		}
	}
	return key
}

func (q *QLearning) SelectComputeNode(req *core.Request, candidates []core.Node) Selection {
	n := min(len(candidates), MaxQNodes)
	if n == 0 {
		return failure()
	}
	state := q.StateFor(req, candidates)
	if q.lastState != nil {
		q.update(q.intermediateReward(), &state)
	}

	action := q.choose(state, n)
	q.lastState = &state
	q.lastAction = action
	q.lastRequest = req
	q.lastNode = candidates[action]
	q.lastPath = nil

	path, ok := route(q.env, req, q.lastNode)
	if !ok {
		return failure()
	}
	q.lastPath = path
	return Selection{Node: q.lastNode, Path: path, Cost: q.env.Network.NetworkDelay(req.Size, path)}
}

func (q *QLearning) choose(state StateKey, n int) int {
	if q.env.Rand != nil && q.env.Rand.Float64() < q.cfg.Epsilon {
		return q.env.Rand.IntN(n)
	}
	values := q.table.values(state)
	best := 0
	for i := 1; i < n; i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

// intermediateReward scores the outcome of the previous decision as seen
// now: a failure costs a fixed penalty, a completion costs the square of
// the energy spent per Mbit.
func (q *QLearning) intermediateReward() float64 {
	req := q.lastRequest
	if req == nil {
		return 0
	}
	switch req.Status() {
	case core.StatusFailed:
		return failedReward
	case core.StatusCompleted:
		if q.lastNode == nil || req.Size <= 0 {
			return 0
		}
		energy := q.lastNode.ProcessingEnergy(req.Size)
		if q.env.Network != nil && len(q.lastPath) > 1 {
			if tx := q.env.Network.TransmissionEnergy(req.Size, q.lastPath); !math.IsInf(tx, 1) {
				energy += tx
			}
		}
		perMbit := energy / req.Size * 1e6
		return -(perMbit * perMbit)
	default:
		return 0
	}
}

// update applies one TD step to the last (state, action). A nil next
// state marks the end of an episode.
func (q *QLearning) update(reward float64, next *StateKey) {
	if q.lastState == nil {
		return
	}
	values := q.table.values(*q.lastState)
	target := reward
	if next != nil {
		nv := q.table.values(*next)
		best := nv[0]
		for i := 1; i < int(next.NodeCount); i++ {
			best = math.Max(best, nv[i])
		}
		target += q.cfg.Gamma * best
	}
	old := values[q.lastAction]
	values[q.lastAction] = (1-q.cfg.Alpha)*old + q.cfg.Alpha*target
	q.updates++
}
