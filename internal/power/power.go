// Package power switches compute nodes on and off between ticks.
package power

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/signalsfoundry/ntn-simulator/core"
)

var (
	ErrUnknownStrategy     = errors.New("unknown power strategy")
	ErrInvalidRegistration = errors.New("invalid power strategy registration")
	ErrInvalidParams       = errors.New("invalid power strategy parameters")
)

// Env is the simulation state a power strategy may draw on.
type Env struct {
	Rand *rand.Rand
}

// Strategy adjusts node power states. Apply only touches power state.
type Strategy interface {
	Name() string
	// Bind attaches the strategy to a fresh run and drops any state kept
	// from a previous one.
	Bind(env Env)
	Apply(nodes []core.Node, now float64)
}

// Params carries the tunables of the built-in strategies.
type Params struct {
	// Timeout is the grace period of OnDemandTimeout in seconds.
	Timeout float64 `json:"timeout" yaml:"timeout"`
	// Epsilon is the fraction of nodes Random keeps on.
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`
	// WithChange re-samples Random's selection every ChangeInterval
	// seconds.
	WithChange     bool    `json:"with_change" yaml:"with_change"`
	ChangeInterval float64 `json:"change_interval" yaml:"change_interval"`
}

// DefaultParams returns the stock tunables.
func DefaultParams() Params {
	return Params{Timeout: 10, Epsilon: 0.5, WithChange: true, ChangeInterval: 5}
}

func (p Params) Validate() error {
	if p.Epsilon < 0 || p.Epsilon > 1 || math.IsNaN(p.Epsilon) {
		return fmt.Errorf("%w: epsilon %v outside [0,1]", ErrInvalidParams, p.Epsilon)
	}
	if p.Timeout < 0 || math.IsNaN(p.Timeout) {
		return fmt.Errorf("%w: negative timeout %v", ErrInvalidParams, p.Timeout)
	}
	if p.WithChange && !(p.ChangeInterval > 0) {
		return fmt.Errorf("%w: change interval must be positive, got %v", ErrInvalidParams, p.ChangeInterval)
	}
	return nil
}

// AllOn keeps every node powered.
type AllOn struct{}

func (AllOn) Name() string { return NameAllOn }
func (AllOn) Bind(Env)     {}

func (AllOn) Apply(nodes []core.Node, _ float64) {
	for _, n := range nodes {
		n.SetPower(true)
	}
}

// OnDemand powers a node exactly while its processing queue is non-empty.
type OnDemand struct{}

func (OnDemand) Name() string { return NameOnDemand }
func (OnDemand) Bind(Env)     {}

func (OnDemand) Apply(nodes []core.Node, _ float64) {
	for _, n := range nodes {
		n.SetPower(n.QueueLen() > 0)
	}
}

// OnDemandTimeout powers a node while it has work and keeps it on for
// Timeout seconds after its queue last held a request.
type OnDemandTimeout struct {
	Timeout float64

	lastActive map[core.NodeID]float64
}

func NewOnDemandTimeout(timeout float64) *OnDemandTimeout {
	return &OnDemandTimeout{Timeout: timeout, lastActive: make(map[core.NodeID]float64)}
}

func (s *OnDemandTimeout) Name() string { return NameOnDemandTimeout }

func (s *OnDemandTimeout) Bind(Env) {
	s.lastActive = make(map[core.NodeID]float64)
}

func (s *OnDemandTimeout) Apply(nodes []core.Node, now float64) {
	if s.lastActive == nil {
		s.lastActive = make(map[core.NodeID]float64)
	}
	for _, n := range nodes {
		id := n.ID()
		if n.QueueLen() > 0 {
			s.lastActive[id] = now
			n.SetPower(true)
			continue
		}
		last, ok := s.lastActive[id]
		if ok && now-last > s.Timeout {
			n.SetPower(false)
			delete(s.lastActive, id)
		}
	}
}

// Random keeps a random fraction of the nodes on. The selection holds
// until ChangeInterval seconds have passed, or forever when WithChange is
// false.
type Random struct {
	Epsilon        float64
	WithChange     bool
	ChangeInterval float64

	rng        *rand.Rand
	active     map[core.NodeID]bool
	lastChange float64
}

func NewRandom(epsilon float64, withChange bool, interval float64) *Random {
	return &Random{Epsilon: epsilon, WithChange: withChange, ChangeInterval: interval}
}

func (s *Random) Name() string { return NameRandom }

func (s *Random) Bind(env Env) {
	s.rng = env.Rand
	s.active = nil
	s.lastChange = math.Inf(-1)
}

// Active returns how many nodes the current selection keeps on.
func (s *Random) Active() int { return len(s.active) }

func (s *Random) resample(nodes []core.Node) {
	if len(nodes) == 0 || s.rng == nil {
		return
	}
	count := max(1, int(float64(len(nodes))*s.Epsilon))
	s.active = make(map[core.NodeID]bool, count)
	for _, i := range s.rng.Perm(len(nodes))[:count] {
		s.active[nodes[i].ID()] = true
	}
}

func (s *Random) Apply(nodes []core.Node, now float64) {
	if len(s.active) == 0 || (s.WithChange && now-s.lastChange >= s.ChangeInterval) {
		s.resample(nodes)
		s.lastChange = now
	}
	for _, n := range nodes {
		n.SetPower(s.active[n.ID()])
	}
}
