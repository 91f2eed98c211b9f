// Package assignment contains the policies that choose a compute node and
// a path for each new request.
package assignment

import (
	"errors"
	"math"
	"math/rand/v2"

	"github.com/signalsfoundry/ntn-simulator/core"
)

var (
	// ErrUnknownStrategy is returned when a name has no registered factory.
	ErrUnknownStrategy = errors.New("unknown assignment strategy")
	// ErrInvalidRegistration is returned for empty names, nil factories,
	// duplicate names and factories that build nil strategies.
	ErrInvalidRegistration = errors.New("invalid assignment strategy registration")
)

// Selection is the outcome of one assignment decision. A nil Node means
// the request could not be placed; Cost is advisory and its unit depends
// on the strategy.
type Selection struct {
	Node core.Node
	Path []core.Node
	Cost float64
}

// Failed reports whether the selection carries no target node.
func (s Selection) Failed() bool { return s.Node == nil }

func failure() Selection { return Selection{Cost: math.Inf(1)} }

// Env is the simulation state a strategy reads while deciding.
type Env struct {
	Network *core.Network
	Rand    *rand.Rand
}

// Strategy picks a target compute node for a request among the eligible
// candidates. Implementations must not mutate the request.
type Strategy interface {
	Name() string
	// Bind attaches the strategy to a (re)built network. It is called at
	// simulation construction and after every reset.
	Bind(env Env)
	SelectComputeNode(req *core.Request, candidates []core.Node) Selection
}

// route resolves a path from the request's current node to target and
// reports false when the network cannot reach it.
func route(env Env, req *core.Request, target core.Node) ([]core.Node, bool) {
	if env.Network == nil || req.CurrentNode == nil {
		return nil, false
	}
	path, err := env.Network.FindPath(req.CurrentNode, target)
	if err != nil || len(path) < 2 {
		return nil, false
	}
	return path, true
}

// closest returns the candidate nearest to from. Equal distances keep the
// earlier candidate.
func closest(from core.Position, candidates []core.Node) (core.Node, float64) {
	var best core.Node
	bestDist := math.Inf(1)
	for _, c := range candidates {
		if d := from.DistanceTo(c.Position()); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

// estimatedProcessingTime is the time node needs to drain its current
// queue plus size bits.
func estimatedProcessingTime(node core.Node, size float64) float64 {
	return node.ProcessingTime(node.QueuedBits() + size)
}
