package assignment

import (
	"math"

	"github.com/signalsfoundry/ntn-simulator/core"
)

// ClosestNode picks the candidate nearest to the request's current node.
// Cost is the distance in metres.
type ClosestNode struct {
	env Env
}

func NewClosestNode() *ClosestNode { return &ClosestNode{} }

func (s *ClosestNode) Name() string { return NameClosest }
func (s *ClosestNode) Bind(env Env) { s.env = env }

func (s *ClosestNode) SelectComputeNode(req *core.Request, candidates []core.Node) Selection {
	if req.CurrentNode == nil {
		return failure()
	}
	node, dist := closest(req.CurrentNode.Position(), candidates)
	if node == nil {
		return failure()
	}
	path, ok := route(s.env, req, node)
	if !ok {
		return failure()
	}
	return Selection{Node: node, Path: path, Cost: dist}
}

// HAPSOnly restricts the candidates to HAPS nodes and picks the closest
// one. Cost is the estimated network delay.
type HAPSOnly struct {
	env Env
}

func NewHAPSOnly() *HAPSOnly { return &HAPSOnly{} }

func (s *HAPSOnly) Name() string { return NameHAPSOnly }
func (s *HAPSOnly) Bind(env Env) { s.env = env }

func (s *HAPSOnly) SelectComputeNode(req *core.Request, candidates []core.Node) Selection {
	var haps []core.Node
	for _, c := range candidates {
		if c.Variant() == core.VariantHAPS {
			haps = append(haps, c)
		}
	}
	if len(haps) == 0 || req.CurrentNode == nil {
		return failure()
	}
	node, _ := closest(req.CurrentNode.Position(), haps)
	path, ok := route(s.env, req, node)
	if !ok {
		return failure()
	}
	return Selection{Node: node, Path: path, Cost: s.env.Network.NetworkDelay(req.Size, path)}
}

// Random picks a uniformly random candidate using the simulation's
// generator.
type Random struct {
	env Env
}

func NewRandom() *Random { return &Random{} }

func (s *Random) Name() string { return NameRandom }
func (s *Random) Bind(env Env) { s.env = env }

func (s *Random) SelectComputeNode(req *core.Request, candidates []core.Node) Selection {
	if len(candidates) == 0 || s.env.Rand == nil {
		return failure()
	}
	node := candidates[s.env.Rand.IntN(len(candidates))]
	path, ok := route(s.env, req, node)
	if !ok {
		return failure()
	}
	return Selection{Node: node, Path: path, Cost: s.env.Network.NetworkDelay(req.Size, path)}
}

// costFunc scores one reachable candidate; lower is better.
type costFunc func(net *core.Network, req *core.Request, node core.Node, path []core.Node) float64

// greedy evaluates every reachable candidate and keeps the first one
// with the strictly lowest finite cost.
func greedy(env Env, req *core.Request, candidates []core.Node, cost costFunc) Selection {
	best := failure()
	for _, c := range candidates {
		path, ok := route(env, req, c)
		if !ok {
			continue
		}
		v := cost(env.Network, req, c, path)
		if math.IsNaN(v) || math.IsInf(v, 1) {
			continue
		}
		if best.Node == nil || v < best.Cost {
			best = Selection{Node: c, Path: path, Cost: v}
		}
	}
	return best
}

// TimeGreedy minimises the estimated processing time (queued bits
// included) plus the network delay. Cost is in seconds.
type TimeGreedy struct {
	env Env
}

func NewTimeGreedy() *TimeGreedy { return &TimeGreedy{} }

func (s *TimeGreedy) Name() string { return NameTimeGreedy }
func (s *TimeGreedy) Bind(env Env) { s.env = env }

func (s *TimeGreedy) SelectComputeNode(req *core.Request, candidates []core.Node) Selection {
	return greedy(s.env, req, candidates, func(net *core.Network, req *core.Request, node core.Node, path []core.Node) float64 {
		return estimatedProcessingTime(node, req.Size) + net.NetworkDelay(req.Size, path)
	})
}

// EnergyGreedy minimises the processing energy of the request plus the
// transmission energy spent by every sender on the path. Cost is in
// joules.
type EnergyGreedy struct {
	env Env
}

func NewEnergyGreedy() *EnergyGreedy { return &EnergyGreedy{} }

func (s *EnergyGreedy) Name() string { return NameEnergyGreedy }
func (s *EnergyGreedy) Bind(env Env) { s.env = env }

func (s *EnergyGreedy) SelectComputeNode(req *core.Request, candidates []core.Node) Selection {
	return greedy(s.env, req, candidates, func(net *core.Network, req *core.Request, node core.Node, path []core.Node) float64 {
		return node.ProcessingEnergy(req.Size) + net.TransmissionEnergy(req.Size, path)
	})
}
