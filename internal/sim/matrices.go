package sim

import (
	"github.com/signalsfoundry/ntn-simulator/core"
	"gonum.org/v1/gonum/mat"
)

// DecisionMatrices are derived tables kept for reporting and for outer
// optimisers. The node, link and request model stays authoritative; a nil
// matrix means one of its dimensions is empty.
type DecisionMatrices struct {
	// Coverage is users × base stations: 1 for the closest base
	// station(s) within the coverage radius.
	Coverage *mat.Dense
	// Requests is users × ticks: 1 where a user issues a request.
	Requests *mat.Dense
	// Assignment is users × compute nodes: 1 where a request of the user
	// is being processed by the node.
	Assignment *mat.Dense
	// Power is compute nodes × ticks: 1 where the node ended the tick on.
	Power *mat.Dense
}

func clone(m *mat.Dense) *mat.Dense {
	if m == nil {
		return nil
	}
	return mat.DenseCopyOf(m)
}

// Snapshot returns a deep copy.
func (d DecisionMatrices) Snapshot() DecisionMatrices {
	return DecisionMatrices{
		Coverage:   clone(d.Coverage),
		Requests:   clone(d.Requests),
		Assignment: clone(d.Assignment),
		Power:      clone(d.Power),
	}
}

// coverageMatrix marks, for every user, the nearest base stations within
// radius. Equidistant stations are all marked.
func coverageMatrix(users, stations []core.Node, radius float64) *mat.Dense {
	m := newDense(len(users), len(stations))
	if m == nil {
		return nil
	}
	for i, u := range users {
		best := -1.0
		for _, bs := range stations {
			d := u.Position().DistanceTo(bs.Position())
			if d <= radius && (best < 0 || d < best) {
				best = d
			}
		}
		if best < 0 {
			continue
		}
		for j, bs := range stations {
			if u.Position().DistanceTo(bs.Position()) == best {
				m.Set(i, j, 1)
			}
		}
	}
	return m
}

// matrixIndex maps node IDs onto matrix rows or columns.
type matrixIndex map[core.NodeID]int

func indexOf(nodes []core.Node) matrixIndex {
	idx := make(matrixIndex, len(nodes))
	for i, n := range nodes {
		idx[n.ID()] = i
	}
	return idx
}

// refreshAssignment rebuilds the assignment matrix from the requests
// still in flight.
func refreshAssignment(m *mat.Dense, users, compute matrixIndex, open []*core.Request) {
	if m == nil {
		return
	}
	m.Zero()
	for _, r := range open {
		if r.Status() != core.StatusProcessing || r.Source == nil || r.CurrentNode == nil {
			continue
		}
		i, ok := users[r.Source.ID()]
		if !ok {
			continue
		}
		if j, ok := compute[r.CurrentNode.ID()]; ok {
			m.Set(i, j, 1)
		}
	}
}

// recordPower fills the power column of one tick.
func recordPower(m *mat.Dense, tick int, compute []core.Node) {
	if m == nil {
		return
	}
	if _, cols := m.Dims(); tick >= cols {
		return
	}
	for i, n := range compute {
		v := 0.0
		if n.IsOn() {
			v = 1
		}
		m.Set(i, tick, v)
	}
}
