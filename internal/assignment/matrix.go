package assignment

import "github.com/signalsfoundry/ntn-simulator/core"

// MatrixBased replays a pre-computed assignment vector. The i-th call
// selects the compute node at index vector[i] in the network's
// compute-node order. Every call consumes one entry, whether or not it
// succeeds.
type MatrixBased struct {
	env    Env
	vector []int
	next   int
}

// NewMatrixBased copies vector so later edits by the caller have no
// effect.
func NewMatrixBased(vector []int) *MatrixBased {
	return &MatrixBased{vector: append([]int(nil), vector...)}
}

func (s *MatrixBased) Name() string { return NameMatrix }

// Bind rewinds the vector.
func (s *MatrixBased) Bind(env Env) {
	s.env = env
	s.next = 0
}

// Consumed returns how many vector entries have been used.
func (s *MatrixBased) Consumed() int { return s.next }

func (s *MatrixBased) SelectComputeNode(req *core.Request, candidates []core.Node) Selection {
	i := s.next
	s.next++
	if i >= len(s.vector) || s.env.Network == nil {
		return failure()
	}
	compute := s.env.Network.ComputeNodes()
	idx := s.vector[i]
	if idx < 0 || idx >= len(compute) {
		return failure()
	}
	node := compute[idx]

	eligible := false
	for _, c := range candidates {
		if c.ID() == node.ID() {
			eligible = true
			break
		}
	}
	if !eligible {
		return failure()
	}
	path, ok := route(s.env, req, node)
	if !ok {
		return failure()
	}
	return Selection{Node: node, Path: path, Cost: s.env.Network.NetworkDelay(req.Size, path)}
}
