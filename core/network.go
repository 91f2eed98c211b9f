package core

import (
	"fmt"
	"math"
)

// NetworkConfig holds the link classes and channel constants used when
// the network derives its links.
type NetworkConfig struct {
	UserLink  LinkConfig   `json:"user_link" yaml:"user_link"`
	BSToHAPS  LinkConfig   `json:"bs_to_haps" yaml:"bs_to_haps"`
	HAPSToBS  LinkConfig   `json:"haps_to_bs" yaml:"haps_to_bs"`
	HAPSToLEO LinkConfig   `json:"haps_to_leo" yaml:"haps_to_leo"`
	Channel   ChannelModel `json:"channel" yaml:"channel"`
}

// DefaultNetworkConfig returns the built-in link classes.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		UserLink:  LinkConfig{TotalBandwidthHz: 100e6, SignalPowerDBm: 23, CarrierFrequencyHz: 2e9},
		BSToHAPS:  LinkConfig{TotalBandwidthHz: 100e6, SignalPowerDBm: 30, CarrierFrequencyHz: 2e9},
		HAPSToBS:  LinkConfig{TotalBandwidthHz: 100e6, SignalPowerDBm: 33, CarrierFrequencyHz: 2e9},
		HAPSToLEO: LinkConfig{TotalBandwidthHz: 1e9, SignalPowerDBm: 33, CarrierFrequencyHz: 2e9},
		Channel:   DefaultChannelModel(),
	}
}

type linkKey struct {
	from, to NodeID
}

// TickReport lists what happened to requests during one network tick.
type TickReport struct {
	// Delivered requests reached their target's processing queue.
	Delivered []*Request
	// Finished requests reached COMPLETED or FAILED.
	Finished []*Request
}

// Network owns the nodes and the links derived from them. It is not safe
// for concurrent use; one simulation drives it from a single goroutine.
type Network struct {
	cfg NetworkConfig

	nodes    []Node
	byID     map[NodeID]Node
	links    []*CommunicationLink
	byPair   map[linkKey]*CommunicationLink
	outgoing map[NodeID][]*CommunicationLink
}

// NewNetwork creates an empty network.
func NewNetwork(cfg NetworkConfig) *Network {
	return &Network{
		cfg:      cfg,
		byID:     make(map[NodeID]Node),
		byPair:   make(map[linkKey]*CommunicationLink),
		outgoing: make(map[NodeID][]*CommunicationLink),
	}
}

// Config returns the network configuration.
func (n *Network) Config() NetworkConfig { return n.cfg }

// AddNode appends a node and rebuilds the links.
func (n *Network) AddNode(node Node) error {
	if node == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidTopology)
	}
	if _, ok := n.byID[node.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrNodeExists, node.ID())
	}
	n.nodes = append(n.nodes, node)
	n.byID[node.ID()] = node
	return n.rebuildLinks()
}

// AddNodes adds several nodes and rebuilds the links once.
func (n *Network) AddNodes(nodes ...Node) error {
	for _, node := range nodes {
		if node == nil {
			return fmt.Errorf("%w: nil node", ErrInvalidTopology)
		}
		if _, ok := n.byID[node.ID()]; ok {
			return fmt.Errorf("%w: %s", ErrNodeExists, node.ID())
		}
		n.nodes = append(n.nodes, node)
		n.byID[node.ID()] = node
	}
	return n.rebuildLinks()
}

// RemoveNode drops a node and rebuilds the links. Requests in flight on
// links touching the node fail at now.
func (n *Network) RemoveNode(id NodeID, now float64) error {
	if _, ok := n.byID[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	delete(n.byID, id)
	kept := n.nodes[:0]
	for _, node := range n.nodes {
		if node.ID() != id {
			kept = append(kept, node)
		}
	}
	n.nodes = kept
	for _, l := range n.links {
		if l.from.ID() == id || l.to.ID() == id {
			for _, r := range l.queue {
				r.Fail(now)
			}
		}
	}
	return n.rebuildLinks()
}

// Nodes returns all nodes in insertion order.
func (n *Network) Nodes() []Node {
	out := make([]Node, len(n.nodes))
	copy(out, n.nodes)
	return out
}

// Node looks a node up by ID.
func (n *Network) Node(id NodeID) (Node, bool) {
	node, ok := n.byID[id]
	return node, ok
}

// NodesOf returns the nodes of one variant in insertion order.
func (n *Network) NodesOf(v Variant) []Node {
	var out []Node
	for _, node := range n.nodes {
		if node.Variant() == v {
			out = append(out, node)
		}
	}
	return out
}

// ComputeNodes returns the nodes with positive processing capacity.
func (n *Network) ComputeNodes() []Node {
	var out []Node
	for _, node := range n.nodes {
		if node.CanCompute() {
			out = append(out, node)
		}
	}
	return out
}

// Candidates returns the compute nodes eligible as assignment targets:
// battery-depleted nodes are excluded, power state is not considered.
func (n *Network) Candidates() []Node {
	var out []Node
	for _, node := range n.nodes {
		if node.CanCompute() && !node.IsDepleted() {
			out = append(out, node)
		}
	}
	return out
}

// Links returns all links in derivation order.
func (n *Network) Links() []*CommunicationLink {
	out := make([]*CommunicationLink, len(n.links))
	copy(out, n.links)
	return out
}

// Link returns the link from -> to, if present.
func (n *Network) Link(from, to NodeID) (*CommunicationLink, bool) {
	l, ok := n.byPair[linkKey{from: from, to: to}]
	return l, ok
}

// Outgoing returns the links leaving a node in derivation order.
func (n *Network) Outgoing(id NodeID) []*CommunicationLink {
	return n.outgoing[id]
}

func (n *Network) linkConfigFor(from, to Variant) (LinkConfig, bool) {
	switch {
	case from == VariantUserDevice && (to == VariantHAPS || to == VariantBaseStation):
		return n.cfg.UserLink, true
	case from == VariantBaseStation && to == VariantHAPS:
		return n.cfg.BSToHAPS, true
	case from == VariantHAPS && to == VariantBaseStation:
		return n.cfg.HAPSToBS, true
	case from == VariantHAPS && to == VariantLEO:
		return n.cfg.HAPSToLEO, true
	}
	return LinkConfig{}, false
}

// rebuildLinks derives every link from the current node set. Queues of
// links that survive the rebuild are carried over.
func (n *Network) rebuildLinks() error {
	old := n.byPair
	n.links = nil
	n.byPair = make(map[linkKey]*CommunicationLink)
	n.outgoing = make(map[NodeID][]*CommunicationLink)

	haps := n.NodesOf(VariantHAPS)
	stations := n.NodesOf(VariantBaseStation)
	leos := n.NodesOf(VariantLEO)

	for _, node := range n.nodes {
		var targets []Node
		switch node.Variant() {
		case VariantUserDevice:
			targets = append(targets, haps...)
			if bs := nearest(node, stations); bs != nil {
				targets = append(targets, bs)
			}
		case VariantBaseStation:
			targets = haps
		case VariantHAPS:
			targets = append(append(targets, stations...), leos...)
		}
		for _, to := range targets {
			if err := n.link(node, to, old); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *Network) link(from, to Node, old map[linkKey]*CommunicationLink) error {
	cfg, ok := n.linkConfigFor(from.Variant(), to.Variant())
	if !ok {
		return fmt.Errorf("%w: no link class %s -> %s", ErrInvalidTopology, from.Variant(), to.Variant())
	}
	l, err := NewCommunicationLink(from, to, cfg, n.cfg.Channel)
	if err != nil {
		return err
	}
	key := linkKey{from: from.ID(), to: to.ID()}
	if prev, ok := old[key]; ok {
		l.queue = prev.queue
		l.progress = prev.progress
	}
	n.links = append(n.links, l)
	n.byPair[key] = l
	n.outgoing[from.ID()] = append(n.outgoing[from.ID()], l)
	return nil
}

// nearest returns the closest candidate; the first minimum wins.
func nearest(from Node, candidates []Node) Node {
	var best Node
	bestDist := math.Inf(1)
	for _, c := range candidates {
		if d := from.Position().DistanceTo(c.Position()); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// FindPath returns a least-hop path from src to dst using an exhaustive
// depth-first search over outgoing links in derivation order. Among
// paths of equal length the first one discovered wins.
func (n *Network) FindPath(src, dst Node) ([]Node, error) {
	if src == nil || dst == nil {
		return nil, fmt.Errorf("%w: nil endpoint", ErrNodeNotFound)
	}
	if _, ok := n.byID[src.ID()]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, src.ID())
	}
	if _, ok := n.byID[dst.ID()]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, dst.ID())
	}
	if src.ID() == dst.ID() {
		return []Node{src}, nil
	}

	var best []Node
	onPath := map[NodeID]bool{src.ID(): true}
	path := []Node{src}

	var dfs func(cur Node)
	dfs = func(cur Node) {
		if best != nil && len(path) >= len(best) {
			return
		}
		for _, l := range n.outgoing[cur.ID()] {
			next := l.to
			if onPath[next.ID()] {
				continue
			}
			path = append(path, next)
			if next.ID() == dst.ID() {
				if best == nil || len(path) < len(best) {
					best = append([]Node(nil), path...)
				}
			} else {
				onPath[next.ID()] = true
				dfs(next)
				delete(onPath, next.ID())
			}
			path = path[:len(path)-1]
		}
	}
	dfs(src)

	if best == nil {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoPath, src.ID(), dst.ID())
	}
	return best, nil
}

// ActiveLinkCount returns the number of links with a non-empty queue.
func (n *Network) ActiveLinkCount() int {
	count := 0
	for _, l := range n.links {
		if l.IsActive() {
			count++
		}
	}
	return count
}

// refreshSharing recomputes, for every link, the number of active links
// into the same receiver from the same sender variant.
func (n *Network) refreshSharing() {
	type class struct {
		to   NodeID
		from Variant
	}
	active := make(map[class]int)
	for _, l := range n.links {
		if l.IsActive() {
			active[class{to: l.to.ID(), from: l.from.Variant()}]++
		}
	}
	for _, l := range n.links {
		l.SetActiveSameType(active[class{to: l.to.ID(), from: l.from.Variant()}])
	}
}

// UpdatePositions moves every time-dependent node to elapsed.
func (n *Network) UpdatePositions(elapsed float64) {
	for _, node := range n.nodes {
		if m, ok := node.(Mover); ok {
			m.UpdatePosition(elapsed)
		}
	}
}

// Route attaches path to req and queues it on the first hop.
func (n *Network) Route(req *Request, path []Node, now float64) error {
	if len(path) < 2 {
		return fmt.Errorf("%w: path of %d nodes", ErrNoPath, len(path))
	}
	first, ok := n.Link(path[0].ID(), path[1].ID())
	if !ok {
		return fmt.Errorf("%w: no link %s -> %s", ErrNoPath, path[0].ID(), path[1].ID())
	}
	if err := req.Transition(StatusInTransit, now); err != nil {
		return err
	}
	req.Path = path
	req.PathIndex = 0
	req.TargetNode = path[len(path)-1]
	req.CurrentNode = path[0]
	first.Enqueue(req)
	n.refreshSharing()
	return nil
}

// Tick advances every node and then every link by dt. Transmissions that
// finish during the tick are handed to the next hop or to the target's
// processing queue once all links have ticked. A depleted sender stops
// transmitting: its queued requests fail at the end of the tick and no
// airtime is charged.
func (n *Network) Tick(now, dt float64) TickReport {
	var report TickReport
	end := now + dt

	for _, node := range n.nodes {
		if done := node.Tick(now, dt); done != nil {
			report.Finished = append(report.Finished, done)
		}
	}
	for _, l := range n.links {
		if !l.from.IsDepleted() || !l.IsActive() {
			continue
		}
		for _, r := range l.Drain() {
			r.Fail(end)
			report.Finished = append(report.Finished, r)
		}
	}

	n.refreshSharing()
	type hop struct {
		req  *Request
		link *CommunicationLink
	}
	var arrived []hop
	for _, l := range n.links {
		if req := l.Tick(dt); req != nil {
			arrived = append(arrived, hop{req: req, link: l})
		}
	}

	for _, h := range arrived {
		req := h.req
		req.PathIndex++
		req.CurrentNode = h.link.to
		if h.link.to.ID() == req.TargetNode.ID() {
			if err := h.link.to.Accept(req, end); err != nil {
				req.Fail(end)
				report.Finished = append(report.Finished, req)
				continue
			}
			report.Delivered = append(report.Delivered, req)
			continue
		}
		next, ok := req.NextHop()
		var nl *CommunicationLink
		if ok {
			nl, ok = n.Link(h.link.to.ID(), next.ID())
		}
		if !ok || req.Transition(StatusInTransit, end) != nil {
			req.Fail(end)
			report.Finished = append(report.Finished, req)
			continue
		}
		nl.Enqueue(req)
	}
	n.refreshSharing()
	return report
}

// NetworkDelay returns the time to push size bits along path at current
// link capacities, or +Inf when a hop is missing or has no capacity.
func (n *Network) NetworkDelay(size float64, path []Node) float64 {
	total := 0.0
	for i := 0; i+1 < len(path); i++ {
		l, ok := n.Link(path[i].ID(), path[i+1].ID())
		if !ok {
			return math.Inf(1)
		}
		t := l.TransmissionTime(size)
		if math.IsInf(t, 1) {
			return t
		}
		total += t
	}
	return total
}

// TransmissionEnergy returns the energy senders spend pushing size bits
// along path.
func (n *Network) TransmissionEnergy(size float64, path []Node) float64 {
	total := 0.0
	for i := 0; i+1 < len(path); i++ {
		l, ok := n.Link(path[i].ID(), path[i+1].ID())
		if !ok {
			return math.Inf(1)
		}
		t := l.TransmissionTime(size)
		if math.IsInf(t, 1) {
			return t
		}
		total += path[i].TransmissionPowerW() * t
	}
	return total
}

// TotalEnergy sums the energy consumed by every node.
func (n *Network) TotalEnergy() float64 {
	total := 0.0
	for _, node := range n.nodes {
		total += node.EnergyConsumed()
	}
	return total
}

// EnergyByVariant sums consumed energy per node variant.
func (n *Network) EnergyByVariant() map[Variant]float64 {
	out := make(map[Variant]float64)
	for _, node := range n.nodes {
		out[node.Variant()] += node.EnergyConsumed()
	}
	return out
}
