package assignment

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/signalsfoundry/ntn-simulator/core"
)

func buildNetwork(t *testing.T, nodes ...core.Node) *core.Network {
	t.Helper()
	net := core.NewNetwork(core.DefaultNetworkConfig())
	if err := net.AddNodes(nodes...); err != nil {
		t.Fatalf("AddNodes: %v", err)
	}
	return net
}

func newUser() core.Node {
	return core.NewUserDevice(0, core.Position{}, core.DefaultProfile(core.VariantUserDevice))
}

func newBS(idx int, x float64) core.Node {
	return core.NewBaseStation(idx, core.Position{X: x}, core.DefaultProfile(core.VariantBaseStation))
}

func newHAPS(idx int) core.Node {
	return core.NewHAPS(idx, core.Position{Y: 20e3}, core.DefaultProfile(core.VariantHAPS))
}

func bind(s Strategy, net *core.Network, seed uint64) Strategy {
	s.Bind(Env{Network: net, Rand: rand.New(rand.NewPCG(seed, seed))})
	return s
}

func TestClosestNode_PicksNearestCandidate(t *testing.T) {
	user := newUser()
	net := buildNetwork(t, newBS(0, 10), newBS(1, 3), newBS(2, 7), user)
	s := bind(NewClosestNode(), net, 1)

	req := core.NewRequest(0, user, core.PriorityHigh, 1e6, 0, 0)
	sel := s.SelectComputeNode(req, net.Candidates())
	if sel.Failed() {
		t.Fatalf("expected a selection")
	}
	if sel.Node.ID().String() != "BaseStation-1" || sel.Cost != 3 {
		t.Fatalf("selected %s at %v, want BaseStation-1 at 3", sel.Node.ID(), sel.Cost)
	}
	if len(sel.Path) != 2 || sel.Path[0] != user || sel.Path[1] != sel.Node {
		t.Fatalf("unexpected path %v", sel.Path)
	}
	if req.Status() != core.StatusCreated || req.TargetNode != nil {
		t.Fatalf("strategy must not mutate the request")
	}
}

func TestClosestNode_EqualDistancesKeepEarlier(t *testing.T) {
	user := newUser()
	net := buildNetwork(t, newBS(0, -5), newBS(1, 5), user)
	sel := bind(NewClosestNode(), net, 1).SelectComputeNode(core.NewRequest(0, user, core.PriorityLow, 7e6, 0, 0), net.Candidates())
	if sel.Node == nil || sel.Node.ID().Index != 0 {
		t.Fatalf("tie should keep the first candidate, got %v", sel.Node)
	}
}

func TestMatrixBased_ReplaysVectorThenFails(t *testing.T) {
	user := newUser()
	net := buildNetwork(t, newHAPS(0), newBS(0, 100), newBS(1, 5000), user)
	compute := net.ComputeNodes()
	if len(compute) != 3 {
		t.Fatalf("expected 3 compute nodes, got %d", len(compute))
	}
	s := bind(NewMatrixBased([]int{1, 0, 2}), net, 1)

	for call, want := range []int{1, 0, 2} {
		req := core.NewRequest(uint64(call), user, core.PriorityMedium, 4e6, 0, 0)
		sel := s.SelectComputeNode(req, net.Candidates())
		if sel.Node != compute[want] {
			t.Fatalf("call %d selected %v, want %s", call, sel.Node, compute[want].ID())
		}
	}
	sel := s.SelectComputeNode(core.NewRequest(3, user, core.PriorityMedium, 4e6, 0, 0), net.Candidates())
	if !sel.Failed() || !math.IsInf(sel.Cost, 1) {
		t.Fatalf("exhausted vector should fail, got %+v", sel)
	}

	s.Bind(Env{Network: net})
	if s.(*MatrixBased).Consumed() != 0 {
		t.Fatalf("Bind should rewind the vector")
	}
}

func TestMatrixBased_OutOfRangeAndIneligibleFail(t *testing.T) {
	user := newUser()
	haps := newHAPS(0)
	net := buildNetwork(t, haps, newBS(0, 100), user)
	s := bind(NewMatrixBased([]int{5, -1, 0}), net, 1)

	req := core.NewRequest(0, user, core.PriorityHigh, 1e6, 0, 0)
	for i := 0; i < 2; i++ {
		if sel := s.SelectComputeNode(req, net.Candidates()); !sel.Failed() {
			t.Fatalf("call %d: out-of-range index should fail", i)
		}
	}
	haps.ConsumeEnergy(haps.BatteryCapacity())
	if sel := s.SelectComputeNode(req, net.Candidates()); !sel.Failed() {
		t.Fatalf("depleted node should not be selected")
	}
}

func TestHAPSOnly_NoHAPSFails(t *testing.T) {
	user := newUser()
	net := buildNetwork(t, newBS(0, 10), newBS(1, 3), user)
	sel := bind(NewHAPSOnly(), net, 1).SelectComputeNode(core.NewRequest(0, user, core.PriorityHigh, 1e6, 0, 0), net.Candidates())
	if sel.Node != nil || sel.Path != nil || !math.IsInf(sel.Cost, 1) {
		t.Fatalf("expected (nil, nil, +Inf), got %+v", sel)
	}
}

func TestHAPSOnly_PicksHAPS(t *testing.T) {
	user := newUser()
	net := buildNetwork(t, newBS(0, 10), newHAPS(0), user)
	sel := bind(NewHAPSOnly(), net, 1).SelectComputeNode(core.NewRequest(0, user, core.PriorityHigh, 1e6, 0, 0), net.Candidates())
	if sel.Node == nil || sel.Node.Variant() != core.VariantHAPS {
		t.Fatalf("expected a HAPS, got %v", sel.Node)
	}
	if sel.Cost <= 0 || math.IsInf(sel.Cost, 1) {
		t.Fatalf("cost should be a finite delay, got %v", sel.Cost)
	}
}

func TestRandom_IsSeedDeterministic(t *testing.T) {
	user := newUser()
	net := buildNetwork(t, newHAPS(0), newBS(0, 100), newBS(1, 5000), user)
	a := bind(NewRandom(), net, 42)
	b := bind(NewRandom(), net, 42)

	for i := 0; i < 20; i++ {
		req := core.NewRequest(uint64(i), user, core.PriorityLow, 8e6, 0, 0)
		sa := a.SelectComputeNode(req, net.Candidates())
		sb := b.SelectComputeNode(req, net.Candidates())
		if sa.Failed() || sa.Node != sb.Node {
			t.Fatalf("draw %d diverged: %v vs %v", i, sa.Node, sb.Node)
		}
	}
	if sel := a.SelectComputeNode(core.NewRequest(99, user, core.PriorityLow, 8e6, 0, 0), nil); !sel.Failed() {
		t.Fatalf("empty candidate set should fail")
	}
}

func TestTimeGreedy_MinimisesTimeAndAvoidsLoadedNodes(t *testing.T) {
	user := newUser()
	net := buildNetwork(t, newHAPS(0), newBS(0, 100), user)
	s := bind(NewTimeGreedy(), net, 1)
	req := core.NewRequest(0, user, core.PriorityHigh, 1e6, 0, 0)

	sel := s.SelectComputeNode(req, net.Candidates())
	if sel.Failed() {
		t.Fatalf("expected a selection")
	}
	for _, c := range net.Candidates() {
		path, err := net.FindPath(user, c)
		if err != nil {
			t.Fatalf("FindPath: %v", err)
		}
		cost := c.ProcessingTime(req.Size) + net.NetworkDelay(req.Size, path)
		if cost < sel.Cost-1e-12 {
			t.Fatalf("%s is cheaper (%v) than the selection (%v)", c.ID(), cost, sel.Cost)
		}
	}

	backlog := core.NewRequest(1, user, core.PriorityLow, 1e10, 0, 0)
	if err := backlog.Transition(core.StatusInTransit, 0); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := sel.Node.Accept(backlog, 0); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if again := s.SelectComputeNode(req, net.Candidates()); again.Node == sel.Node {
		t.Fatalf("a heavily queued node should lose to an idle one")
	}
}

func TestEnergyGreedy_PrefersCheapProcessing(t *testing.T) {
	user := newUser()
	leo := core.NewLEO(0, core.CircularOrbit{AltitudeM: 500e3}, core.DefaultProfile(core.VariantLEO))
	net := buildNetwork(t, newHAPS(0), newBS(0, 100), leo, user)

	req := core.NewRequest(0, user, core.PriorityHigh, 1e6, 0, 0)
	sel := bind(NewEnergyGreedy(), net, 1).SelectComputeNode(req, net.Candidates())
	if sel.Node == nil || sel.Node.Variant() != core.VariantBaseStation {
		t.Fatalf("expected the base station, got %v", sel.Node)
	}
	want := sel.Node.ProcessingEnergy(req.Size) + net.TransmissionEnergy(req.Size, sel.Path)
	if math.Abs(sel.Cost-want) > 1e-12 {
		t.Fatalf("cost = %v, want %v", sel.Cost, want)
	}
}
