package core

import (
	"errors"
	"math"
	"testing"
)

func inTransit(t *testing.T, r *Request) *Request {
	t.Helper()
	if err := r.Transition(StatusInTransit, r.CreationTime); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	return r
}

func TestNode_DefaultPowerStates(t *testing.T) {
	user := NewUserDevice(0, Position{}, DefaultProfile(VariantUserDevice))
	if !user.IsOn() {
		t.Fatalf("user devices are always on")
	}
	if user.SetPower(false) || !user.IsOn() {
		t.Fatalf("user devices cannot be switched off")
	}

	for _, n := range []Node{
		NewBaseStation(0, Position{}, DefaultProfile(VariantBaseStation)),
		NewHAPS(0, Position{}, DefaultProfile(VariantHAPS)),
		NewLEO(0, CircularOrbit{AltitudeM: 500e3}, DefaultProfile(VariantLEO)),
	} {
		if n.IsOn() {
			t.Fatalf("%s should start off", n.ID())
		}
		if !n.CanCompute() {
			t.Fatalf("%s should compute", n.ID())
		}
	}
}

func TestNode_TurnOnChargesPeak(t *testing.T) {
	haps := NewHAPS(0, Position{}, DefaultProfile(VariantHAPS))
	if !haps.SetPower(true) {
		t.Fatalf("SetPower(true) should report a change")
	}
	if got := haps.EnergyConsumed(); got != 150 {
		t.Fatalf("turn-on energy = %v, want 150", got)
	}
	if haps.SetPower(true) {
		t.Fatalf("second SetPower(true) should be a no-op")
	}
	if got := haps.EnergyConsumed(); got != 150 {
		t.Fatalf("no-op SetPower charged energy: %v", got)
	}
}

func TestNode_EnergyIsMonotonic(t *testing.T) {
	haps := NewHAPS(0, Position{}, DefaultProfile(VariantHAPS))
	haps.SetPower(true)
	r := inTransit(t, NewRequest(0, nil, PriorityLow, 8e6, 0, 0))
	if err := haps.Accept(r, 0); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	prev := haps.EnergyConsumed()
	for i := 0; i < 50; i++ {
		if i == 25 {
			haps.SetPower(false)
		}
		haps.Tick(float64(i)*0.1, 0.1)
		haps.CloseSample()
		if got := haps.EnergyConsumed(); got < prev {
			t.Fatalf("energy decreased at tick %d: %v < %v", i, got, prev)
		}
		prev = haps.EnergyConsumed()
	}
	for i, s := range haps.EnergyHistory() {
		if s < 0 {
			t.Fatalf("negative energy sample %v at %d", s, i)
		}
	}
	if got := len(haps.EnergyHistory()); got != 50 {
		t.Fatalf("history has %d samples, want 50", got)
	}
}

func TestNode_HistoryCountsChargesAfterTick(t *testing.T) {
	haps := NewHAPS(0, Position{}, DefaultProfile(VariantHAPS))
	for i := 0; i < 4; i++ {
		haps.Tick(float64(i), 1)
		switch i {
		case 1:
			haps.SetPower(true)
		case 2:
			haps.ConsumeEnergy(5)
		}
		haps.CloseSample()
	}

	hist := haps.EnergyHistory()
	if len(hist) != 4 {
		t.Fatalf("history has %d samples, want 4", len(hist))
	}
	if hist[0] != 0 {
		t.Fatalf("off node charged %v in the first tick", hist[0])
	}
	if want := haps.Profile().TurnOnEnergyJ; hist[1] != want {
		t.Fatalf("turn-on tick sample = %v, want %v", hist[1], want)
	}
	sum := 0.0
	for _, v := range hist {
		sum += v
	}
	if math.Abs(sum-haps.EnergyConsumed()) > 1e-9 {
		t.Fatalf("history sums to %v, consumed %v", sum, haps.EnergyConsumed())
	}
}

func TestNode_ProcessesOnlyWhileOn(t *testing.T) {
	bs := NewBaseStation(0, Position{}, DefaultProfile(VariantBaseStation))
	r := inTransit(t, NewRequest(0, nil, PriorityHigh, 1e6, 0, 0))
	if err := bs.Accept(r, 0); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	bs.Tick(0, 0.01)
	if r.Status() != StatusInProcessingQueue || bs.EnergyConsumed() != 0 {
		t.Fatalf("off node should neither process nor consume: %s, %v J", r.Status(), bs.EnergyConsumed())
	}

	bs.SetPower(true)
	var done *Request
	now := 0.01
	for i := 0; i < 20 && done == nil; i++ {
		done = bs.Tick(now, 0.01)
		now += 0.01
	}
	if done != r || r.Status() != StatusCompleted {
		t.Fatalf("expected completion, got %v (%s)", done, r.Status())
	}
	if r.ProcessingProgress != r.Size {
		t.Fatalf("progress %v should equal size %v", r.ProcessingProgress, r.Size)
	}
	if bs.QueueLen() != 0 {
		t.Fatalf("queue should be empty after completion")
	}
}

func TestNode_MissedDeadlineFails(t *testing.T) {
	profile := DefaultProfile(VariantHAPS)
	profile.FrequencyHz = 1e6
	haps := NewHAPS(0, Position{}, profile)
	haps.SetPower(true)

	// 500 bits per 0.1 s tick: four ticks end past the 0.2 s deadline.
	r := inTransit(t, NewRequest(0, nil, PriorityHigh, 2e3, 0, 0))
	if err := haps.Accept(r, 0); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	var done *Request
	for i := 0; i < 10 && done == nil; i++ {
		done = haps.Tick(float64(i)*0.1, 0.1)
	}
	if done != r || r.Status() != StatusFailed {
		t.Fatalf("expected FAILED, got %s", r.Status())
	}
}

func TestNode_DepletedBatteryForcesOff(t *testing.T) {
	profile := DefaultProfile(VariantHAPS)
	profile.BatteryJ = 100
	haps := NewHAPS(0, Position{}, profile)

	haps.SetPower(true)
	if !haps.IsDepleted() {
		t.Fatalf("turn-on peak should exhaust a 100 J battery")
	}
	haps.Tick(0, 0.1)
	if haps.IsOn() {
		t.Fatalf("depleted node must be forced off")
	}
	if haps.SetPower(true) {
		t.Fatalf("depleted node must refuse to power on")
	}
	if haps.RemainingEnergy() > 0 {
		t.Fatalf("remaining energy = %v", haps.RemainingEnergy())
	}
}

func TestNode_UnlimitedBattery(t *testing.T) {
	bs := NewBaseStation(0, Position{}, DefaultProfile(VariantBaseStation))
	if !bs.HasUnlimitedBattery() || !math.IsInf(bs.RemainingEnergy(), 1) || bs.IsDepleted() {
		t.Fatalf("base stations run on mains power")
	}
}

func TestNode_ProcessingModel(t *testing.T) {
	bs := NewBaseStation(0, Position{}, DefaultProfile(VariantBaseStation))
	if got := bs.ProcessingTime(3e6); math.Abs(got-0.2) > 1e-12 {
		t.Fatalf("ProcessingTime = %v, want 0.2", got)
	}
	if got := bs.ProcessingPower(); math.Abs(got-27) > 1e-9 {
		t.Fatalf("ProcessingPower = %v, want 27 W", got)
	}
	if got := bs.ProcessingEnergy(3e6); math.Abs(got-5.4) > 1e-9 {
		t.Fatalf("ProcessingEnergy = %v, want 5.4 J", got)
	}

	user := NewUserDevice(0, Position{}, DefaultProfile(VariantUserDevice))
	if !math.IsInf(user.ProcessingTime(1), 1) {
		t.Fatalf("user devices cannot process")
	}
	r := inTransit(t, NewRequest(0, user, PriorityLow, 7e6, 0, 0))
	if err := user.Accept(r, 0); !errors.Is(err, ErrNotComputeNode) {
		t.Fatalf("expected ErrNotComputeNode, got %v", err)
	}
}

func TestLEO_FollowsOrbit(t *testing.T) {
	orbit := CircularOrbit{AltitudeM: 500e3}
	leo := NewLEO(1, orbit, DefaultProfile(VariantLEO))
	if leo.Position() != orbit.PositionAt(0) {
		t.Fatalf("LEO should start at its epoch position")
	}
	leo.UpdatePosition(60)
	if leo.Position() != orbit.PositionAt(60) {
		t.Fatalf("LEO position not driven by its orbit")
	}
	if leo.ID().String() != "LEO-1" {
		t.Fatalf("ID = %s", leo.ID())
	}
}
