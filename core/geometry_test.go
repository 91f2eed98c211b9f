package core

import (
	"math"
	"testing"
)

func TestPositionDistance(t *testing.T) {
	a := Position{X: 0, Y: 0}
	b := Position{X: 300, Y: 400}

	if got := a.DistanceTo(b); got != 500 {
		t.Fatalf("DistanceTo = %v, want 500", got)
	}
	if got := b.DistanceTo(a); got != 500 {
		t.Fatalf("DistanceTo should be symmetric, got %v", got)
	}
}

func TestPositionFromAngle_OverheadIsLocalAltitude(t *testing.T) {
	const altitude = 500e3
	global := PositionFromAngle(0, EarthRadiusM+altitude)
	local := GlobalToLocal(global)

	if math.Abs(local.X) > 1e-6 {
		t.Fatalf("expected x=0 overhead, got %v", local.X)
	}
	if math.Abs(local.Y-altitude) > 1e-3 {
		t.Fatalf("expected local altitude %v, got %v", altitude, local.Y)
	}
}

func TestDecibelConversions(t *testing.T) {
	if got := DBToLinear(3); math.Abs(got-math.Pow(10, 0.3)) > 1e-12 {
		t.Fatalf("DBToLinear(3) = %v", got)
	}
	if got := DBmToWatts(30); math.Abs(got-1) > 1e-12 {
		t.Fatalf("DBmToWatts(30) = %v, want 1", got)
	}
	if got := DBmToWatts(23); math.Abs(got-math.Pow(10, -0.7)) > 1e-12 {
		t.Fatalf("DBmToWatts(23) = %v", got)
	}
}
