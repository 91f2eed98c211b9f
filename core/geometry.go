package core

import "math"

// Physical constants shared by the placement, orbit and link-budget code.
const (
	// EarthRadiusM is the mean Earth radius in metres.
	EarthRadiusM = 6.371e6
	// EarthMassKg is the Earth mass in kilograms.
	EarthMassKg = 5.972e24
	// GravitationalConstant is G in m^3 kg^-1 s^-2.
	GravitationalConstant = 6.67430e-11
	// BoltzmannConstant is k_B in J/K.
	BoltzmannConstant = 1.38064852e-23
	// SpeedOfLight is c in m/s.
	SpeedOfLight = 299792458.0
)

// Position is a point in the local 2-D simulation plane, in metres.
// X runs along the ground and Y is altitude above the ground origin.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// DistanceTo returns the straight-line distance between two positions.
func (p Position) DistanceTo(other Position) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// PositionFromAngle places a point on a circle of radius orbitRadius
// centred on the Earth's centre. Angle 0 is straight up from the ground
// origin; the angle grows clockwise in degrees.
func PositionFromAngle(angleDeg, orbitRadius float64) Position {
	rad := angleDeg * math.Pi / 180.0
	return Position{
		X: orbitRadius * math.Sin(rad),
		Y: orbitRadius * math.Cos(rad),
	}
}

// GlobalToLocal converts an Earth-centred position into the local frame
// whose origin sits on the Earth's surface below angle 0.
func GlobalToLocal(global Position) Position {
	return Position{X: global.X, Y: global.Y - EarthRadiusM}
}

// Vec3 is an ECEF-style vector in kilometres, as produced by SGP4.
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// DBToLinear converts a gain in dB (or dBi) to a linear ratio.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/10)
}

// DBmToWatts converts a power level in dBm to watts.
func DBmToWatts(dbm float64) float64 {
	return math.Pow(10, (dbm-30)/10)
}
