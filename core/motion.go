package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// OrbitModel computes a platform position from the elapsed simulation
// time, in the local frame.
type OrbitModel interface {
	PositionAt(elapsed float64) Position
}

// StaticOrbit keeps a platform at a fixed position.
type StaticOrbit struct {
	Pos Position
}

// PositionAt for a static orbit always returns the same position.
func (o StaticOrbit) PositionAt(float64) Position { return o.Pos }

// CircularOrbit moves a platform at constant altitude around the Earth
// centre. The angle grows with time at the circular orbital speed.
type CircularOrbit struct {
	AltitudeM       float64
	InitialAngleDeg float64
}

// Radius returns the orbit radius measured from the Earth centre.
func (o CircularOrbit) Radius() float64 { return EarthRadiusM + o.AltitudeM }

// Speed returns the circular orbital speed sqrt(G*M/r) in m/s.
func (o CircularOrbit) Speed() float64 {
	return math.Sqrt(GravitationalConstant * EarthMassKg / o.Radius())
}

// AngleAt returns the orbital angle in degrees after elapsed seconds.
func (o CircularOrbit) AngleAt(elapsed float64) float64 {
	omega := o.Speed() / o.Radius() * 180.0 / math.Pi
	return o.InitialAngleDeg + omega*elapsed
}

// PositionAt implements OrbitModel.
func (o CircularOrbit) PositionAt(elapsed float64) Position {
	return GlobalToLocal(PositionFromAngle(o.AngleAt(elapsed), o.Radius()))
}

// SGP4Orbit propagates a TLE with SGP4 and projects the result into the
// simulation plane. The plane is spanned by the epoch position and the
// in-plane component of the epoch velocity; InitialAngleDeg places the
// epoch position on the local circle.
type SGP4Orbit struct {
	sat             satellite.Satellite
	epoch           time.Time
	u, w            Vec3
	InitialAngleDeg float64
}

// NewSGP4Orbit builds an orbit from two TLE lines starting at epoch.
// Malformed lines are reported as ErrInvalidTLE.
func NewSGP4Orbit(line1, line2 string, epoch time.Time, initialAngleDeg float64) (*SGP4Orbit, error) {
	if err := ValidateTLE(line1, line2); err != nil {
		return nil, err
	}
	o := &SGP4Orbit{
		sat:             satellite.TLEToSat(line1, line2, satellite.GravityWGS72),
		epoch:           epoch.UTC(),
		InitialAngleDeg: initialAngleDeg,
	}
	if o.sat.Error != 0 {
		return nil, fmt.Errorf("%w: sgp4 init failed with code %d", ErrInvalidTLE, o.sat.Error)
	}
	pos, vel := o.propagate(o.epoch)
	if pos.Norm() == 0 {
		return nil, fmt.Errorf("%w: propagation at epoch failed", ErrInvalidTLE)
	}
	o.u = unit(pos)
	o.w = unit(sub(vel, scale(o.u, dot(vel, o.u))))
	return o, nil
}

const tleLineLength = 69

// tleField is a fixed-column field of a TLE line. The text is cleaned
// the same way go-satellite does before parsing.
type tleField struct {
	name       string
	line       int
	from, to   int
	integer    bool
	assumedDot bool
	exponent   bool
}

var tleFields = []tleField{
	{name: "satellite number", line: 1, from: 2, to: 7, integer: true},
	{name: "epoch year", line: 1, from: 18, to: 20, integer: true},
	{name: "epoch day", line: 1, from: 20, to: 32},
	{name: "mean motion derivative", line: 1, from: 33, to: 43},
	{name: "mean motion second derivative", line: 1, from: 44, to: 52, exponent: true},
	{name: "bstar", line: 1, from: 53, to: 61, exponent: true},
	{name: "inclination", line: 2, from: 8, to: 16},
	{name: "right ascension", line: 2, from: 17, to: 25},
	{name: "eccentricity", line: 2, from: 26, to: 33, assumedDot: true},
	{name: "argument of perigee", line: 2, from: 34, to: 42},
	{name: "mean anomaly", line: 2, from: 43, to: 51},
	{name: "mean motion", line: 2, from: 52, to: 63},
}

// ValidateTLE checks the line numbers, the line lengths and every numeric
// field the SGP4 propagator reads.
func ValidateTLE(line1, line2 string) error {
	lines := [3]string{"", line1, line2}
	for n := 1; n <= 2; n++ {
		l := lines[n]
		if len(l) < tleLineLength {
			return fmt.Errorf("%w: line %d has %d characters, want %d", ErrInvalidTLE, n, len(l), tleLineLength)
		}
		if l[0] != byte('0'+n) || l[1] != ' ' {
			return fmt.Errorf("%w: line %d must start with %q", ErrInvalidTLE, n, fmt.Sprintf("%d ", n))
		}
	}
	for _, f := range tleFields {
		raw := lines[f.line][f.from:f.to]
		var err error
		switch {
		case f.integer:
			_, err = strconv.ParseInt(strings.TrimSpace(raw), 10, 0)
		case f.exponent:
			_, err = strconv.ParseFloat(strings.Replace(raw[:1]+"."+raw[1:6]+"e"+raw[6:8], " ", "", 2), 64)
		case f.assumedDot:
			_, err = strconv.ParseFloat("."+raw, 64)
		default:
			_, err = strconv.ParseFloat(strings.Replace(raw, " ", "", 2), 64)
		}
		if err != nil {
			return fmt.Errorf("%w: line %d %s %q", ErrInvalidTLE, f.line, f.name, raw)
		}
	}
	return nil
}

// ECIAt returns the propagated ECI position in kilometres. go-satellite
// takes whole seconds, so sub-second times are interpolated linearly
// between the surrounding seconds.
func (o *SGP4Orbit) ECIAt(elapsed float64) Vec3 {
	whole := math.Floor(elapsed)
	frac := elapsed - whole
	t0 := o.epoch.Add(time.Duration(whole) * time.Second)
	a, _ := o.propagate(t0)
	if frac == 0 {
		return a
	}
	b, _ := o.propagate(t0.Add(time.Second))
	return Vec3{
		X: a.X + (b.X-a.X)*frac,
		Y: a.Y + (b.Y-a.Y)*frac,
		Z: a.Z + (b.Z-a.Z)*frac,
	}
}

// PositionAt implements OrbitModel.
func (o *SGP4Orbit) PositionAt(elapsed float64) Position {
	const kmToM = 1000.0
	p := o.ECIAt(elapsed)
	theta := math.Atan2(dot(p, o.w), dot(p, o.u)) * 180.0 / math.Pi
	return GlobalToLocal(PositionFromAngle(o.InitialAngleDeg+theta, p.Norm()*kmToM))
}

func (o *SGP4Orbit) propagate(at time.Time) (Vec3, Vec3) {
	year, month, day := at.Date()
	hour, min, sec := at.Clock()
	pos, vel := satellite.Propagate(o.sat, year, int(month), day, hour, min, sec)
	return Vec3{X: pos.X, Y: pos.Y, Z: pos.Z}, Vec3{X: vel.X, Y: vel.Y, Z: vel.Z}
}

func dot(a, b Vec3) float64 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }

func sub(a, b Vec3) Vec3 { return Vec3{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z} }

func scale(a Vec3, s float64) Vec3 { return Vec3{X: a.X * s, Y: a.Y * s, Z: a.Z * s} }

func unit(a Vec3) Vec3 {
	n := a.Norm()
	if n == 0 {
		return Vec3{}
	}
	return scale(a, 1/n)
}
