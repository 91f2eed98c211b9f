package core

import (
	"fmt"
	"math"
)

// Unlimited is the battery capacity sentinel for mains-powered nodes.
const Unlimited = -1.0

// Variant tags the concrete kind of a node.
type Variant int

const (
	VariantUserDevice Variant = iota
	VariantBaseStation
	VariantHAPS
	VariantLEO
)

// ComputeVariants lists the variants able to process requests.
var ComputeVariants = []Variant{VariantBaseStation, VariantHAPS, VariantLEO}

func (v Variant) String() string {
	switch v {
	case VariantUserDevice:
		return "UserDevice"
	case VariantBaseStation:
		return "BaseStation"
	case VariantHAPS:
		return "HAPS"
	case VariantLEO:
		return "LEO"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// ParseVariant maps a variant name back to its value.
func ParseVariant(s string) (Variant, error) {
	for _, v := range []Variant{VariantUserDevice, VariantBaseStation, VariantHAPS, VariantLEO} {
		if v.String() == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown node variant %q", s)
}

// PowerState is the on/off state of a node.
type PowerState int

const (
	PowerOff PowerState = iota
	PowerOn
)

func (s PowerState) String() string {
	if s == PowerOn {
		return "ON"
	}
	return "OFF"
}

// NodeID identifies a node: the index is unique within its variant.
type NodeID struct {
	Variant Variant
	Index   int
}

func (id NodeID) String() string {
	return fmt.Sprintf("%s-%d", id.Variant, id.Index)
}

// NodeProfile holds the physical parameters of a node variant.
type NodeProfile struct {
	Antennas []Antenna `json:"antennas" yaml:"antennas"`
	// BatteryJ is the battery capacity in joules, or Unlimited.
	BatteryJ float64 `json:"battery_j" yaml:"battery_j"`
	// FrequencyHz is the processing frequency; zero means the node
	// cannot compute.
	FrequencyHz  float64 `json:"frequency_hz" yaml:"frequency_hz"`
	CyclesPerBit float64 `json:"cycles_per_bit" yaml:"cycles_per_bit"`
	// K is the effective switched capacitance: processing power is K*f^3.
	K             float64 `json:"k" yaml:"k"`
	TxPowerDBm    float64 `json:"tx_power_dbm" yaml:"tx_power_dbm"`
	IdlePowerW    float64 `json:"idle_power_w" yaml:"idle_power_w"`
	TurnOnEnergyJ float64 `json:"turn_on_energy_j" yaml:"turn_on_energy_j"`
}

// DefaultProfile returns the built-in profile of a variant.
func DefaultProfile(v Variant) NodeProfile {
	const cyclesPerBit = 200
	switch v {
	case VariantBaseStation:
		return NodeProfile{
			Antennas:      []Antenna{{Kind: AntennaVHF, GainDBi: 10, HeightM: 30}},
			BatteryJ:      Unlimited,
			FrequencyHz:   3e9,
			CyclesPerBit:  cyclesPerBit,
			K:             1e-27,
			TxPowerDBm:    30,
			IdlePowerW:    50,
			TurnOnEnergyJ: 150,
		}
	case VariantHAPS:
		return NodeProfile{
			Antennas: []Antenna{
				{Kind: AntennaUHF, GainDBi: 15, HeightM: 20e3},
				{Kind: AntennaVHF, GainDBi: 15, HeightM: 20e3},
			},
			BatteryJ:      2e4,
			FrequencyHz:   5e9,
			CyclesPerBit:  cyclesPerBit,
			K:             1e-27,
			TxPowerDBm:    33,
			IdlePowerW:    50,
			TurnOnEnergyJ: 150,
		}
	case VariantLEO:
		return NodeProfile{
			Antennas:      []Antenna{{Kind: AntennaUHF, GainDBi: 20, HeightM: 500e3}},
			BatteryJ:      5e4,
			FrequencyHz:   1e10,
			CyclesPerBit:  cyclesPerBit,
			K:             1e-27,
			TxPowerDBm:    40,
			IdlePowerW:    50,
			TurnOnEnergyJ: 150,
		}
	default:
		return NodeProfile{
			Antennas:     []Antenna{{Kind: AntennaVHF, GainDBi: 3, HeightM: 1.5}},
			BatteryJ:     Unlimited,
			CyclesPerBit: cyclesPerBit,
			TxPowerDBm:   23,
		}
	}
}

// Node is the capability contract shared by every network element.
type Node interface {
	ID() NodeID
	Variant() Variant
	Position() Position
	Antennas() []Antenna
	Profile() NodeProfile

	PowerState() PowerState
	IsOn() bool
	// SetPower switches the node and reports whether the state changed.
	// Depleted nodes refuse to switch on.
	SetPower(on bool) bool

	BatteryCapacity() float64
	HasUnlimitedBattery() bool
	EnergyConsumed() float64
	RemainingEnergy() float64
	IsDepleted() bool
	ConsumeEnergy(joules float64)
	// EnergyHistory holds the energy consumed during each closed sample.
	EnergyHistory() []float64
	// CloseSample appends the energy consumed since the previous close to
	// the history and returns it. Call it once per tick, after every
	// charge of that tick.
	CloseSample() float64

	CanCompute() bool
	ProcessingPower() float64
	TransmissionPowerW() float64
	ProcessingTime(bits float64) float64
	ProcessingEnergy(bits float64) float64

	ProcessingQueue() []*Request
	QueueLen() int
	QueuedBits() float64
	Accept(req *Request, now float64) error
	// Tick advances the node by dt. It returns the request that reached a
	// terminal state during this tick, if any.
	Tick(now, dt float64) *Request
}

// Mover is implemented by nodes whose position depends on time.
type Mover interface {
	UpdatePosition(elapsed float64)
}

type baseNode struct {
	id       NodeID
	position Position
	profile  NodeProfile

	power    PowerState
	consumed float64
	history  []float64
	tickMark float64

	queue    []*Request
	progress float64
}

func newBaseNode(id NodeID, pos Position, profile NodeProfile) baseNode {
	return baseNode{id: id, position: pos, profile: profile}
}

func (b *baseNode) ID() NodeID             { return b.id }
func (b *baseNode) Variant() Variant       { return b.id.Variant }
func (b *baseNode) Position() Position     { return b.position }
func (b *baseNode) Profile() NodeProfile   { return b.profile }
func (b *baseNode) PowerState() PowerState { return b.power }
func (b *baseNode) IsOn() bool             { return b.power == PowerOn }

func (b *baseNode) Antennas() []Antenna {
	out := make([]Antenna, len(b.profile.Antennas))
	copy(out, b.profile.Antennas)
	return out
}

func (b *baseNode) SetPower(on bool) bool {
	if on {
		if b.power == PowerOn || b.IsDepleted() {
			return false
		}
		b.power = PowerOn
		b.ConsumeEnergy(b.profile.TurnOnEnergyJ)
		return true
	}
	if b.power == PowerOff {
		return false
	}
	b.power = PowerOff
	return true
}

func (b *baseNode) BatteryCapacity() float64  { return b.profile.BatteryJ }
func (b *baseNode) HasUnlimitedBattery() bool { return b.profile.BatteryJ < 0 }
func (b *baseNode) EnergyConsumed() float64   { return b.consumed }

func (b *baseNode) RemainingEnergy() float64 {
	if b.HasUnlimitedBattery() {
		return math.Inf(1)
	}
	return b.profile.BatteryJ - b.consumed
}

func (b *baseNode) IsDepleted() bool {
	return !b.HasUnlimitedBattery() && b.RemainingEnergy() <= 0
}

func (b *baseNode) ConsumeEnergy(joules float64) {
	if joules > 0 {
		b.consumed += joules
	}
}

func (b *baseNode) EnergyHistory() []float64 {
	out := make([]float64, len(b.history))
	copy(out, b.history)
	return out
}

func (b *baseNode) CanCompute() bool { return b.profile.FrequencyHz > 0 }

func (b *baseNode) ProcessingPower() float64 {
	f := b.profile.FrequencyHz
	return b.profile.K * f * f * f
}

func (b *baseNode) TransmissionPowerW() float64 { return DBmToWatts(b.profile.TxPowerDBm) }

func (b *baseNode) ProcessingTime(bits float64) float64 {
	if !b.CanCompute() {
		return math.Inf(1)
	}
	return bits * b.profile.CyclesPerBit / b.profile.FrequencyHz
}

func (b *baseNode) ProcessingEnergy(bits float64) float64 {
	return b.ProcessingPower() * b.ProcessingTime(bits)
}

func (b *baseNode) ProcessingQueue() []*Request {
	out := make([]*Request, len(b.queue))
	copy(out, b.queue)
	return out
}

func (b *baseNode) QueueLen() int { return len(b.queue) }

func (b *baseNode) QueuedBits() float64 {
	total := -b.progress
	for _, r := range b.queue {
		total += r.Size
	}
	return math.Max(0, total)
}

func (b *baseNode) Accept(req *Request, now float64) error {
	if !b.CanCompute() {
		return fmt.Errorf("%w: %s cannot process requests", ErrNotComputeNode, b.id)
	}
	if err := req.Transition(StatusInProcessingQueue, now); err != nil {
		return err
	}
	b.queue = append(b.queue, req)
	return nil
}

// Tick processes the head of the queue while the node is on and charges
// idle and processing energy.
func (b *baseNode) Tick(now, dt float64) *Request {
	if b.IsDepleted() {
		b.power = PowerOff
	}
	var done *Request
	if b.power == PowerOn {
		b.ConsumeEnergy(b.profile.IdlePowerW * dt)
		done = b.processHead(now, dt)
	}
	return done
}

func (b *baseNode) CloseSample() float64 {
	delta := b.consumed - b.tickMark
	b.history = append(b.history, delta)
	b.tickMark = b.consumed
	return delta
}

func (b *baseNode) processHead(now, dt float64) *Request {
	if len(b.queue) == 0 || !b.CanCompute() {
		return nil
	}
	head := b.queue[0]
	if head.Status() == StatusInProcessingQueue {
		_ = head.Transition(StatusProcessing, now)
	}
	bits := b.profile.FrequencyHz * dt / b.profile.CyclesPerBit
	b.progress = math.Min(b.progress+bits, head.Size)
	head.ProcessingProgress = b.progress
	b.ConsumeEnergy(b.ProcessingPower() * dt)

	if b.progress < head.Size {
		return nil
	}
	b.queue = b.queue[1:]
	b.progress = 0
	end := now + dt
	if b.IsDepleted() || !head.WithinDeadline(end) {
		head.Fail(end)
	} else {
		_ = head.Transition(StatusCompleted, end)
	}
	return head
}

// UserDevice is a ground terminal. It originates requests and is always on.
type UserDevice struct {
	baseNode
}

// NewUserDevice creates a user device.
func NewUserDevice(index int, pos Position, profile NodeProfile) *UserDevice {
	u := &UserDevice{baseNode: newBaseNode(NodeID{Variant: VariantUserDevice, Index: index}, pos, profile)}
	u.power = PowerOn
	return u
}

// SetPower is a no-op: user devices never switch off.
func (u *UserDevice) SetPower(bool) bool { return false }

// BaseStation is a terrestrial compute node on mains power.
type BaseStation struct {
	baseNode
}

// NewBaseStation creates a base station, initially off.
func NewBaseStation(index int, pos Position, profile NodeProfile) *BaseStation {
	return &BaseStation{baseNode: newBaseNode(NodeID{Variant: VariantBaseStation, Index: index}, pos, profile)}
}

// HAPS is a high-altitude platform station with a finite battery.
type HAPS struct {
	baseNode
}

// NewHAPS creates a HAPS, initially off.
func NewHAPS(index int, pos Position, profile NodeProfile) *HAPS {
	return &HAPS{baseNode: newBaseNode(NodeID{Variant: VariantHAPS, Index: index}, pos, profile)}
}

// LEO is a low-earth-orbit satellite whose position follows its orbit.
type LEO struct {
	baseNode
	orbit OrbitModel
}

// NewLEO creates a LEO node positioned by orbit at elapsed time zero.
func NewLEO(index int, orbit OrbitModel, profile NodeProfile) *LEO {
	l := &LEO{
		baseNode: newBaseNode(NodeID{Variant: VariantLEO, Index: index}, orbit.PositionAt(0), profile),
		orbit:    orbit,
	}
	return l
}

// Orbit returns the orbit model driving the satellite.
func (l *LEO) Orbit() OrbitModel { return l.orbit }

// UpdatePosition moves the satellite to its orbital position at elapsed.
func (l *LEO) UpdatePosition(elapsed float64) {
	l.position = l.orbit.PositionAt(elapsed)
}

// NewNode builds a node of the given variant. LEO nodes are placed by a
// static orbit at pos; use NewLEO for moving satellites.
func NewNode(v Variant, index int, pos Position, profile NodeProfile) Node {
	switch v {
	case VariantBaseStation:
		return NewBaseStation(index, pos, profile)
	case VariantHAPS:
		return NewHAPS(index, pos, profile)
	case VariantLEO:
		return NewLEO(index, StaticOrbit{Pos: pos}, profile)
	default:
		return NewUserDevice(index, pos, profile)
	}
}
