package core

import (
	"fmt"
	"math"
)

// DefaultNoiseTemperatureK is the receiver noise temperature.
const DefaultNoiseTemperatureK = 290.0

// DefaultVisibilityMultiplier scales Shannon capacity so transmissions
// last a visible number of ticks.
const DefaultVisibilityMultiplier = 0.1

// LinkConfig carries the radio parameters of one link class.
type LinkConfig struct {
	TotalBandwidthHz   float64 `json:"total_bandwidth_hz" yaml:"total_bandwidth_hz"`
	SignalPowerDBm     float64 `json:"signal_power_dbm" yaml:"signal_power_dbm"`
	CarrierFrequencyHz float64 `json:"carrier_frequency_hz" yaml:"carrier_frequency_hz"`
}

// ChannelModel holds the network-wide constants of the capacity model.
type ChannelModel struct {
	NoiseTemperatureK    float64 `json:"noise_temperature_k" yaml:"noise_temperature_k"`
	VisibilityMultiplier float64 `json:"visibility_multiplier" yaml:"visibility_multiplier"`
}

// DefaultChannelModel returns the built-in channel constants.
func DefaultChannelModel() ChannelModel {
	return ChannelModel{
		NoiseTemperatureK:    DefaultNoiseTemperatureK,
		VisibilityMultiplier: DefaultVisibilityMultiplier,
	}
}

// LinkBudget is the input of the Shannon capacity model. Gains are linear.
type LinkBudget struct {
	DistanceM            float64
	CarrierFrequencyHz   float64
	BandwidthHz          float64
	TxPowerW             float64
	TxGain               float64
	RxGain               float64
	NoiseTemperatureK    float64
	VisibilityMultiplier float64
}

// FreeSpacePathLoss returns (4*pi*d*f/c)^2 as a linear ratio.
func FreeSpacePathLoss(distanceM, frequencyHz float64) float64 {
	x := 4 * math.Pi * distanceM * frequencyHz / SpeedOfLight
	return x * x
}

// ThermalNoise returns k_B*T*B in watts.
func ThermalNoise(temperatureK, bandwidthHz float64) float64 {
	return BoltzmannConstant * temperatureK * bandwidthHz
}

// ShannonCapacity returns the achievable rate in bits/s. Degenerate
// inputs (no bandwidth, no noise, zero path loss, non-finite values)
// yield zero.
func ShannonCapacity(b LinkBudget) float64 {
	if b.BandwidthHz <= 0 {
		return 0
	}
	noise := ThermalNoise(b.NoiseTemperatureK, b.BandwidthHz)
	fspl := FreeSpacePathLoss(b.DistanceM, b.CarrierFrequencyHz)
	if noise <= 0 || fspl <= 0 {
		return 0
	}
	snr := b.TxPowerW * b.TxGain * b.RxGain / (fspl * noise)
	c := b.BandwidthHz * math.Log2(1+snr) * b.VisibilityMultiplier
	if math.IsNaN(c) || math.IsInf(c, 0) || c < 0 {
		return 0
	}
	return c
}

// CommunicationLink is a directional radio link with a FIFO transmission
// queue. Only the head of the queue is transmitted.
type CommunicationLink struct {
	from, to Node
	config   LinkConfig
	channel  ChannelModel
	tx, rx   Antenna

	sameType int
	queue    []*Request
	progress float64
}

// NewCommunicationLink links from -> to using the first compatible
// antenna pair.
func NewCommunicationLink(from, to Node, cfg LinkConfig, channel ChannelModel) (*CommunicationLink, error) {
	tx, rx, ok := compatibleAntennas(from.Antennas(), to.Antennas())
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIncompatibleAntennas, from.ID(), to.ID())
	}
	return &CommunicationLink{from: from, to: to, config: cfg, channel: channel, tx: tx, rx: rx}, nil
}

func (l *CommunicationLink) From() Node         { return l.from }
func (l *CommunicationLink) To() Node           { return l.to }
func (l *CommunicationLink) Config() LinkConfig { return l.config }

func (l *CommunicationLink) String() string {
	return fmt.Sprintf("%s->%s", l.from.ID(), l.to.ID())
}

// SetActiveSameType records how many active links share the receiver and
// the sender variant with this one.
func (l *CommunicationLink) SetActiveSameType(n int) { l.sameType = n }

// AdjustedBandwidth splits the total bandwidth among active links of the
// same type.
func (l *CommunicationLink) AdjustedBandwidth() float64 {
	return l.config.TotalBandwidthHz / float64(max(1, l.sameType))
}

// Budget assembles the current link budget.
func (l *CommunicationLink) Budget() LinkBudget {
	return LinkBudget{
		DistanceM:            l.from.Position().DistanceTo(l.to.Position()),
		CarrierFrequencyHz:   l.config.CarrierFrequencyHz,
		BandwidthHz:          l.AdjustedBandwidth(),
		TxPowerW:             DBmToWatts(l.config.SignalPowerDBm),
		TxGain:               l.tx.LinearGain(),
		RxGain:               l.rx.LinearGain(),
		NoiseTemperatureK:    l.channel.NoiseTemperatureK,
		VisibilityMultiplier: l.channel.VisibilityMultiplier,
	}
}

// Capacity returns the current rate in bits/s.
func (l *CommunicationLink) Capacity() float64 { return ShannonCapacity(l.Budget()) }

// TransmissionTime returns the seconds needed to send bits, or +Inf when
// the link has no capacity.
func (l *CommunicationLink) TransmissionTime(bits float64) float64 {
	c := l.Capacity()
	if c <= 0 {
		return math.Inf(1)
	}
	return bits / c
}

// Enqueue appends a request to the transmission queue.
func (l *CommunicationLink) Enqueue(req *Request) { l.queue = append(l.queue, req) }

// IsActive reports whether the link has something to send.
func (l *CommunicationLink) IsActive() bool { return len(l.queue) > 0 }

func (l *CommunicationLink) QueueLen() int { return len(l.queue) }

// Progress returns the bits of the head request already sent.
func (l *CommunicationLink) Progress() float64 { return l.progress }

// Drain empties the queue and returns what it held.
func (l *CommunicationLink) Drain() []*Request {
	out := l.queue
	l.queue = nil
	l.progress = 0
	return out
}

// Tick transmits the head request for dt seconds and charges the sender
// for the airtime. It returns the head once fully transmitted.
func (l *CommunicationLink) Tick(dt float64) *Request {
	if len(l.queue) == 0 {
		return nil
	}
	head := l.queue[0]
	l.from.ConsumeEnergy(l.from.TransmissionPowerW() * dt)
	l.progress = math.Min(l.progress+l.Capacity()*dt, head.Size)
	if l.progress < head.Size {
		return nil
	}
	l.queue = l.queue[1:]
	l.progress = 0
	return head
}

