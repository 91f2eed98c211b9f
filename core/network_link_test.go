package core

import (
	"errors"
	"math"
	"testing"
)

func TestShannonCapacity_UnitSNR(t *testing.T) {
	const bw = 1e6
	// d=1 and f=c/(4*pi) give a unit path loss; matching the signal power
	// to the noise floor gives snr=1, so capacity = B*log2(2)*vis.
	b := LinkBudget{
		DistanceM:            1,
		CarrierFrequencyHz:   SpeedOfLight / (4 * math.Pi),
		BandwidthHz:          bw,
		TxPowerW:             ThermalNoise(290, bw),
		TxGain:               1,
		RxGain:               1,
		NoiseTemperatureK:    290,
		VisibilityMultiplier: 0.1,
	}
	if got := ShannonCapacity(b); math.Abs(got-bw*0.1) > 1e-3 {
		t.Fatalf("capacity = %v, want %v", got, bw*0.1)
	}
}

func TestShannonCapacity_DegenerateInputsYieldZero(t *testing.T) {
	base := LinkBudget{
		DistanceM:            1000,
		CarrierFrequencyHz:   2e9,
		BandwidthHz:          1e8,
		TxPowerW:             1,
		TxGain:               1,
		RxGain:               1,
		NoiseTemperatureK:    290,
		VisibilityMultiplier: 0.1,
	}
	cases := map[string]func(b *LinkBudget){
		"zero bandwidth":     func(b *LinkBudget) { b.BandwidthHz = 0 },
		"zero noise":         func(b *LinkBudget) { b.NoiseTemperatureK = 0 },
		"zero distance":      func(b *LinkBudget) { b.DistanceM = 0 },
		"nan power":          func(b *LinkBudget) { b.TxPowerW = math.NaN() },
		"infinite power":     func(b *LinkBudget) { b.TxPowerW = math.Inf(1) },
		"zero visibility":    func(b *LinkBudget) { b.VisibilityMultiplier = 0 },
		"zero carrier":       func(b *LinkBudget) { b.CarrierFrequencyHz = 0 },
		"negative bandwidth": func(b *LinkBudget) { b.BandwidthHz = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			b := base
			mutate(&b)
			if got := ShannonCapacity(b); got != 0 {
				t.Fatalf("capacity = %v, want 0", got)
			}
		})
	}
	if ShannonCapacity(base) <= 0 {
		t.Fatalf("baseline budget should have positive capacity")
	}
}

func TestShannonCapacity_DecreasesWithDistance(t *testing.T) {
	b := LinkBudget{
		CarrierFrequencyHz:   2e9,
		BandwidthHz:          1e8,
		TxPowerW:             0.2,
		TxGain:               2,
		RxGain:               31.6,
		NoiseTemperatureK:    290,
		VisibilityMultiplier: 0.1,
	}
	b.DistanceM = 1e3
	near := ShannonCapacity(b)
	b.DistanceM = 20e3
	far := ShannonCapacity(b)
	if !(near > far && far > 0) {
		t.Fatalf("expected near > far > 0, got %v / %v", near, far)
	}
}

func TestNewCommunicationLink_IncompatibleAntennas(t *testing.T) {
	user := NewUserDevice(0, Position{}, DefaultProfile(VariantUserDevice))
	leo := NewLEO(0, CircularOrbit{AltitudeM: 500e3}, DefaultProfile(VariantLEO))

	_, err := NewCommunicationLink(user, leo, LinkConfig{TotalBandwidthHz: 1e8}, DefaultChannelModel())
	if !errors.Is(err, ErrIncompatibleAntennas) {
		t.Fatalf("expected ErrIncompatibleAntennas, got %v", err)
	}
}

func TestCommunicationLink_AdjustedBandwidth(t *testing.T) {
	user := NewUserDevice(0, Position{}, DefaultProfile(VariantUserDevice))
	haps := NewHAPS(0, Position{Y: 20e3}, DefaultProfile(VariantHAPS))
	l, err := NewCommunicationLink(user, haps, LinkConfig{TotalBandwidthHz: 100e6, SignalPowerDBm: 23, CarrierFrequencyHz: 2e9}, DefaultChannelModel())
	if err != nil {
		t.Fatalf("NewCommunicationLink: %v", err)
	}

	if got := l.AdjustedBandwidth(); got != 100e6 {
		t.Fatalf("idle link should see full bandwidth, got %v", got)
	}
	full := l.Capacity()
	l.SetActiveSameType(4)
	if got := l.AdjustedBandwidth(); got != 25e6 {
		t.Fatalf("AdjustedBandwidth = %v, want 25e6", got)
	}
	if shared := l.Capacity(); shared >= full {
		t.Fatalf("sharing bandwidth should lower capacity: %v >= %v", shared, full)
	}
}

func TestCommunicationLink_ProgressStaysWithinHeadSize(t *testing.T) {
	user := NewUserDevice(0, Position{}, DefaultProfile(VariantUserDevice))
	haps := NewHAPS(0, Position{Y: 20e3}, DefaultProfile(VariantHAPS))
	l, err := NewCommunicationLink(user, haps, LinkConfig{TotalBandwidthHz: 100e6, SignalPowerDBm: 23, CarrierFrequencyHz: 2e9}, DefaultChannelModel())
	if err != nil {
		t.Fatalf("NewCommunicationLink: %v", err)
	}

	first := NewRequest(1, user, PriorityLow, 10e6, 0, 0)
	second := NewRequest(2, user, PriorityLow, 7e6, 0, 0)
	l.Enqueue(first)
	l.Enqueue(second)

	var done []*Request
	for i := 0; i < 1000 && len(done) < 2; i++ {
		if r := l.Tick(0.1); r != nil {
			done = append(done, r)
			if l.Progress() != 0 {
				t.Fatalf("progress should reset after completion, got %v", l.Progress())
			}
			continue
		}
		if l.QueueLen() == 0 {
			break
		}
		head := l.queue[0]
		if p := l.Progress(); p < 0 || p > head.Size {
			t.Fatalf("progress %v outside [0, %v]", p, head.Size)
		}
	}
	if len(done) != 2 || done[0] != first || done[1] != second {
		t.Fatalf("expected FIFO completion of both requests, got %d", len(done))
	}
	if user.EnergyConsumed() <= 0 {
		t.Fatalf("sender should pay for airtime")
	}
}

func TestCommunicationLink_IdleTickIsFree(t *testing.T) {
	user := NewUserDevice(0, Position{}, DefaultProfile(VariantUserDevice))
	haps := NewHAPS(0, Position{Y: 20e3}, DefaultProfile(VariantHAPS))
	l, err := NewCommunicationLink(user, haps, DefaultNetworkConfig().UserLink, DefaultChannelModel())
	if err != nil {
		t.Fatalf("NewCommunicationLink: %v", err)
	}
	if r := l.Tick(1); r != nil {
		t.Fatalf("idle link returned %v", r)
	}
	if user.EnergyConsumed() != 0 {
		t.Fatalf("idle link should not charge the sender")
	}
}
