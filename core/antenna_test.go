package core

import "testing"

func TestCompatibleAntennas_PicksFirstSharedKind(t *testing.T) {
	tx := []Antenna{{Kind: AntennaUHF, GainDBi: 15}, {Kind: AntennaVHF, GainDBi: 12}}
	rx := []Antenna{{Kind: AntennaVHF, GainDBi: 3}, {Kind: AntennaUHF, GainDBi: 20}}

	a, b, ok := compatibleAntennas(tx, rx)
	if !ok {
		t.Fatalf("expected a compatible pair")
	}
	if a.Kind != AntennaUHF || b.Kind != AntennaUHF || b.GainDBi != 20 {
		t.Fatalf("unexpected pair %+v / %+v", a, b)
	}
}

func TestCompatibleAntennas_NoOverlap(t *testing.T) {
	tx := []Antenna{{Kind: AntennaUHF, GainDBi: 15}}
	rx := []Antenna{{Kind: AntennaVHF, GainDBi: 3}}

	if _, _, ok := compatibleAntennas(tx, rx); ok {
		t.Fatalf("UHF and VHF must not be compatible")
	}
}
