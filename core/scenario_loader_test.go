package core

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const yamlTopology = `
base_stations:
  - {x: -1000, y: 0}
  - {x: 1000, y: 0}
haps:
  - {x: 0, y: 20000}
leos:
  - altitude_m: 550000
    initial_angle_deg: 5
users:
  - {x: 900, y: 0}
profiles:
  HAPS:
    antennas:
      - {kind: UHF, gain_dbi: 15}
      - {kind: VHF, gain_dbi: 15}
    battery_j: 1000
    frequency_hz: 1.0e9
    cycles_per_bit: 100
    k: 1.0e-27
    tx_power_dbm: 30
    idle_power_w: 10
    turn_on_energy_j: 5
`

func TestLoadTopology_YAML(t *testing.T) {
	topo, err := LoadTopology(strings.NewReader(yamlTopology), true)
	if err != nil {
		t.Fatalf("LoadTopology: %v", err)
	}
	if len(topo.BaseStations) != 2 || len(topo.HAPS) != 1 || len(topo.LEOs) != 1 || len(topo.Users) != 1 {
		t.Fatalf("unexpected topology %+v", topo)
	}
	if got := topo.Profile(VariantHAPS).BatteryJ; got != 1000 {
		t.Fatalf("HAPS profile override not applied, battery=%v", got)
	}
	if got := topo.Profile(VariantLEO).FrequencyHz; got != 1e10 {
		t.Fatalf("LEO should keep its default profile, f=%v", got)
	}

	net, err := topo.Build(topo.Users, time.Time{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := len(net.Nodes()); got != 5 {
		t.Fatalf("node count = %d, want 5", got)
	}
	if _, ok := net.Link(NodeID{Variant: VariantUserDevice}, NodeID{Variant: VariantBaseStation, Index: 1}); !ok {
		t.Fatalf("user should link to the nearest base station")
	}
}

func TestLoadTopology_JSONRejectsUnknownFields(t *testing.T) {
	_, err := LoadTopology(strings.NewReader(`{"haps": [], "satellites": []}`), false)
	if err == nil {
		t.Fatalf("expected decode error for unknown field")
	}
}

func TestTopology_Validate(t *testing.T) {
	cases := map[string]Topology{
		"half tle":      {LEOs: []LEOSpec{{TLE1: "1 25544U"}}},
		"short tle":     {LEOs: []LEOSpec{{TLE1: "1 bad", TLE2: "2 bad"}}},
		"swapped tle":   {LEOs: []LEOSpec{{TLE1: issTLE2, TLE2: issTLE1}}},
		"zero altitude": {LEOs: []LEOSpec{{AltitudeM: 0}}},
		"bad profile":   {Profiles: map[string]NodeProfile{"Blimp": {}}},
	}
	for name, topo := range cases {
		if err := topo.Validate(); !errors.Is(err, ErrInvalidTopology) {
			t.Fatalf("%s: expected ErrInvalidTopology, got %v", name, err)
		}
	}
	if err := DefaultTopology().Validate(); err != nil {
		t.Fatalf("default topology invalid: %v", err)
	}
}

func TestLoadTopologyFile_PicksFormatFromExtension(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "topo.yml")
	if err := os.WriteFile(yml, []byte(yamlTopology), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadTopologyFile(yml); err != nil {
		t.Fatalf("LoadTopologyFile(yaml): %v", err)
	}

	js := filepath.Join(dir, "topo.json")
	body := `{"base_stations": [{"x": 0, "y": 0}], "haps": [{"x": 0, "y": 20000}], "leos": []}`
	if err := os.WriteFile(js, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	topo, err := LoadTopologyFile(js)
	if err != nil {
		t.Fatalf("LoadTopologyFile(json): %v", err)
	}
	if len(topo.BaseStations) != 1 {
		t.Fatalf("unexpected topology %+v", topo)
	}
}

func TestTopology_MalformedTLEIsAnError(t *testing.T) {
	garbled := issTLE2[:8] + " 51.6x59" + issTLE2[16:]
	topo := Topology{
		BaseStations: []Position{{X: 0}},
		LEOs:         []LEOSpec{{TLE1: issTLE1, TLE2: garbled}},
	}
	_, err := topo.Build(nil, time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrInvalidTopology) || !errors.Is(err, ErrInvalidTLE) {
		t.Fatalf("expected ErrInvalidTopology wrapping ErrInvalidTLE, got %v", err)
	}

	body := `{"leos": [{"tle1": "1 bad", "tle2": "2 bad"}]}`
	if _, err := LoadTopology(strings.NewReader(body), false); !errors.Is(err, ErrInvalidTLE) {
		t.Fatalf("loader should reject a short TLE, got %v", err)
	}
}
