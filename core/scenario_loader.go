package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Topology describes the fixed infrastructure of a scenario. User
// devices may be listed explicitly or left for the simulation to place.
type Topology struct {
	BaseStations []Position `json:"base_stations" yaml:"base_stations"`
	HAPS         []Position `json:"haps" yaml:"haps"`
	LEOs         []LEOSpec  `json:"leos" yaml:"leos"`
	Users        []Position `json:"users,omitempty" yaml:"users,omitempty"`

	// Profiles overrides the default profile of a variant, keyed by
	// variant name ("BaseStation", "HAPS", "LEO", "UserDevice").
	Profiles map[string]NodeProfile `json:"profiles,omitempty" yaml:"profiles,omitempty"`
	Network  *NetworkConfig         `json:"network,omitempty" yaml:"network,omitempty"`
}

// LEOSpec places one satellite. When both TLE lines are set the
// satellite follows SGP4, otherwise a circular orbit.
type LEOSpec struct {
	AltitudeM       float64 `json:"altitude_m" yaml:"altitude_m"`
	InitialAngleDeg float64 `json:"initial_angle_deg" yaml:"initial_angle_deg"`
	TLE1            string  `json:"tle1,omitempty" yaml:"tle1,omitempty"`
	TLE2            string  `json:"tle2,omitempty" yaml:"tle2,omitempty"`
}

// DefaultTopology is the reference scenario: one HAPS above the origin,
// four base stations along the ground and two LEO satellites.
func DefaultTopology() Topology {
	return Topology{
		BaseStations: []Position{{X: -7500}, {X: -2500}, {X: 2500}, {X: 7500}},
		HAPS:         []Position{{X: 0, Y: 20e3}},
		LEOs: []LEOSpec{
			{AltitudeM: 500e3, InitialAngleDeg: 0},
			{AltitudeM: 500e3, InitialAngleDeg: 10},
		},
	}
}

// Validate checks structural constraints on the topology.
func (t Topology) Validate() error {
	for i, l := range t.LEOs {
		hasTLE := l.TLE1 != "" || l.TLE2 != ""
		if hasTLE && (l.TLE1 == "" || l.TLE2 == "") {
			return fmt.Errorf("%w: leo %d needs both TLE lines", ErrInvalidTopology, i)
		}
		if hasTLE {
			if err := ValidateTLE(l.TLE1, l.TLE2); err != nil {
				return fmt.Errorf("%w: leo %d: %w", ErrInvalidTopology, i, err)
			}
		}
		if !hasTLE && l.AltitudeM <= 0 {
			return fmt.Errorf("%w: leo %d altitude must be positive", ErrInvalidTopology, i)
		}
	}
	for name := range t.Profiles {
		if _, err := ParseVariant(name); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTopology, err)
		}
	}
	return nil
}

// Profile returns the effective profile of a variant.
func (t Topology) Profile(v Variant) NodeProfile {
	if p, ok := t.Profiles[v.String()]; ok {
		return p
	}
	return DefaultProfile(v)
}

// NetworkConfig returns the effective link configuration.
func (t Topology) NetworkConfig() NetworkConfig {
	if t.Network != nil {
		return *t.Network
	}
	return DefaultNetworkConfig()
}

// Build creates a network holding the infrastructure followed by the
// given user devices. epoch anchors SGP4 propagation.
func (t Topology) Build(users []Position, epoch time.Time) (*Network, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	net := NewNetwork(t.NetworkConfig())

	var nodes []Node
	for i, p := range t.HAPS {
		nodes = append(nodes, NewHAPS(i, p, t.Profile(VariantHAPS)))
	}
	for i, p := range t.BaseStations {
		nodes = append(nodes, NewBaseStation(i, p, t.Profile(VariantBaseStation)))
	}
	for i, spec := range t.LEOs {
		var orbit OrbitModel = CircularOrbit{AltitudeM: spec.AltitudeM, InitialAngleDeg: spec.InitialAngleDeg}
		if spec.TLE1 != "" {
			sgp4, err := NewSGP4Orbit(spec.TLE1, spec.TLE2, epoch, spec.InitialAngleDeg)
			if err != nil {
				return nil, fmt.Errorf("%w: leo %d: %w", ErrInvalidTopology, i, err)
			}
			orbit = sgp4
		}
		nodes = append(nodes, NewLEO(i, orbit, t.Profile(VariantLEO)))
	}
	for i, p := range users {
		nodes = append(nodes, NewUserDevice(i, p, t.Profile(VariantUserDevice)))
	}

	if err := net.AddNodes(nodes...); err != nil {
		return nil, fmt.Errorf("build topology: %w", err)
	}
	return net, nil
}

// LoadTopology decodes a topology from r. YAML is used when useYAML is
// set, JSON otherwise.
func LoadTopology(r io.Reader, useYAML bool) (*Topology, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("LoadTopology: read failed: %w", err)
	}
	var t Topology
	if useYAML {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		err = dec.Decode(&t)
	} else {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&t)
	}
	if err != nil {
		return nil, fmt.Errorf("LoadTopology: decode failed: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadTopologyFile reads a topology file, choosing YAML or JSON from its
// extension.
func LoadTopologyFile(filename string) (*Topology, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadTopology(f, IsYAMLPath(filename))
}

// IsYAMLPath reports whether a file name carries a YAML extension.
func IsYAMLPath(filename string) bool {
	switch strings.ToLower(path.Ext(filename)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
