package core

// AntennaKind names a radio family. Two nodes can only be linked when
// they carry at least one antenna of the same kind.
type AntennaKind string

const (
	AntennaUHF AntennaKind = "UHF"
	AntennaVHF AntennaKind = "VHF"
)

// Antenna describes one radio front-end mounted on a node.
type Antenna struct {
	Kind AntennaKind `json:"kind" yaml:"kind"`
	// GainDBi is the antenna gain in dBi.
	GainDBi float64 `json:"gain_dbi" yaml:"gain_dbi"`
	// HeightM is the mounting height in metres. It is reporting
	// metadata; the capacity model does not use it.
	HeightM float64 `json:"height_m,omitempty" yaml:"height_m,omitempty"`
}

// IsCompatible returns true if both antennas belong to the same family.
func (a Antenna) IsCompatible(other Antenna) bool {
	return a.Kind == other.Kind
}

// LinearGain returns the gain as a linear ratio.
func (a Antenna) LinearGain() float64 {
	return DBToLinear(a.GainDBi)
}

// compatibleAntennas returns the first (tx, rx) pair of compatible
// antennas, scanning the transmitter's antennas in order.
func compatibleAntennas(tx, rx []Antenna) (Antenna, Antenna, bool) {
	for _, a := range tx {
		for _, b := range rx {
			if a.IsCompatible(b) {
				return a, b, true
			}
		}
	}
	return Antenna{}, Antenna{}, false
}
