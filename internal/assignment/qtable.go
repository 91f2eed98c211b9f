package assignment

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const qtableVersion = 1

var energyLetters = [...]byte{EnergyUnlimited: 'u', EnergyDepleted: 'd', EnergyLow: 'l', EnergyHigh: 'h'}

type qtableFile struct {
	Version int           `yaml:"version"`
	States  []qtableEntry `yaml:"states"`
}

// qtableEntry is the text form of one state. Energy holds one letter per
// candidate (u, d, l, h) and Values one value per candidate.
type qtableEntry struct {
	Size   uint8     `yaml:"size"`
	Power  uint32    `yaml:"power"`
	Energy string    `yaml:"energy"`
	Values []float64 `yaml:"values,flow"`
}

func encodeEnergy(k StateKey) string {
	var b strings.Builder
	for i := 0; i < int(k.NodeCount); i++ {
		b.WriteByte(energyLetters[k.Energy[i]])
	}
	return b.String()
}

func decodeEnergy(s string) ([MaxQNodes]EnergyBucket, error) {
	var out [MaxQNodes]EnergyBucket
	if len(s) > MaxQNodes {
		return out, fmt.Errorf("energy %q covers more than %d nodes", s, MaxQNodes)
	}
	for i := 0; i < len(s); i++ {
		found := false
		for bucket, letter := range energyLetters {
			if s[i] == letter {
				out[i] = EnergyBucket(bucket)
				found = true
				break
			}
		}
		if !found {
			return out, fmt.Errorf("unknown energy bucket %q", s[i])
		}
	}
	return out, nil
}

// SaveTable writes the table as YAML, states sorted for stable output.
func (q *QLearning) SaveTable(w io.Writer) error {
	file := qtableFile{Version: qtableVersion}
	for k, v := range q.table {
		n := int(k.NodeCount)
		file.States = append(file.States, qtableEntry{
			Size:   uint8(k.Size),
			Power:  k.PowerMask,
			Energy: encodeEnergy(k),
			Values: append([]float64(nil), v[:n]...),
		})
	}
	sort.Slice(file.States, func(i, j int) bool {
		a, b := file.States[i], file.States[j]
		if a.Energy != b.Energy {
			return a.Energy < b.Energy
		}
		if a.Power != b.Power {
			return a.Power < b.Power
		}
		return a.Size < b.Size
	})

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("encode q-table: %w", err)
	}
	return enc.Close()
}

// LoadTable replaces the table with the one read from r.
func (q *QLearning) LoadTable(r io.Reader) error {
	var file qtableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return fmt.Errorf("decode q-table: %w", err)
	}
	if file.Version != qtableVersion {
		return fmt.Errorf("unsupported q-table version %d", file.Version)
	}

	table := make(QTable, len(file.States))
	for i, e := range file.States {
		energy, err := decodeEnergy(e.Energy)
		if err != nil {
			return fmt.Errorf("q-table state %d: %w", i, err)
		}
		if len(e.Values) != len(e.Energy) {
			return fmt.Errorf("q-table state %d: %d values for %d nodes", i, len(e.Values), len(e.Energy))
		}
		if SizeBucket(e.Size) > SizeAbove8Mbit {
			return fmt.Errorf("q-table state %d: unknown size bucket %d", i, e.Size)
		}
		key := StateKey{Energy: energy, PowerMask: e.Power, NodeCount: uint8(len(e.Energy)), Size: SizeBucket(e.Size)}
		values := new(ActionValues)
		copy(values[:], e.Values)
		table[key] = values
	}
	q.table = table
	return nil
}

// SaveTableFile writes the table to path.
func (q *QLearning) SaveTableFile(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return q.SaveTable(f)
}

// LoadTableFile reads the table from path.
func (q *QLearning) LoadTableFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return q.LoadTable(f)
}
