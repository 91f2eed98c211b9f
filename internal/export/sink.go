// Package export writes per-tick energy samples and terminal request
// records produced by a simulation run.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/signalsfoundry/ntn-simulator/model"
)

// Formats accepted by Open.
const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
)

// ErrUnknownFormat is returned by Open for unsupported formats.
var ErrUnknownFormat = errors.New("unknown export format")

// Sink receives simulation records. Implementations are used from the
// simulation goroutine only.
type Sink interface {
	WriteEnergySample(model.EnergySample) error
	WriteRequest(model.RequestRecord) error
	Close() error
}

// Discard is a Sink that drops everything.
type Discard struct{}

func (Discard) WriteEnergySample(model.EnergySample) error { return nil }
func (Discard) WriteRequest(model.RequestRecord) error     { return nil }
func (Discard) Close() error                               { return nil }

// Open creates the output files for format under dir. CSV writes
// energy.csv and requests.csv; JSONL writes a single records.jsonl.
func Open(format, dir string) (Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	switch strings.ToLower(format) {
	case FormatCSV:
		energy, err := os.Create(filepath.Join(dir, "energy.csv"))
		if err != nil {
			return nil, err
		}
		requests, err := os.Create(filepath.Join(dir, "requests.csv"))
		if err != nil {
			energy.Close()
			return nil, err
		}
		return newCSVSink(energy, requests, energy, requests), nil
	case FormatJSONL:
		f, err := os.Create(filepath.Join(dir, "records.jsonl"))
		if err != nil {
			return nil, err
		}
		return newJSONLSink(f, f), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func closeAll(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
