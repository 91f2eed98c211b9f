package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/ntn-simulator/model"
)

var (
	energyHeader  = []string{"tick", "time", "node_id", "variant", "power_on", "energy_j", "total_j", "wall_time"}
	requestHeader = []string{"id", "priority", "status", "size_bits", "deadline_s", "creation_tick", "creation_time", "source", "target", "path", "total_time"}
)

// CSVSink writes energy samples and request records to two CSV streams.
type CSVSink struct {
	energy   *csv.Writer
	requests *csv.Writer
	closers  []io.Closer

	wroteEnergyHeader  bool
	wroteRequestHeader bool
}

// NewCSVSink writes to the given streams. Closing the sink flushes them
// but does not close them.
func NewCSVSink(energy, requests io.Writer) *CSVSink {
	return newCSVSink(energy, requests)
}

func newCSVSink(energy, requests io.Writer, closers ...io.Closer) *CSVSink {
	return &CSVSink{energy: csv.NewWriter(energy), requests: csv.NewWriter(requests), closers: closers}
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *CSVSink) WriteEnergySample(e model.EnergySample) error {
	if !s.wroteEnergyHeader {
		if err := s.energy.Write(energyHeader); err != nil {
			return err
		}
		s.wroteEnergyHeader = true
	}
	return s.energy.Write([]string{
		strconv.Itoa(e.Tick),
		formatFloat(e.Time),
		e.NodeID,
		e.Variant,
		strconv.FormatBool(e.PowerOn),
		formatFloat(e.Energy),
		formatFloat(e.Total),
		formatTime(e.WallTime),
	})
}

func (s *CSVSink) WriteRequest(r model.RequestRecord) error {
	if !s.wroteRequestHeader {
		if err := s.requests.Write(requestHeader); err != nil {
			return err
		}
		s.wroteRequestHeader = true
	}
	return s.requests.Write([]string{
		strconv.FormatUint(r.ID, 10),
		r.Priority,
		r.Status,
		formatFloat(r.SizeBits),
		formatFloat(r.DeadlineS),
		strconv.Itoa(r.CreationTick),
		formatFloat(r.CreationTime),
		r.Source,
		r.Target,
		strings.Join(r.Path, ">"),
		formatFloat(r.TotalTime),
	})
}

// Flush pushes buffered rows to the underlying streams.
func (s *CSVSink) Flush() error {
	s.energy.Flush()
	s.requests.Flush()
	if err := s.energy.Error(); err != nil {
		return err
	}
	return s.requests.Error()
}

func (s *CSVSink) Close() error {
	if err := s.Flush(); err != nil {
		_ = closeAll(s.closers...)
		return err
	}
	return closeAll(s.closers...)
}
