package export

import (
	"bufio"
	"fmt"
	"io"

	"github.com/signalsfoundry/ntn-simulator/model"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Record kinds written in the "kind" field of every JSONL line.
const (
	KindEnergy  = "energy"
	KindRequest = "request"
)

// JSONLSink writes one JSON object per line. Records are built as
// protobuf Structs so that downstream tooling can read them with any
// protobuf JSON decoder.
type JSONLSink struct {
	w      *bufio.Writer
	closer io.Closer
	opts   protojson.MarshalOptions
}

// NewJSONLSink writes to w. Closing the sink flushes w but does not
// close it.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return newJSONLSink(w, nil)
}

func newJSONLSink(w io.Writer, closer io.Closer) *JSONLSink {
	return &JSONLSink{w: bufio.NewWriter(w), closer: closer, opts: protojson.MarshalOptions{Multiline: false}}
}

func (s *JSONLSink) WriteEnergySample(e model.EnergySample) error {
	return s.write(map[string]any{
		"kind":      KindEnergy,
		"tick":      e.Tick,
		"time":      e.Time,
		"node_id":   e.NodeID,
		"variant":   e.Variant,
		"power_on":  e.PowerOn,
		"energy":    e.Energy,
		"total":     e.Total,
		"wall_time": formatTime(e.WallTime),
	})
}

func (s *JSONLSink) WriteRequest(r model.RequestRecord) error {
	path := make([]any, len(r.Path))
	for i, p := range r.Path {
		path[i] = p
	}
	history := make([]any, len(r.History))
	for i, h := range r.History {
		history[i] = map[string]any{"status": h.Status, "time": h.Time}
	}
	return s.write(map[string]any{
		"kind":          KindRequest,
		"id":            r.ID,
		"priority":      r.Priority,
		"status":        r.Status,
		"size_bits":     r.SizeBits,
		"deadline_s":    r.DeadlineS,
		"creation_tick": r.CreationTick,
		"creation_time": r.CreationTime,
		"source":        r.Source,
		"target":        r.Target,
		"path":          path,
		"history":       history,
		"total_time":    r.TotalTime,
	})
}

func (s *JSONLSink) write(fields map[string]any) error {
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("build record: %w", err)
	}
	line, err := s.opts.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := s.w.Write(line); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

func (s *JSONLSink) Close() error {
	if err := s.w.Flush(); err != nil {
		_ = closeAll(s.closer)
		return err
	}
	return closeAll(s.closer)
}
