package sim

import (
	"time"

	"github.com/signalsfoundry/ntn-simulator/core"
	"github.com/signalsfoundry/ntn-simulator/model"
	"gonum.org/v1/gonum/stat"
)

func energySample(n core.Node, tick int, end, delta, total float64, wall time.Time) model.EnergySample {
	return model.EnergySample{
		Tick:     tick,
		Time:     end,
		NodeID:   n.ID().String(),
		Variant:  n.Variant().String(),
		PowerOn:  n.IsOn(),
		Energy:   delta,
		Total:    total,
		WallTime: wall,
	}
}

func recordOf(r *core.Request) model.RequestRecord {
	rec := model.RequestRecord{
		ID:           r.ID,
		Priority:     r.Priority.String(),
		Status:       r.Status().String(),
		SizeBits:     r.Size,
		DeadlineS:    r.QoSDeadline,
		CreationTick: r.CreationTick,
		CreationTime: r.CreationTime,
	}
	if r.Source != nil {
		rec.Source = r.Source.ID().String()
	}
	if r.TargetNode != nil {
		rec.Target = r.TargetNode.ID().String()
	}
	for _, n := range r.Path {
		rec.Path = append(rec.Path, n.ID().String())
	}
	for _, h := range r.History() {
		rec.History = append(rec.History, model.StatusChange{Status: h.Status.String(), Time: h.Time})
	}
	if end, ok := r.TerminalTime(); ok {
		rec.TotalTime = r.Elapsed(end)
	}
	return rec
}

// Nodes returns a snapshot of every node in insertion order.
func (s *Simulation) Nodes() []model.NodeSnapshot {
	nodes := s.network.Nodes()
	out := make([]model.NodeSnapshot, 0, len(nodes))
	for _, n := range nodes {
		remaining := n.RemainingEnergy()
		if n.HasUnlimitedBattery() {
			remaining = -1
		}
		pos := n.Position()
		out = append(out, model.NodeSnapshot{
			ID:              n.ID().String(),
			Variant:         n.Variant().String(),
			X:               pos.X,
			Y:               pos.Y,
			PowerOn:         n.IsOn(),
			EnergyConsumed:  n.EnergyConsumed(),
			RemainingEnergy: remaining,
			QueueLength:     n.QueueLen(),
			EnergyHistory:   n.EnergyHistory(),
		})
	}
	return out
}

// Requests returns the records of every request that reached a terminal
// state, in creation order.
func (s *Simulation) Requests() []model.RequestRecord {
	var out []model.RequestRecord
	for _, r := range s.requests {
		if r.IsTerminal() {
			out = append(out, recordOf(r))
		}
	}
	return out
}

// Summary aggregates the run so far.
func (s *Simulation) Summary() model.RunSummary {
	byVariant := make(map[string]float64)
	for v, j := range s.network.EnergyByVariant() {
		byVariant[v.String()] = j
	}
	sum := model.RunSummary{
		Seed:               s.cfg.Seed,
		AssignmentStrategy: s.assign.Name(),
		PowerStrategy:      s.power.Name(),
		Ticks:              s.clock.TickIndex(),
		SimulatedTime:      s.clock.Now(),
		TotalEnergy:        s.network.TotalEnergy(),
		EnergyByVariant:    byVariant,
		TotalRequests:      s.totalRequests,
		CompletedRequests:  s.completed,
		FailedRequests:     s.failed,
		QoSSatisfaction:    s.EvaluateQoSSatisfaction(),
	}

	var times []float64
	for _, r := range s.requests {
		if r.Status() != core.StatusCompleted {
			continue
		}
		end, _ := r.TerminalTime()
		times = append(times, r.Elapsed(end))
	}
	switch len(times) {
	case 0:
	case 1:
		sum.MeanCompletionTime = times[0]
	default:
		sum.MeanCompletionTime, sum.StdDevCompletionTime = stat.MeanStdDev(times, nil)
	}
	return sum
}
