// Package sim orchestrates one simulation run: it generates arrivals,
// asks the assignment strategy where each request goes, advances the
// network, applies the power strategy and keeps the derived matrices and
// counters the reports are built from.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/signalsfoundry/ntn-simulator/core"
	"github.com/signalsfoundry/ntn-simulator/internal/assignment"
	"github.com/signalsfoundry/ntn-simulator/internal/export"
	"github.com/signalsfoundry/ntn-simulator/internal/logging"
	"github.com/signalsfoundry/ntn-simulator/internal/observability"
	"github.com/signalsfoundry/ntn-simulator/internal/power"
	"github.com/signalsfoundry/ntn-simulator/timectrl"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/mat"
)

// ErrFinished is returned by Step once the clock reached max_time.
var ErrFinished = errors.New("simulation finished")

// MetricsRecorder receives run-level observations. The Prometheus
// collector in internal/observability satisfies it.
type MetricsRecorder interface {
	ObserveTick(now float64, wall time.Duration, activeLinks, poweredOn int, totalEnergy float64)
	RecordRequest(priority, status string)
	ObserveCompletion(priority string, seconds float64)
	SetNodeEnergy(node, variant string, joules float64)
	SetQoS(percent float64)
}

// Option customises Simulation construction.
type Option func(*Simulation)

// WithAssignment installs a strategy instance instead of building one
// from Config.AssignmentStrategy.
func WithAssignment(s assignment.Strategy) Option {
	return func(sim *Simulation) { sim.assign = s }
}

// WithAssignmentRegistry resolves assignment names against r.
func WithAssignmentRegistry(r *assignment.Registry) Option {
	return func(sim *Simulation) {
		sim.assignments = r
		sim.customAssignments = true
	}
}

// WithPowerRegistry resolves power strategy names against r.
func WithPowerRegistry(r *power.Registry) Option {
	return func(sim *Simulation) { sim.powers = r }
}

// WithTopology replaces the built-in topology and Config.TopologyPath.
func WithTopology(t core.Topology) Option {
	return func(sim *Simulation) { sim.topology = &t }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(sim *Simulation) { sim.metrics = m }
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(sim *Simulation) { sim.log = l }
}

// WithSink streams energy samples and terminal requests to s. The
// simulation never closes the sink.
func WithSink(s export.Sink) Option {
	return func(sim *Simulation) { sim.sink = s }
}

// WithTickListener calls fn after every tick with the completed tick
// count and the new simulation time. Listeners survive Reset.
func WithTickListener(fn func(tick int, now float64)) Option {
	return func(sim *Simulation) { sim.listeners = append(sim.listeners, fn) }
}

// Simulation runs one scenario on a single goroutine. All randomness
// comes from one generator seeded from Config.Seed, so a reset replays
// the same run.
type Simulation struct {
	cfg         Config
	topology    *core.Topology
	assignments *assignment.Registry
	powers      *power.Registry
	log         logging.Logger
	metrics     MetricsRecorder
	sink        export.Sink
	listeners   []func(tick int, now float64)

	customAssignments bool

	assign assignment.Strategy
	power  power.Strategy

	rng      *rand.Rand
	clock    *timectrl.TickClock
	network  *core.Network
	ids      core.IDCounter
	users    []core.Node
	compute  []core.Node
	matrices DecisionMatrices
	userIdx  matrixIndex
	nodeIdx  matrixIndex

	requests []*core.Request
	open     []*core.Request

	totalRequests int
	completed     int
	failed        int
	finished      bool
}

// New validates cfg and builds a ready-to-run simulation.
func New(cfg Config, opts ...Option) (*Simulation, error) {
	s := &Simulation{
		cfg:         cfg,
		assignments: assignment.DefaultRegistry(),
		powers:      power.DefaultRegistry(),
		log:         logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := cfg.validate(s.assignments, s.powers, s.assign == nil); err != nil {
		return nil, err
	}

	if s.topology == nil {
		t := core.DefaultTopology()
		if cfg.TopologyPath != "" {
			loaded, err := core.LoadTopologyFile(cfg.TopologyPath)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
			}
			t = *loaded
		}
		s.topology = &t
	}
	if err := s.topology.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch {
	case s.assign == nil && cfg.AssignmentStrategy == assignment.NameQLearning && !s.customAssignments:
		s.assign = assignment.NewQLearning(cfg.QLearning)
	case s.assign == nil:
		a, err := s.assignments.New(cfg.AssignmentStrategy)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		s.assign = a
	}
	if q, ok := s.assign.(*assignment.QLearning); ok {
		if err := s.prepareQLearning(q); err != nil {
			return nil, err
		}
	}
	p, err := s.powers.New(cfg.PowerStrategy, cfg.Power)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	s.power = p

	if err := s.rebuild(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Simulation) prepareQLearning(q *assignment.QLearning) error {
	q.SetEpsilon(s.cfg.QLearning.Epsilon)
	if s.cfg.QTablePath == "" {
		return nil
	}
	if _, err := os.Stat(s.cfg.QTablePath); errors.Is(err, os.ErrNotExist) {
		s.log.Info(context.Background(), "q-table not found, starting empty", logging.String("path", s.cfg.QTablePath))
		return nil
	}
	if err := q.LoadTableFile(s.cfg.QTablePath); err != nil {
		return fmt.Errorf("%w: load q-table: %w", ErrInvalidConfig, err)
	}
	return nil
}

// episodic strategies carry decision state across requests that must not
// leak from one run into the next.
type episodic interface {
	BeginEpisode()
}

// rebuild recreates every piece of per-run state from the configuration.
func (s *Simulation) rebuild() error {
	cfg := s.cfg
	s.rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))

	if s.clock == nil {
		mode := timectrl.Accelerated
		if cfg.RealTime {
			mode = timectrl.RealTime
		}
		clock, err := timectrl.NewTickClock(cfg.TimeStep, cfg.MaxTime, mode, cfg.epoch())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		for _, fn := range s.listeners {
			clock.AddListener(fn)
		}
		s.clock = clock
	} else {
		s.clock.Reset()
	}
	clock := s.clock

	users := s.topology.Users
	if len(users) == 0 {
		users = make([]core.Position, cfg.UserCount)
		for i := range users {
			users[i] = core.Position{X: (2*s.rng.Float64() - 1) * cfg.UserSpreadM}
		}
	}
	network, err := s.topology.Build(users, cfg.epoch())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	s.network = network
	s.users = network.NodesOf(core.VariantUserDevice)
	s.compute = network.ComputeNodes()
	s.userIdx = indexOf(s.users)
	s.nodeIdx = indexOf(s.compute)

	ticks := clock.TotalTicks()
	buffer := int(cfg.Arrivals.BufferS / cfg.TimeStep)
	var schedule *mat.Dense
	switch cfg.Arrivals.Mode {
	case ArrivalBernoulli:
		schedule = bernoulliSchedule(len(s.users), ticks, buffer, cfg.Arrivals.Probability, s.rng)
	default:
		schedule = poissonSchedule(len(s.users), ticks, buffer, s.rng)
	}
	s.matrices = DecisionMatrices{
		Coverage:   coverageMatrix(s.users, network.NodesOf(core.VariantBaseStation), cfg.CoverageRadiusM),
		Requests:   schedule,
		Assignment: newDense(len(s.users), len(s.compute)),
		Power:      newDense(len(s.compute), ticks),
	}

	s.ids.Reset()
	s.requests = nil
	s.open = nil
	s.totalRequests, s.completed, s.failed = 0, 0, 0
	s.finished = false

	s.assign.Bind(assignment.Env{Network: network, Rand: s.rng})
	if e, ok := s.assign.(episodic); ok {
		e.BeginEpisode()
	}
	s.power.Bind(power.Env{Rand: s.rng})
	return nil
}

// Reset discards the network, requests and counters and rebuilds them
// from the same configuration and seed. Strategy instances are kept, so
// a learning strategy retains its table.
func (s *Simulation) Reset() error {
	return s.rebuild()
}

// Step runs one tick: arrivals and assignment, network advance, power
// strategy, then matrices, metrics and export.
func (s *Simulation) Step(ctx context.Context) error {
	if s.clock.Done() {
		return ErrFinished
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	started := time.Now()
	tick, now, dt := s.clock.TickIndex(), s.clock.Now(), s.clock.Step()

	s.network.UpdatePositions(now)
	for i, u := range s.users {
		if at(s.matrices.Requests, i, tick) == 0 {
			continue
		}
		if err := s.arrive(ctx, u, tick, now); err != nil {
			return err
		}
	}

	report := s.network.Tick(now, dt)
	for _, r := range report.Finished {
		if err := s.finish(ctx, r); err != nil {
			return err
		}
	}
	if s.cfg.Debug {
		for _, r := range report.Delivered {
			s.log.Debug(ctx, "request delivered",
				logging.Uint64("request_id", r.ID),
				logging.String("node", r.CurrentNode.ID().String()),
				logging.Float("time", now+dt),
			)
		}
	}

	s.power.Apply(s.compute, now+dt)
	s.pruneOpen()
	refreshAssignment(s.matrices.Assignment, s.userIdx, s.nodeIdx, s.open)
	recordPower(s.matrices.Power, tick, s.compute)

	if err := s.sample(tick, now+dt); err != nil {
		return err
	}
	if s.metrics != nil {
		powered := 0
		for _, n := range s.compute {
			if n.IsOn() {
				powered++
			}
		}
		s.metrics.ObserveTick(now+dt, time.Since(started), s.network.ActiveLinkCount(), powered, s.network.TotalEnergy())
	}
	return s.clock.Advance(ctx)
}

// arrive creates a request for user u and routes it, or fails it when no
// compute node can take it.
func (s *Simulation) arrive(ctx context.Context, u core.Node, tick int, now float64) error {
	priority := core.Priorities[s.rng.IntN(len(core.Priorities))]
	prof := core.ProfileFor(priority)
	size := float64(prof.MinMbit+s.rng.IntN(prof.MaxMbit-prof.MinMbit+1)) * 1e6

	req := core.NewRequest(s.ids.Next(), u, priority, size, tick, now)
	s.requests = append(s.requests, req)
	s.totalRequests++
	if s.metrics != nil {
		s.metrics.RecordRequest(priority.String(), core.StatusCreated.String())
	}

	sel := s.assign.SelectComputeNode(req, s.network.Candidates())
	if sel.Failed() {
		req.Fail(now)
		if s.cfg.Debug {
			s.log.Debug(ctx, "no compute node for request", logging.Uint64("request_id", req.ID), logging.String("strategy", s.assign.Name()))
		}
		return s.finish(ctx, req)
	}
	if err := s.network.Route(req, sel.Path, now); err != nil {
		req.Fail(now)
		s.log.Warn(ctx, "routing failed", logging.Uint64("request_id", req.ID), logging.Err(err))
		return s.finish(ctx, req)
	}
	s.open = append(s.open, req)
	if s.cfg.Debug {
		s.log.Debug(ctx, "request assigned",
			logging.Uint64("request_id", req.ID),
			logging.String("priority", priority.String()),
			logging.Float("size_bits", size),
			logging.String("target", sel.Node.ID().String()),
			logging.Int("hops", len(sel.Path)-1),
			logging.Float("cost", sel.Cost),
		)
	}
	return nil
}

// finish accounts for a request that reached a terminal state.
func (s *Simulation) finish(ctx context.Context, r *core.Request) error {
	end, _ := r.TerminalTime()
	if r.Status() == core.StatusCompleted {
		s.completed++
	} else {
		s.failed++
	}
	if s.metrics != nil {
		s.metrics.RecordRequest(r.Priority.String(), r.Status().String())
		s.metrics.ObserveCompletion(r.Priority.String(), r.Elapsed(end))
	}
	if s.cfg.Debug {
		s.log.Debug(ctx, "request finished",
			logging.Uint64("request_id", r.ID),
			logging.String("status", r.Status().String()),
			logging.Float("elapsed", r.Elapsed(end)),
		)
	}
	if s.sink != nil {
		if err := s.sink.WriteRequest(recordOf(r)); err != nil {
			return fmt.Errorf("export request %d: %w", r.ID, err)
		}
	}
	return nil
}

func (s *Simulation) pruneOpen() {
	kept := s.open[:0]
	for _, r := range s.open {
		if !r.IsTerminal() {
			kept = append(kept, r)
		}
	}
	for i := len(kept); i < len(s.open); i++ {
		s.open[i] = nil
	}
	s.open = kept
}

// sample emits the per-node energy spent during the tick that ended at
// end.
func (s *Simulation) sample(tick int, end float64) error {
	for _, n := range s.network.Nodes() {
		delta := n.CloseSample()
		total := n.EnergyConsumed()
		if s.metrics != nil && n.CanCompute() {
			s.metrics.SetNodeEnergy(n.ID().String(), n.Variant().String(), total)
		}
		if s.sink == nil {
			continue
		}
		err := s.sink.WriteEnergySample(energySample(n, tick, end, delta, total, s.clock.WallTime(end)))
		if err != nil {
			return fmt.Errorf("export energy sample: %w", err)
		}
	}
	return nil
}

// Run steps until current_time reaches max_time, fails every request
// still in flight and returns the total energy consumed by all nodes.
func (s *Simulation) Run(ctx context.Context) (energy float64, err error) {
	ctx, span := observability.StartSpan(ctx, "sim.Run",
		attribute.Int64("sim.seed", int64(s.cfg.Seed)),
		attribute.String("sim.assignment", s.assign.Name()),
		attribute.String("sim.power", s.power.Name()),
		attribute.Int("sim.users", len(s.users)),
	)
	defer func() { observability.EndSpan(span, err) }()

	for !s.clock.Done() {
		if err := s.Step(ctx); err != nil {
			return s.network.TotalEnergy(), err
		}
	}
	if err := s.finalize(ctx); err != nil {
		return s.network.TotalEnergy(), err
	}

	energy = s.network.TotalEnergy()
	qos := s.EvaluateQoSSatisfaction()
	if s.metrics != nil {
		s.metrics.SetQoS(qos)
	}
	span.SetAttributes(
		attribute.Float64("sim.energy_j", energy),
		attribute.Float64("sim.qos_percent", qos),
		attribute.Int("sim.requests", s.totalRequests),
	)
	s.log.Info(ctx, "simulation finished",
		logging.Float("energy_j", energy),
		logging.Float("qos_percent", qos),
		logging.Int("requests", s.totalRequests),
		logging.Int("completed", s.completed),
		logging.Int("failed", s.failed),
	)
	return energy, nil
}

// finalize fails every request that is still open at max_time.
func (s *Simulation) finalize(ctx context.Context) error {
	if s.finished {
		return nil
	}
	s.finished = true
	now := s.clock.Now()
	for _, r := range s.requests {
		if r.IsTerminal() {
			continue
		}
		r.Fail(now)
		if err := s.finish(ctx, r); err != nil {
			return err
		}
	}
	s.pruneOpen()
	return nil
}

// EvaluateQoSSatisfaction returns the percentage of requests completed
// within their deadline, or 100 when no request was issued.
func (s *Simulation) EvaluateQoSSatisfaction() float64 {
	if s.totalRequests == 0 {
		return 100
	}
	ok := 0
	for _, r := range s.requests {
		if r.Status() != core.StatusCompleted {
			continue
		}
		if end, _ := r.TerminalTime(); r.WithinDeadline(end) {
			ok++
		}
	}
	return 100 * float64(ok) / float64(s.totalRequests)
}

// RunWithAssignment replays vector through a matrix-based strategy from
// a fresh reset and returns the energy and the QoS satisfaction as a
// fraction. The matrix strategy stays installed afterwards.
func (s *Simulation) RunWithAssignment(ctx context.Context, vector []int) (float64, float64, error) {
	s.assign = assignment.NewMatrixBased(vector)
	if err := s.Reset(); err != nil {
		return 0, 0, err
	}
	energy, err := s.Run(ctx)
	if err != nil {
		return energy, 0, err
	}
	return energy, s.EvaluateQoSSatisfaction() / 100, nil
}

// Config returns the configuration the simulation was built from.
func (s *Simulation) Config() Config { return s.cfg }

// Network exposes the current network. Callers must treat it as
// read-only while the simulation runs.
func (s *Simulation) Network() *core.Network { return s.network }

// Clock exposes simulation time.
func (s *Simulation) Clock() timectrl.SimClock { return s.clock }

// Now returns the current simulation time in seconds.
func (s *Simulation) Now() float64 { return s.clock.Now() }

// Done reports whether the clock reached max_time.
func (s *Simulation) Done() bool { return s.clock.Done() }

// Assignment returns the installed assignment strategy.
func (s *Simulation) Assignment() assignment.Strategy { return s.assign }

// PowerStrategy returns the installed power strategy.
func (s *Simulation) PowerStrategy() power.Strategy { return s.power }

// TotalRequests returns the number of requests issued so far.
func (s *Simulation) TotalRequests() int { return s.totalRequests }

// TotalEnergy returns the energy consumed by every node so far.
func (s *Simulation) TotalEnergy() float64 { return s.network.TotalEnergy() }

// Matrices returns a copy of the decision matrices.
func (s *Simulation) Matrices() DecisionMatrices { return s.matrices.Snapshot() }
