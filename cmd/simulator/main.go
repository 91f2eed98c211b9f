// Command simulator runs one NTN simulation and prints its summary as
// JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/ntn-simulator/internal/export"
	"github.com/signalsfoundry/ntn-simulator/internal/logging"
	"github.com/signalsfoundry/ntn-simulator/internal/observability"
	"github.com/signalsfoundry/ntn-simulator/internal/sim"
	"github.com/signalsfoundry/ntn-simulator/model"
)

// Config holds the command line. Flags that were not given leave the
// value from the config file (or the defaults) untouched.
type Config struct {
	ConfigPath     string
	TopologyPath   string
	Assignment     string
	Power          string
	QTablePath     string
	Seed           uint64
	Users          int
	MaxTime        float64
	TimeStep       float64
	RealTime       bool
	Debug          bool
	ExportFormat   string
	ExportDir      string
	MetricsAddress string
	Linger         time.Duration
	PrintNodes     bool

	set map[string]bool
}

// Output is what the command prints on success.
type Output struct {
	Summary model.RunSummary     `json:"summary"`
	Nodes   []model.NodeSnapshot `json:"nodes,omitempty"`
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logging.NewFromEnv()
	ctx, log := logging.WithRunLogger(context.Background(), log)

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Warn(ctx, "tracing disabled", logging.Err(err))
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	log.Info(ctx, "starting simulation")
	if err := run(ctx, cfg, log, os.Stdout); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

func parseFlags(args []string) (Config, error) {
	var cfg Config
	fs := flag.NewFlagSet("simulator", flag.ContinueOnError)
	fs.StringVar(&cfg.ConfigPath, "config", "", "JSON or YAML simulation config file")
	fs.StringVar(&cfg.TopologyPath, "topology", "", "JSON or YAML topology file")
	fs.StringVar(&cfg.Assignment, "assignment", "", "assignment strategy name")
	fs.StringVar(&cfg.Power, "power", "", "power strategy name")
	fs.StringVar(&cfg.QTablePath, "qtable", "", "Q-table loaded by the qlearning strategy")
	fs.Uint64Var(&cfg.Seed, "seed", 0, "random seed")
	fs.IntVar(&cfg.Users, "users", 0, "number of generated user devices")
	fs.Float64Var(&cfg.MaxTime, "max-time", 0, "simulated seconds")
	fs.Float64Var(&cfg.TimeStep, "time-step", 0, "tick length in seconds")
	fs.BoolVar(&cfg.RealTime, "real-time", false, "pace ticks with the wall clock")
	fs.BoolVar(&cfg.Debug, "debug", false, "log every request")
	fs.StringVar(&cfg.ExportFormat, "export-format", export.FormatCSV, "export format: csv or jsonl")
	fs.StringVar(&cfg.ExportDir, "export-dir", "", "directory for per-tick and per-request records")
	fs.StringVar(&cfg.MetricsAddress, "metrics-addr", "", "HTTP address for Prometheus /metrics")
	fs.DurationVar(&cfg.Linger, "linger", 0, "keep /metrics up this long after the run")
	fs.BoolVar(&cfg.PrintNodes, "nodes", false, "include node snapshots in the output")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	cfg.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { cfg.set[f.Name] = true })
	return cfg, nil
}

// simConfig loads the config file, when given, and applies the flags
// that were set.
func (c Config) simConfig() (sim.Config, error) {
	cfg := sim.DefaultConfig()
	if c.ConfigPath != "" {
		loaded, err := sim.LoadConfig(c.ConfigPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if c.set["topology"] {
		cfg.TopologyPath = c.TopologyPath
	}
	if c.set["assignment"] {
		cfg.AssignmentStrategy = c.Assignment
	}
	if c.set["power"] {
		cfg.PowerStrategy = c.Power
	}
	if c.set["qtable"] {
		cfg.QTablePath = c.QTablePath
	}
	if c.set["seed"] {
		cfg.Seed = c.Seed
	}
	if c.set["users"] {
		cfg.UserCount = c.Users
	}
	if c.set["max-time"] {
		cfg.MaxTime = c.MaxTime
	}
	if c.set["time-step"] {
		cfg.TimeStep = c.TimeStep
	}
	if c.set["real-time"] {
		cfg.RealTime = c.RealTime
	}
	if c.set["debug"] {
		cfg.Debug = c.Debug
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, c Config, log logging.Logger, out io.Writer) (err error) {
	cfg, err := c.simConfig()
	if err != nil {
		return err
	}
	if cfg.Debug {
		lc := logging.ConfigFromEnv()
		lc.Level = "debug"
		log = logging.New(lc).With(logging.String("run_id", logging.RunIDFromContext(ctx)))
	}
	opts := []sim.Option{sim.WithLogger(log)}
	if cfg.Debug {
		opts = append(opts, sim.WithTickListener(func(tick int, now float64) {
			log.Debug(ctx, "tick", logging.Int("tick", tick), logging.Float("time", now))
		}))
	}

	if c.MetricsAddress != "" {
		collector, err := observability.NewSimCollector(prometheus.NewRegistry())
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		srv := serveMetrics(c.MetricsAddress, collector, log)
		defer func() {
			if c.Linger > 0 {
				log.Info(ctx, "keeping metrics endpoint up", logging.String("linger", c.Linger.String()))
				select {
				case <-time.After(c.Linger):
				case <-ctx.Done():
				}
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		opts = append(opts, sim.WithMetrics(collector))
	}

	if c.ExportDir != "" {
		sink, openErr := export.Open(c.ExportFormat, c.ExportDir)
		if openErr != nil {
			return openErr
		}
		defer func() {
			if cerr := sink.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close export: %w", cerr)
			}
		}()
		opts = append(opts, sim.WithSink(sink))
	}

	s, err := sim.New(cfg, opts...)
	if err != nil {
		return err
	}
	if _, err := s.Run(ctx); err != nil {
		return err
	}

	result := Output{Summary: s.Summary()}
	if c.PrintNodes {
		result.Nodes = s.Nodes()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func serveMetrics(addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
