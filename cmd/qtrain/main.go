// Command qtrain trains a Q-learning assignment table and writes it to
// disk.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/signalsfoundry/ntn-simulator/internal/logging"
	"github.com/signalsfoundry/ntn-simulator/internal/observability"
	"github.com/signalsfoundry/ntn-simulator/internal/trainer"
)

// Config holds the command line.
type Config struct {
	ConfigPath     string
	TablePath      string
	Episodes       int
	Calibration    int
	Baseline       string
	Seed           uint64
	Users          int
	MaxTime        float64
	MetricsAddress string

	set map[string]bool
}

// Report is printed once training finishes.
type Report struct {
	Calibration trainer.Calibration     `json:"calibration"`
	Episodes    []trainer.EpisodeResult `json:"episodes"`
	States      int                     `json:"states"`
	TablePath   string                  `json:"table_path"`
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

	if err := run(ctx, cfg, log, os.Stdout); err != nil {
		log.Error(ctx, "training failed", logging.Err(err))
		os.Exit(1)
	}
}

func parseFlags(args []string) (Config, error) {
	var cfg Config
	fs := flag.NewFlagSet("qtrain", flag.ContinueOnError)
	fs.StringVar(&cfg.ConfigPath, "config", "", "JSON or YAML trainer config file")
	fs.StringVar(&cfg.TablePath, "out", "qtable.yaml", "Q-table file, resumed when it exists")
	fs.IntVar(&cfg.Episodes, "episodes", 0, "training episodes")
	fs.IntVar(&cfg.Calibration, "calibration", 0, "baseline runs used to calibrate the energy range")
	fs.StringVar(&cfg.Baseline, "baseline", "", "assignment strategy used for calibration")
	fs.Uint64Var(&cfg.Seed, "seed", 0, "seed of the first episode")
	fs.IntVar(&cfg.Users, "users", 0, "number of generated user devices")
	fs.Float64Var(&cfg.MaxTime, "max-time", 0, "simulated seconds per episode")
	fs.StringVar(&cfg.MetricsAddress, "metrics-addr", "", "HTTP address for Prometheus /metrics")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	cfg.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { cfg.set[f.Name] = true })
	return cfg, nil
}

func (c Config) trainerConfig() (trainer.Config, error) {
	cfg := trainer.DefaultConfig()
	if c.ConfigPath != "" {
		loaded, err := trainer.LoadConfig(c.ConfigPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if c.set["out"] || cfg.TablePath == "" {
		cfg.TablePath = c.TablePath
	}
	if c.set["episodes"] {
		cfg.Episodes = c.Episodes
	}
	if c.set["calibration"] {
		cfg.CalibrationEpisodes = c.Calibration
	}
	if c.set["baseline"] {
		cfg.Baseline = c.Baseline
	}
	if c.set["seed"] {
		cfg.Sim.Seed = c.Seed
	}
	if c.set["users"] {
		cfg.Sim.UserCount = c.Users
	}
	if c.set["max-time"] {
		cfg.Sim.MaxTime = c.MaxTime
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, c Config, log logging.Logger, out io.Writer) error {
	cfg, err := c.trainerConfig()
	if err != nil {
		return err
	}
	opts := []trainer.Option{trainer.WithLogger(log)}

	if c.MetricsAddress != "" {
		collector, err := observability.NewTrainerCollector(prometheus.NewRegistry())
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		srv := serveMetrics(c.MetricsAddress, collector, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		opts = append(opts, trainer.WithObserver(collector))
	}

	tr, err := trainer.New(cfg, opts...)
	if err != nil {
		return err
	}
	calibration, err := tr.Calibrate(ctx)
	if err != nil {
		return err
	}
	log.Info(ctx, "starting training",
		logging.Int("episodes", cfg.Episodes),
		logging.String("table", cfg.TablePath),
	)
	results, err := tr.Train(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(Report{
		Calibration: calibration,
		Episodes:    results,
		States:      len(tr.Learner().Table()),
		TablePath:   cfg.TablePath,
	})
}

func serveMetrics(addr string, collector *observability.TrainerCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Gatherer(), promhttp.HandlerOpts{}))

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
