package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/marketsim/internal/availability"
	"github.com/sawpanic/marketsim/internal/cache"
	"github.com/sawpanic/marketsim/internal/clock"
	"github.com/sawpanic/marketsim/internal/config"
	"github.com/sawpanic/marketsim/internal/engine"
	"github.com/sawpanic/marketsim/internal/httpapi"
	"github.com/sawpanic/marketsim/internal/persistence/postgres"
	"github.com/sawpanic/marketsim/internal/priceengine"
	"github.com/sawpanic/marketsim/internal/refdata"
	"github.com/sawpanic/marketsim/internal/scheduler"
)

const version = "v0.1.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var configPath string

	rootCmd := &cobra.Command{
		Use:     "marketsim",
		Short:   "A historical stock-market simulator",
		Version: version,
		Long: `marketsim replays a deterministic, counter-seeded stock market:
stocks, bonds, and index funds trade against synthesized price paths
with crashes, corporate events, and dividends, driven by a wall-clock
to sim-time multiplier.

Run 'marketsim serve' to start the engine and its HTTP API.`,
		Run: runDefaultEntry,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to the settings YAML file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the engine and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate-catalog",
		Short: "Load and validate the reference-data catalog without starting a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateCatalog(configPath)
		},
	}

	rootCmd.AddCommand(serveCmd, validateCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// runDefaultEntry prints usage guidance when run without a subcommand;
// a bare interactive TTY still just gets pointed at `serve`, since unlike
// the scanning tool this ported from, there is no menu mode to open.
func runDefaultEntry(cmd *cobra.Command, args []string) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "marketsim: no subcommand given.")
		fmt.Fprintln(os.Stderr, "  marketsim serve --config configs/config.yaml")
		fmt.Fprintln(os.Stderr, "  marketsim validate-catalog --config configs/config.yaml")
		return
	}
	_ = cmd.Help()
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	cat, err := refdata.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	queryTimeout := 5 * time.Second
	db, repo, health, err := postgres.Connect(cfg.Database.DSN, queryTimeout)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime.D())
	defer db.Close()

	ctx := context.Background()
	if pingErr := health.Ping(ctx); pingErr != nil {
		log.Warn().Err(pingErr).Msg("marketsim: starting with unreachable database")
	}

	c := clock.New(time.Now(), clock.Realtime, cat, nil)
	pe := priceengine.New(cat, cfg.Seed)
	avail := availability.New()
	seedAvailability(avail, cat)

	eng, err := engine.Restore(ctx, engine.Config{
		Catalog:      cat,
		Prices:       pe,
		Clock:        c,
		Availability: avail,
		Repo:         repo,
		StartingCash: cfg.StartingCash,
		Seed:         cfg.Seed,
	})
	if err != nil {
		return err
	}

	redisCache := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.KeyPrefix)
	defer redisCache.Close()
	if pingErr := redisCache.Ping(ctx); pingErr != nil {
		log.Warn().Err(pingErr).Msg("marketsim: starting with unreachable redis cache")
	}

	srv := httpapi.New(eng, httpapi.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout.D(),
		WriteTimeout:    cfg.Server.WriteTimeout.D(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout.D(),
		RequestTimeout:  cfg.Server.RequestTimeout.D(),
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	})

	sched := scheduler.New(scheduler.Config{
		TickJob:      scheduler.JobConfig{Name: "tick", Spec: cfg.Scheduler.TickSpec},
		RetentionJob: scheduler.JobConfig{Name: "retention-prune", Spec: cfg.Scheduler.RetentionSpec},
		RetentionAge: cfg.Scheduler.RetentionAge.D(),
	}, tickAdapter{eng, srv}, eng, c.Now)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info().Msg("marketsim: shutting down")
	}

	sched.Stop(ctx)
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout.D())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// tickAdapter runs Engine.Tick and, on success, broadcasts the new
// instant to connected WebSocket clients, so the scheduler's single tick
// job drives both concerns without the httpapi package importing engine
// internals or vice versa.
type tickAdapter struct {
	eng *engine.Engine
	srv *httpapi.Server
}

func (a tickAdapter) Tick(ctx context.Context, now time.Time) error {
	if err := a.eng.Tick(ctx, now); err != nil {
		return err
	}
	a.srv.BroadcastTick(now)
	return nil
}

func seedAvailability(avail *availability.Book, cat *refdata.Catalog) {
	for symbol, meta := range cat.Securities {
		if meta.AssetClass != refdata.AssetStock {
			continue
		}
		avail.Seed(symbol, availability.Counts{
			TotalOutstanding:    1_000_000,
			PublicFloat:         900_000,
			AvailableForTrading: 500_000,
		})
	}
}

func runValidateCatalog(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cat, err := refdata.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}
	log.Info().
		Int("securities", len(cat.Securities)).
		Int("crashes", len(cat.Crashes)).
		Int("bonds", len(cat.Bonds)).
		Int("indices", len(cat.Indices)).
		Int("companies", len(cat.Companies)).
		Msg("marketsim: catalog validated")
	return nil
}
