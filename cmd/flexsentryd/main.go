// Command flexsentryd is the flexsentry daemon: it wires the config
// Holder, Fleet Manager, Strategy Engine, Mailer, Log Saver, and status
// API together and runs the monitoring loop until signaled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/netixx/flexsentry/internal/api"
	"github.com/netixx/flexsentry/internal/config"
	"github.com/netixx/flexsentry/internal/fleet"
	"github.com/netixx/flexsentry/internal/logsaver"
	"github.com/netixx/flexsentry/internal/notify"
	"github.com/netixx/flexsentry/internal/registry"
	"github.com/netixx/flexsentry/internal/runner"
	"github.com/netixx/flexsentry/internal/strategy"
	"github.com/netixx/flexsentry/internal/xlog"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (YAML)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	xlog.Configure(xlog.Config{Level: "info"})
	log := xlog.Component("main")

	holder, err := config.NewHolder(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	snap := holder.Current()

	xlog.Configure(xlog.Config{Level: snap.File.LogLevel})
	log = xlog.Component("main")
	log.Info().Str("config_path", *configPath).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, holder); err != nil {
		log.Fatal().Err(err).Msg("flexsentryd exited with error")
	}
	log.Info().Msg("flexsentryd stopped")
}

func serve(ctx context.Context, holder *config.Holder) error {
	log := xlog.Component("main")
	snap := holder.Current()

	reg := registry.New()
	run := runner.New(0, 0)

	mailer := notify.New(snap.Mail)
	saver := logsaver.New(snap.File.LogSaver.SaveDir, snap.File.LogSaver.LogFilePath)

	mgr, err := fleet.NewManager(snap.Fleet, run, mailer, saver, reg, xlog.Base())
	if err != nil {
		return fmt.Errorf("flexsentryd: build fleet manager: %w", err)
	}

	engine := strategy.NewEngine(reg)
	if err := engine.AddStrategy(strategy.NewKeepFreePercentageBanLongUsers(
		snap.File.Strategy.KeepStateTimeout,
		snap.File.Strategy.MinFreePercentage,
		snap.File.Strategy.MaxFreePercentage,
	), strategy.NormalPriority); err != nil {
		return fmt.Errorf("flexsentryd: register ban strategy: %w", err)
	}
	if err := engine.AddStrategy(strategy.NewWarnUsersBeforeMaxUsageTime(
		snap.File.Strategy.WarnThreshold,
		snap.File.Strategy.WarnDelay,
	), strategy.LowPriority); err != nil {
		return fmt.Errorf("flexsentryd: register warn strategy: %w", err)
	}

	apiServer := api.New(mgr, snap.File.API.ListenAddr, snap.File.API.RateLimitPerMin)

	if err := holder.StartWatcher(ctx); err != nil {
		log.Warn().Err(err).Msg("config hot reload disabled")
	}
	defer holder.Stop()

	g, gctx := errgroup.WithContext(ctx)

	for _, mon := range mgr.Monitors() {
		mon := mon
		g.Go(func() error {
			mon.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		mailer.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return apiServer.ListenAndServe(gctx)
	})

	g.Go(func() error {
		return monitorLoop(gctx, mgr, engine, holder)
	})

	err = g.Wait()
	mgr.Terminate()
	mailer.Terminate()
	engine.CleanupStrategies(context.Background())
	if err != nil && gctx.Err() == nil {
		return err
	}
	return nil
}

// monitorLoop drives the periodic monitoring cycle: collect fleet state,
// apply every strategy, then act on any reload a strategy scheduled.
// The interval is re-read from the config Holder every tick, so a
// MonitorInterval change from a hot reload takes effect on the next
// cycle without restarting the daemon.
func monitorLoop(ctx context.Context, mgr *fleet.Manager, engine *strategy.Engine, holder *config.Holder) error {
	log := xlog.FromContext(ctx, "main")
	ticker := time.NewTicker(holder.Current().MonitorInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cycleCtx := xlog.ContextWithCorrelationID(ctx, uuid.NewString())

			if err := mgr.MonitorLicense(cycleCtx); err != nil {
				log.Warn().Err(err).Msg("monitoring cycle failed")
				continue
			}
			engine.ApplyStrategies(cycleCtx)

			if mgr.ConsumeScheduledReload() {
				if err := mgr.ReloadServer(cycleCtx); err != nil {
					log.Warn().Err(err).Msg("server reload failed")
				}
			}

			ticker.Reset(holder.Current().MonitorInterval())
		}
	}
}
