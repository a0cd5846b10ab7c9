package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fleetform/fleetsched/pkg/bootstrap"
	"github.com/fleetform/fleetsched/pkg/clock"
	"github.com/fleetform/fleetsched/pkg/events"
	"github.com/fleetform/fleetsched/pkg/executor"
	"github.com/fleetform/fleetsched/pkg/leaderlock"
	"github.com/fleetform/fleetsched/pkg/log"
	"github.com/fleetform/fleetsched/pkg/manifest"
	"github.com/fleetform/fleetsched/pkg/ophealth"
	"github.com/fleetform/fleetsched/pkg/reconciler"
	"github.com/fleetform/fleetsched/pkg/registry"
	"github.com/fleetform/fleetsched/pkg/scheduler"
	"github.com/fleetform/fleetsched/pkg/store"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fleetsched",
	Short:   "fleetsched - cluster reconciliation scheduler",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("fleetsched version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("formation", envOr("GILLIAM_FORMATION", "scheduler"), "Formation name this process schedules for")
	rootCmd.PersistentFlags().String("registry", os.Getenv("GILLIAM_SERVICE_REGISTRY"), "Comma-separated service registry nameserver addresses")
	rootCmd.PersistentFlags().String("release-file", "", "Path to a release manifest file, used when RELEASE is not set")
	rootCmd.PersistentFlags().String("executor-addr", "127.0.0.1:7100", "Executor manager gRPC address")
	rootCmd.PersistentFlags().String("data-dir", "./data", "Directory for the coordination store's local bbolt file")
	rootCmd.PersistentFlags().String("health-addr", "127.0.0.1:9090", "Operational HTTP server address (/health, /ready, /metrics)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func nameservers(flag string) []string {
	if flag == "" {
		return nil
	}
	var out []string
	for _, ns := range strings.Split(flag, ",") {
		ns = strings.TrimSpace(ns)
		if ns != "" {
			out = append(out, ns)
		}
	}
	return out
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Run the one-shot self-install procedure (spec §4.8)",
	RunE: func(cmd *cobra.Command, args []string) error {
		formation, _ := cmd.Flags().GetString("formation")
		regAddr, _ := cmd.Flags().GetString("registry")
		releaseFile, _ := cmd.Flags().GetString("release-file")
		executorAddr, _ := cmd.Flags().GetString("executor-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		rel, err := manifest.Load(os.Getenv("RELEASE"), releaseFile)
		if err != nil {
			return fmt.Errorf("load release manifest: %w", err)
		}

		reg := registry.New(nameservers(regAddr), "service")
		mgr, err := executor.Dial(executorAddr, nil)
		if err != nil {
			return fmt.Errorf("dial executor manager: %w", err)
		}
		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		clk := clock.System{}
		newStore := func(ctx context.Context) (store.Store, error) {
			return store.NewBolt(dataDir, clk)
		}

		b := bootstrap.New(formation, reg, mgr, newStore, clk, broker)
		if _, err := b.Run(cmd.Context(), rel); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		fmt.Println("bootstrap complete")
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler, updater and terminator control loops",
	RunE: func(cmd *cobra.Command, args []string) error {
		formation, _ := cmd.Flags().GetString("formation")
		executorAddr, _ := cmd.Flags().GetString("executor-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		healthAddr, _ := cmd.Flags().GetString("health-addr")

		clk := clock.System{}
		s, err := store.NewBolt(dataDir, clk)
		if err != nil {
			return fmt.Errorf("open coordination store: %w", err)
		}
		defer s.Close()

		mgr, err := executor.Dial(executorAddr, nil)
		if err != nil {
			return fmt.Errorf("dial executor manager: %w", err)
		}

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		holder, _ := os.Hostname()
		if holder == "" {
			holder = "scheduler"
		}
		lockLogger := log.WithFormation(log.WithComponent("leaderlock"), formation)
		lock := leaderlock.New(s, clk, lockLogger, "leader", holder, leaderlock.DefaultLease, leaderlock.DefaultRetry)

		var isLeading atomic.Bool
		go func() {
			ctx := cmd.Context()
			for {
				if err := lock.Acquire(ctx); err != nil {
					return
				}
				isLeading.Store(true)
				for {
					time.Sleep(leaderlock.DefaultLease / 3)
					if err := lock.Renew(); err != nil {
						log.Logger.Warn().Err(err).Msg("lost leader lock, re-acquiring")
						isLeading.Store(false)
						break
					}
				}
			}
		}()
		isLeader := func() bool { return isLeading.Load() }

		var started atomic.Bool
		ready := func() bool { return started.Load() }

		sched := scheduler.New(formation, s, mgr, clk, broker, isLeader)
		updater := reconciler.NewUpdater(formation, s, mgr, clk, broker, isLeader)
		terminator := reconciler.NewTerminator(formation, s, mgr, clk, broker, isLeader)

		sched.Start()
		updater.Start()
		terminator.Start()
		started.Store(true)
		defer sched.Stop()
		defer updater.Stop()
		defer terminator.Stop()

		health := ophealth.New(s, isLeader, ready, broker)
		defer health.Stop()
		log.Logger.Info().Str("addr", healthAddr).Msg("serving operational endpoints")
		return health.Start(healthAddr)
	},
}
