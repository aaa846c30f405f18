package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stratumdb/stratum/internal/pipeline"
	"github.com/stratumdb/stratum/pkg/compression"
	"github.com/stratumdb/stratum/pkg/config"
	"github.com/stratumdb/stratum/pkg/generate"
	"github.com/stratumdb/stratum/pkg/logger"
	"github.com/stratumdb/stratum/pkg/store/raw"
	"github.com/stratumdb/stratum/pkg/store/warehouse"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configFile string

	root := &cobra.Command{
		Use:   "stratum",
		Short: "Stratum - layered retail data warehouse engine",
		Long: `Stratum rebuilds a partitioned retail warehouse from raw entity batches:
raw batches are reconciled and cleaned into refined tables, user history is
tracked as slowly-changing versions, and a partitioned star schema is
published atomically.`,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default ./stratum.yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Stratum v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	var initPath string
	configInitCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(initPath, config.Default()); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", initPath)
			return nil
		},
	}
	configInitCmd.Flags().StringVarP(&initPath, "output", "o", "stratum.yaml", "Config file to create")
	configCmd.AddCommand(configInitCmd)
	root.AddCommand(configCmd)

	var genTransactions, genUsers, genProducts, genStores int
	var genSeed uint64
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Write synthetic retail batches into the raw tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, rawStore, err := setup(configFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			gen := cfg.Generate
			if cmd.Flags().Changed("transactions") {
				gen.Transactions = genTransactions
			}
			if cmd.Flags().Changed("users") {
				gen.Users = genUsers
			}
			if cmd.Flags().Changed("products") {
				gen.Products = genProducts
			}
			if cmd.Flags().Changed("stores") {
				gen.Stores = genStores
			}
			if cmd.Flags().Changed("seed") {
				gen.Seed = genSeed
			}

			producer := generate.New(rawStore, gen, logger.Get())
			if err := producer.Generate(signalContext()); err != nil {
				return err
			}
			fmt.Printf("generated batches: %d transactions, %d users, %d products, %d stores\n",
				gen.Transactions, gen.Users, gen.Products, gen.Stores)
			return nil
		},
	}
	generateCmd.Flags().IntVar(&genTransactions, "transactions", 0, "Transactions per batch")
	generateCmd.Flags().IntVar(&genUsers, "users", 0, "User pool size")
	generateCmd.Flags().IntVar(&genProducts, "products", 0, "Product pool size")
	generateCmd.Flags().IntVar(&genStores, "stores", 0, "Store pool size")
	generateCmd.Flags().Uint64Var(&genSeed, "seed", 0, "Seed for reproducible output")
	root.AddCommand(generateCmd)

	var interval time.Duration
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Rebuild the warehouse from the raw tier",
		Long: `Run one full warehouse rebuild. With --interval the pipeline keeps
rerunning on that cadence until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, rawStore, err := setup(configFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			wh, err := warehouse.New(cfg, logger.Get())
			if err != nil {
				return err
			}
			p := pipeline.New(wh, rawStore, logger.Get())

			ctx := signalContext()
			if !cmd.Flags().Changed("interval") {
				interval = cfg.Pipeline.Interval
			}
			if interval > 0 {
				logger.Get().Info("pulse mode", zap.Duration("interval", interval))
				return p.RunLoop(ctx, interval)
			}

			report, err := p.Run(ctx)
			if err != nil {
				return err
			}
			printReport(report)
			return nil
		},
	}
	runCmd.Flags().DurationVar(&interval, "interval", 0, "Rerun cadence (e.g. 5m); zero runs once")
	root.AddCommand(runCmd)

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show per-table state of the warehouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(configFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			wh, err := warehouse.New(cfg, logger.Get())
			if err != nil {
				return err
			}
			status, err := wh.Status()
			if err != nil {
				return err
			}
			if len(status.Tables) == 0 {
				fmt.Println("no completed runs")
				return nil
			}
			fmt.Printf("last update: %s\n", status.UpdatedAt)
			for table, ts := range status.Tables {
				fmt.Printf("  %-20s %8d rows  refreshed %s\n", table, ts.Rows, ts.RefreshedAt)
			}
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads config, initializes logging, and opens the raw store.
func setup(configFile string) (*config.Config, *raw.Store, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	}); err != nil {
		return nil, nil, err
	}

	codec, err := compression.New(compression.Algorithm(cfg.Raw.Compression))
	if err != nil {
		return nil, nil, err
	}
	rawStore, err := raw.Open(cfg.BronzeDir(), codec, logger.Get())
	if err != nil {
		return nil, nil, err
	}
	return cfg, rawStore, nil
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx
}

func printReport(report *pipeline.RunReport) {
	fmt.Printf("run %s: %s in %s\n", report.RunID, report.Status, report.Duration.Round(time.Millisecond))
	for _, stage := range report.Stages {
		if stage.Rejected > 0 {
			fmt.Printf("  %-10s %-18s in=%-7d out=%-7d rejected=%d\n",
				stage.Stage, stage.Entity, stage.RowsIn, stage.RowsOut, stage.Rejected)
			continue
		}
		fmt.Printf("  %-10s %-18s in=%-7d out=%-7d\n",
			stage.Stage, stage.Entity, stage.RowsIn, stage.RowsOut)
	}
}
