package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"arbtest/internal/arbitrage"
	"arbtest/internal/config"
	"arbtest/internal/database"
	"arbtest/internal/exchange"
	"arbtest/internal/model"
	"arbtest/internal/report"
	"arbtest/internal/stream"
)

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "arbtest",
		Short: "Cross-exchange arbitrage backtester",
		Long:  `Backtests cross-exchange arbitrage strategies against historical trade data, accounting for trading fees, price precision, order limits and withdrawal fees.`,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "directory containing config.yaml")
	rootCmd.AddCommand(runCmd(), recordCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCmd() *cobra.Command {
	var reportDir string
	var liveFees bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured backtest tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacktest(reportDir, liveFees)
		},
	}
	cmd.Flags().StringVar(&reportDir, "report-dir", "reports", "directory for per-task opportunity exports")
	cmd.Flags().BoolVar(&liveFees, "live-fees", false, "fetch fee schedules from exchange metadata APIs instead of config.yaml")
	return cmd
}

func runBacktest(reportDir string, liveFees bool) error {
	logger := newLogger()

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	source := stream.NewCSVSource(cfg.Data.Dir)
	calc := arbitrage.NewCalculator(decimal.NewFromFloat(cfg.Arbitrage.TradeVolume))
	staleness := time.Duration(cfg.Arbitrage.StalenessWindowSeconds) * time.Second
	worker := arbitrage.NewWorker(logger, source, calc, staleness)
	schedules, err := scheduleSource(cfg, liveFees, logger)
	if err != nil {
		return err
	}
	scheduler := arbitrage.NewScheduler(logger, worker, schedules, cfg.Arbitrage.WorkerPoolSize)

	results := scheduler.Run(ctx, cfg.Tasks)

	report.WriteSummary(os.Stdout, results)
	if err := report.ExportOpportunities(reportDir, results); err != nil {
		return err
	}

	if cfg.Database.Enabled {
		if err := persistResults(ctx, cfg.Database, results, logger); err != nil {
			return err
		}
	}

	if _, failed, _ := arbitrage.Summarize(results); failed > 0 {
		return fmt.Errorf("%d task(s) failed", failed)
	}
	return nil
}

// scheduleSource picks between static fee tables from config.yaml and live
// exchange metadata fetched through the capability interface. With live
// fees, one client per exchange named in the tasks is built up front so an
// unsupported exchange fails before any task runs.
func scheduleSource(cfg config.Config, liveFees bool, logger *slog.Logger) (arbitrage.ScheduleSource, error) {
	if !liveFees {
		return exchange.NewConfigScheduleSource(cfg.Exchanges), nil
	}

	clients := make(map[string]exchange.MetadataClient)
	for _, task := range cfg.Tasks {
		for _, name := range []string{task.ExchangeA, task.ExchangeB} {
			if _, ok := clients[name]; ok {
				continue
			}
			client, err := exchange.NewClient(name, logger)
			if err != nil {
				return nil, err
			}
			clients[name] = client
		}
	}
	logger.Info("using live fee schedules", "exchanges", len(clients))
	return exchange.NewClientScheduleSource(clients), nil
}

func persistResults(ctx context.Context, db config.DatabaseConfig, results []model.BacktestResult, logger *slog.Logger) error {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s", db.User, db.Password, db.Host, db.Port, db.DBName)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	repo := database.NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	for _, r := range results {
		if err := repo.SaveResult(ctx, r); err != nil {
			return fmt.Errorf("save result for %s: %w", r.Task, err)
		}
	}
	logger.Info("results persisted", "count", len(results))
	return nil
}

func recordCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "record <exchange> <symbol>",
		Short: "Record an exchange's live trade feed into the backtest data directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(args[0], args[1], dataDir)
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "data directory (defaults to data.dir from config)")
	return cmd
}

func runRecord(exchangeName, symbol, dataDir string) error {
	logger := newLogger()

	if dataDir == "" {
		cfg, err := config.LoadConfig(cfgPath)
		if err != nil {
			return fmt.Errorf("cannot load config: %w", err)
		}
		dataDir = cfg.Data.Dir
	}

	client, err := exchange.NewClient(exchangeName, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	recorder := exchange.NewRecorder(logger, dataDir)
	return recorder.Record(ctx, client, symbol)
}
