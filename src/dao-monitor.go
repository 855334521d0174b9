package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stake-plus/dao-monitor/src/api"
	"github.com/stake-plus/dao-monitor/src/config"
	"github.com/stake-plus/dao-monitor/src/data"
	"github.com/stake-plus/dao-monitor/src/gov"
	"github.com/stake-plus/dao-monitor/src/logging"
	"github.com/stake-plus/dao-monitor/src/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	appName         = "dao-monitor"
	shutdownTimeout = 15 * time.Second
)

var version = "dev"

type globalFlags struct {
	configPath string
	envFile    string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var flags globalFlags
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Announce new and decided DAO governance votes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML config file (overrides MONITOR_CONFIG)")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(
		runCmd(&flags),
		scanCmd(&flags),
		notifiedCmd(&flags),
		tokenCmd(&flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
			},
		},
	)
	return cmd
}

// bootstrap loads configuration, including the settings table when MYSQL_DSN
// is set, and builds the logger. The returned db may be nil.
func bootstrap(flags *globalFlags) (*config.Config, *zap.Logger, *gorm.DB, error) {
	if err := config.LoadEnvFile(flags.envFile); err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_ENCODING"))
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		db       *gorm.DB
		settings *data.Settings
	)
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		if db, err = data.ConnectMySQL(dsn, logger); err != nil {
			return nil, nil, nil, fmt.Errorf("db: %w", err)
		}
		if settings, err = data.LoadSettings(db); err != nil {
			logger.Warn("settings table unavailable, using environment only", zap.Error(err))
		}
	}

	cfg, err := config.Load(config.Options{EnvFile: flags.envFile, File: flags.configPath, Settings: settings})
	if err != nil {
		closeDB(db)
		return nil, nil, nil, err
	}
	if cfg.LogLevel != "" || cfg.LogEncoding != "" {
		if l, err := logging.New(cfg.LogLevel, cfg.LogEncoding); err == nil {
			_ = logger.Sync()
			logger = l
		}
	}
	return cfg, logger, db, nil
}

func closeDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func runCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitor until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, db, err := bootstrap(flags)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			app, err := services.Build(ctx, cfg, logger, services.Deps{DB: db, Stdout: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer app.Close()

			manager, err := services.StartAll(ctx, app)
			if err != nil {
				return fmt.Errorf("services start: %w", err)
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigs
			logger.Info("shutting down", zap.String("signal", sig.String()))

			cancel()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			manager.Stop(stopCtx)
			return nil
		},
	}
}

func scanCmd(flags *globalFlags) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a single pass and print its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, db, err := bootstrap(flags)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			cfg.DryRun = cfg.DryRun || dryRun

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := services.Build(ctx, cfg, logger, services.Deps{DB: db, Stdout: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer app.Close()

			report, scanErr := app.Scanner.Scan(ctx)
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if app.Overlay != nil {
				for _, category := range gov.Categories {
					if ids := app.Overlay.Pending(category); len(ids) > 0 {
						fmt.Fprintf(cmd.OutOrStdout(), "would mark %s: %v\n", category, ids)
					}
				}
			}
			return scanErr
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print announcements to stdout and leave the notified sets untouched")
	return cmd
}

func notifiedCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notified",
		Short: "Inspect or edit the notified sets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <category>",
		Short: "List vote ids already announced in a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, ok := gov.ParseCategory(args[0])
			if !ok {
				return fmt.Errorf("unknown category %q", args[0])
			}
			cfg, logger, db, err := bootstrap(flags)
			if err != nil {
				return err
			}
			st, err := services.OpenStore(cfg, db, logger)
			if err != nil {
				closeDB(db)
				return err
			}
			defer st.Close()
			if cfg.StoreBackend != config.StoreMySQL {
				defer closeDB(db)
			}

			ids, err := st.List(cmd.Context(), category)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "mark <category> <voteId>",
		Short: "Mark a vote as announced so it is never announced in that category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, ok := gov.ParseCategory(args[0])
			if !ok {
				return fmt.Errorf("unknown category %q", args[0])
			}
			voteID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || voteID < 0 {
				return fmt.Errorf("invalid vote id %q", args[1])
			}
			cfg, logger, db, err := bootstrap(flags)
			if err != nil {
				return err
			}
			st, err := services.OpenStore(cfg, db, logger)
			if err != nil {
				closeDB(db)
				return err
			}
			defer st.Close()
			if cfg.StoreBackend != config.StoreMySQL {
				defer closeDB(db)
			}

			if err := st.MarkNotified(cmd.Context(), voteID, category); err != nil {
				return err
			}
			logger.Info("marked notified", zap.Int64("vote_id", voteID), zap.String("category", string(category)))
			return nil
		},
	})
	return cmd
}

func tokenCmd(flags *globalFlags) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, db, err := bootstrap(flags)
			if err != nil {
				return err
			}
			closeDB(db)
			if len(cfg.API.JWTSecret) < 16 {
				return fmt.Errorf("%w: API_JWT_SECRET must be at least 16 characters", config.ErrInvalid)
			}
			tok, err := api.IssueToken([]byte(cfg.API.JWTSecret), subject, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject recorded in audit logs")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
