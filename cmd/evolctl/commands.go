package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/evolnow/backend/config"
	"github.com/evolnow/backend/internal/seed"
	"github.com/evolnow/backend/internal/store"
	"github.com/evolnow/backend/internal/store/memory"
	"github.com/evolnow/backend/internal/store/postgres"
	"github.com/evolnow/backend/pkg/database"
)

func rootCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:           "evolctl",
		Short:         "Maintenance commands for the evolnow backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
	logger := func() *zap.Logger { return newLogger(verbose) }

	cmd.AddCommand(migrateCmd(logger), seedCmd(logger), userCmd(logger))
	return cmd
}

func migrateCmd(logger func() *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != config.DriverPostgres {
				return errors.New("migrate requires STORE_DRIVER=postgres")
			}
			log := logger()
			pool, err := database.NewPostgresPool(cmd.Context(), cfg.Database, log)
			if err != nil {
				return err
			}
			defer pool.Close()
			applied, err := database.Migrate(cmd.Context(), pool, log)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to migrate.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied: %s\n", strings.Join(applied, ", "))
			return nil
		},
	}
}

func seedCmd(logger func() *zap.Logger) *cobra.Command {
	var orgs, opps int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default admin and optionally generated sample data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSeeder(cmd.Context(), logger(), func(sd *seed.Seeder) error {
				if err := sd.Base(cmd.Context()); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Default admin: %s\n", seed.DefaultEmail)
				if orgs == 0 && opps == 0 {
					return nil
				}
				fmt.Fprintf(out, "Seeding %d organizations and %d opportunities...\n", orgs, opps)
				if _, err := sd.Generate(cmd.Context(), orgs, opps); err != nil {
					return err
				}
				fmt.Fprintln(out, "Seeding complete!")
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&orgs, "organizations", 0, "Number of organizations to generate")
	cmd.Flags().IntVar(&opps, "opportunities", 0, "Number of opportunities to generate")

	var file string
	load := &cobra.Command{
		Use:   "load",
		Short: "Load organizations, users and opportunities from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			fh, err := os.Open(file)
			if err != nil {
				return err
			}
			defer fh.Close()
			fixtures, err := seed.Decode(fh)
			if err != nil {
				return err
			}
			return withSeeder(cmd.Context(), logger(), func(sd *seed.Seeder) error {
				res, err := sd.Load(cmd.Context(), fixtures)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d organizations, %d users, %d opportunities.\n",
					res.Organizations, res.Users, res.Opportunities)
				return nil
			})
		},
	}
	load.Flags().StringVarP(&file, "file", "f", "", "Fixtures file (YAML)")
	_ = load.MarkFlagRequired("file")
	cmd.AddCommand(load)
	return cmd
}

func userCmd(logger func() *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User maintenance",
	}
	var (
		email, password string
		reset           bool
	)
	createTest := &cobra.Command{
		Use:   "create-test",
		Short: "Create a login for manual testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSeeder(cmd.Context(), logger(), func(sd *seed.Seeder) error {
				res, err := sd.CreateTestUser(cmd.Context(), email, password, reset)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case res.Created:
					fmt.Fprintln(out, "Test user created:")
				case res.Updated:
					fmt.Fprintln(out, "Test user updated:")
				default:
					fmt.Fprintln(out, "Test user already exists:")
				}
				fmt.Fprintf(out, "Email: %s\n", res.Email)
				if res.Password != "" {
					fmt.Fprintf(out, "Password: %s\n", res.Password)
				}
				return nil
			})
		},
	}
	createTest.Flags().StringVar(&email, "email", seed.DefaultEmail, "Email of the test user")
	createTest.Flags().StringVar(&password, "password", "", "Password (generated when empty)")
	createTest.Flags().BoolVar(&reset, "set-password-for-existing", false, "Reset the password when the user exists")
	cmd.AddCommand(createTest)
	return cmd
}

// withSeeder opens the configured store and runs fn with a seeder bound to it.
func withSeeder(ctx context.Context, logger *zap.Logger, fn func(sd *seed.Seeder) error) error {
	defer logger.Sync()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	var st store.Store
	if cfg.Database.Driver == config.DriverMemory {
		logger.Warn("using in-memory store; nothing will be persisted")
		st = memory.New()
	} else {
		pool, err := database.NewPostgresPool(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		st = postgres.New(pool)
	}
	return fn(seed.New(st, logger, nil))
}

func newLogger(verbose bool) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, _ := config.Build()
	return logger
}
