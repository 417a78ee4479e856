// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package main is the entry point for the kavmarket listing API. The
// default command serves HTTP; migrate and seed manage the database.
package main

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"kavmarket/internal/config"
	"kavmarket/internal/database"
	"kavmarket/internal/logging"
)

// Version information set by the build.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "kavmarket",
		Short:         "Classified listings API",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with environment variables to load")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(envFile)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDB(envFile, func(db *sql.DB) error {
					return database.Migrate(db)
				})
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Apply migrations and insert the default categories and tags",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDB(envFile, func(db *sql.DB) error {
					if err := database.Migrate(db); err != nil {
						return err
					}
					return database.Seed(db)
				})
			},
		},
	)
	return root
}

// bootstrap loads the environment and configuration and installs the
// default logger. The returned closer flushes the log file.
func bootstrap(envFile string) (*config.Config, io.Closer, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	closer := logging.Setup(logging.Options{
		Level:      cfg.LogLevel,
		JSON:       !cfg.IsDev(),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	return cfg, closer, nil
}

func withDB(envFile string, fn func(db *sql.DB) error) error {
	cfg, logCloser, err := bootstrap(envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer logCloser.Close()

	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		return err
	}
	defer db.Close()

	if err := fn(db); err != nil {
		slog.Error("database command failed", "error", err)
		return err
	}
	return nil
}
