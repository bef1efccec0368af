// Package cmd holds the command line entry points of the crawler service.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common/config"
	"github.com/LexiconIndonesia/website-crawler-service/common/db"
	"github.com/LexiconIndonesia/website-crawler-service/common/logger"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfg       config.Config
	dbConn    *db.DB
	logCloser io.Closer

	envFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "website-crawler-service",
	Short: "Distributed website crawler",
	Long: "Accepts batches of company websites over HTTP, fans them out to crawl workers " +
		"through NATS JetStream and returns the extracted services, contacts and profile data.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("file", envFile).Msg("Error loading env file, using environment variables")
		}

		cfg = config.DefaultConfig()
		cfg.LoadFromEnv()
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}

		var sink logger.LogSink
		if cfg.Log.ToDatabase && cfg.PgSql.Enabled() {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			conn, err := db.SetupDatabase(ctx, cfg)
			if err != nil {
				return fmt.Errorf("setup database: %w", err)
			}
			dbConn = conn
			sink = conn.Logs
		}

		closer, err := logger.Setup(cfg, sink)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logCloser = closer
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			if err := logCloser.Close(); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		}
		if dbConn != nil {
			dbConn.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
