package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var workerMetricsAddr string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume crawl jobs from the work queue without serving the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		svc := newServices(cfg)
		defer svc.Close()

		go svc.connectBroker(ctx)

		done, err := svc.startWorker(ctx, cfg)
		if err != nil {
			return fmt.Errorf("start worker: %w", err)
		}

		r := chi.NewRouter()
		r.Handle("/metrics", metrics.Handler())
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			if !svc.broker.Ready() {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		metricsSrv := &http.Server{
			Addr:              workerMetricsAddr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server error")
			}
		}()
		log.Info().Str("metrics", workerMetricsAddr).Int("prefetch", cfg.Queue.Prefetch).Msg("Worker started")

		<-shutdown
		log.Info().Msg("Shutdown signal received")
		cancel()
		<-done

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}

		log.Info().Msg("Worker gracefully stopped")
		return nil
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerMetricsAddr, "metrics-addr", ":9090", "address for /metrics and /health")
	rootCmd.AddCommand(workerCmd)
}
