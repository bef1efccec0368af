package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveWithWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, and by default a queue worker in the same process",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		svc := newServices(cfg)
		defer svc.Close()

		go svc.connectBroker(ctx)

		tracker, err := svc.tracker(ctx, cfg)
		if err != nil {
			return fmt.Errorf("setup request tracker: %w", err)
		}

		var workerDone <-chan struct{}
		if serveWithWorker {
			workerDone, err = svc.startWorker(ctx, cfg)
			if err != nil {
				return fmt.Errorf("start worker: %w", err)
			}
		}

		srv, err := server.NewAppHttpServer(cfg)
		if err != nil {
			return fmt.Errorf("create server: %w", err)
		}
		srv.SetBroker(svc.broker)
		srv.SetTracker(tracker)
		if err := srv.SetupRoute(); err != nil {
			return fmt.Errorf("setup routes: %w", err)
		}

		serverErr := make(chan error, 1)
		go func() {
			serverErr <- srv.Start()
		}()

		log.Info().Str("address", cfg.Listen.Addr()).Bool("worker", serveWithWorker).Msg("Server started successfully")
		log.Info().Str("swagger", fmt.Sprintf("http://%s/swagger/index.html", cfg.Listen.Addr())).Msg("Swagger documentation available at")

		select {
		case <-shutdown:
			log.Info().Msg("Shutdown signal received")
		case err := <-serverErr:
			if err != nil {
				log.Error().Err(err).Msg("Server error")
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown failed")
		}

		// In-flight jobs are returned to the queue.
		cancel()
		if workerDone != nil {
			<-workerDone
		}

		log.Info().Msg("Server gracefully stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithWorker, "worker", true, "also consume crawl jobs in this process")
	rootCmd.AddCommand(serveCmd)
}
