package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common/config"
	"github.com/LexiconIndonesia/website-crawler-service/common/messaging"
	"github.com/LexiconIndonesia/website-crawler-service/common/metrics"
	"github.com/LexiconIndonesia/website-crawler-service/common/work"
	"github.com/LexiconIndonesia/website-crawler-service/handler"
	"github.com/LexiconIndonesia/website-crawler-service/middlewares"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

type AppHttpServer struct {
	router  *chi.Mux
	cfg     config.Config
	server  *http.Server
	broker  *messaging.NatsBroker
	tracker work.RequestTracker
}

func NewAppHttpServer(cfg config.Config) (*AppHttpServer, error) {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"RateLimit-Limit", "RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middlewares.NewRateLimiter(cfg.RateLimit.RequestsPerMinute).Handler)

	// A scrape request may wait the whole collect timeout for its results.
	r.Use(middleware.Timeout(cfg.Queue.CollectTimeout + time.Minute))

	server := &AppHttpServer{
		router: r,
		cfg:    cfg,
	}
	return server, nil
}

// SetBroker sets the NATS broker dependency
func (s *AppHttpServer) SetBroker(broker *messaging.NatsBroker) {
	s.broker = broker
}

// SetTracker sets the request tracker; the in-memory tracker is used when none is set
func (s *AppHttpServer) SetTracker(tracker work.RequestTracker) {
	s.tracker = tracker
}

func (s *AppHttpServer) Router() http.Handler {
	return s.router
}

func (s *AppHttpServer) SetupRoute() error {
	r := s.router

	if s.broker == nil {
		return errors.New("broker dependency not set")
	}
	if s.tracker == nil {
		log.Warn().Msg("Request tracker not set, using in-process tracker")
		s.tracker = work.NewMemoryRequestTracker()
	}

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Handle("/metrics", metrics.Handler())

	healthHandler := handler.NewHealthHandler(s.broker)
	r.Mount("/health", healthHandler.Router())

	r.Route("/api", func(r chi.Router) {
		scraperHandler := handler.NewScraperHandler(
			s.broker,
			messaging.NewDispatcher(s.broker, s.cfg),
			messaging.NewCollector(s.broker),
			s.tracker,
			s.cfg,
		)
		workManagerHandler := handler.NewWorkManagerHandler(s.tracker)

		r.Mount("/health", healthHandler.Router())
		r.Mount("/scrapWebsite", scraperHandler.Router())
		r.Mount("/requests", workManagerHandler.Router())
	})
	return nil
}

func (s *AppHttpServer) Start() error {
	cfg := s.cfg
	log.Info().Msg("Starting up server...")

	s.server = &http.Server{
		Addr:         cfg.Listen.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Queue.CollectTimeout + 2*time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop gracefully shuts down the server
func (s *AppHttpServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
