package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common"
	"github.com/LexiconIndonesia/website-crawler-service/common/config"
	"github.com/LexiconIndonesia/website-crawler-service/common/messaging"
	"github.com/LexiconIndonesia/website-crawler-service/common/models"
	"github.com/LexiconIndonesia/website-crawler-service/common/utils"
	"github.com/LexiconIndonesia/website-crawler-service/common/work"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	maxRequestBody = 50 << 20

	msgBrokerNotReady  = "Service unavailable - broker connection not ready"
	msgLinksRequired   = "Links are required"
	msgNoValidLinks    = "No valid links provided"
	msgInvalidPayload  = "Invalid request payload"
	msgRequestInFlight = "Request already in progress"
)

// Broker reports the state of the broker connection.
type Broker interface {
	Ready() bool
	State() messaging.State
}

type JobDispatcher interface {
	Dispatch(ctx context.Context, links []string, requestID, resultDestination string, domains []string, opts models.ExtractOptions) error
}

type ResultCollector interface {
	PrepareResultDestination(ctx context.Context, requestID string) (string, error)
	ReleaseResultDestination(ctx context.Context, dest string)
	Collect(ctx context.Context, dest string, expected int, timeout time.Duration) []models.CrawlResult
}

type ScraperHandler struct {
	broker         Broker
	dispatcher     JobDispatcher
	collector      ResultCollector
	tracker        work.RequestTracker
	collectTimeout time.Duration
	validate       *validator.Validate
	router         *chi.Mux
}

func NewScraperHandler(broker Broker, dispatcher JobDispatcher, collector ResultCollector, tracker work.RequestTracker, cfg config.Config) *ScraperHandler {
	router := chi.NewRouter()

	h := &ScraperHandler{
		broker:         broker,
		dispatcher:     dispatcher,
		collector:      collector,
		tracker:        tracker,
		collectTimeout: cfg.Queue.CollectTimeout,
		validate:       validator.New(),
		router:         router,
	}

	router.Post("/", h.handleScrapeWebsite)
	return h
}

func (h *ScraperHandler) Router() *chi.Mux {
	return h.router
}

// handleScrapeWebsite fans the links out to the workers and answers once every
// result is in or the collect timeout passes.
//
//	@Summary	Crawl a batch of websites
//	@Tags		scraping
//	@Accept		json
//	@Produce	json
//	@Param		request	body		models.CrawlRequest	true	"Links to crawl"
//	@Success	200		{object}	models.ScrapeResponse
//	@Failure	400		{object}	models.ErrorResponse
//	@Failure	409		{object}	models.ErrorResponse
//	@Failure	500		{object}	models.ErrorResponse
//	@Failure	503		{object}	models.ErrorResponse
//	@Router		/api/scrapWebsite [post]
func (h *ScraperHandler) handleScrapeWebsite(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if !h.broker.Ready() {
		log.Error().Str("state", h.broker.State().String()).Msg("Broker not ready, rejecting scrape request")
		utils.WriteError(w, http.StatusServiceUnavailable, msgBrokerNotReady)
		return
	}

	var req models.CrawlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}
	if req.Links == nil {
		utils.WriteError(w, http.StatusBadRequest, msgLinksRequired)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Links) == 0 {
		utils.WriteError(w, http.StatusBadRequest, msgNoValidLinks)
		return
	}

	requestID := lo.Ternary(req.RequestID != "", req.RequestID, uuid.NewString())
	logger := log.With().Str("request_id", requestID).Logger()
	logger.Info().
		Int("links", len(req.Links)).
		Int("domains", len(req.Domains)).
		Msg("Received scrape request")

	if err := h.tracker.Begin(r.Context(), requestID, h.collectTimeout+time.Minute); err != nil {
		if errors.Is(err, common.ErrRequestInFlight) {
			utils.WriteError(w, http.StatusConflict, msgRequestInFlight)
			return
		}
		logger.Error().Err(err).Msg("Failed to reserve request")
		utils.WriteErrorWithTime(w, http.StatusInternalServerError, err.Error(), time.Since(start).Milliseconds())
		return
	}
	defer func() {
		if err := h.tracker.Finish(context.WithoutCancel(r.Context()), requestID); err != nil {
			logger.Warn().Err(err).Msg("Failed to release request")
		}
	}()

	results, err := h.run(r.Context(), requestID, req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		logger.Error().Err(err).Int64("processing_time", elapsed).Msg("Scrape request failed")
		switch {
		case errors.Is(err, common.ErrBrokerUnavailable):
			utils.WriteError(w, http.StatusServiceUnavailable, msgBrokerNotReady)
		case errors.Is(err, messaging.ErrDestinationInUse):
			utils.WriteError(w, http.StatusConflict, msgRequestInFlight)
		default:
			utils.WriteErrorWithTime(w, http.StatusInternalServerError, err.Error(), elapsed)
		}
		return
	}

	resp := models.NewScrapeResponse(requestID, len(req.Links), results, elapsed)
	logger.Info().
		Int("successful", resp.Stats.Successful).
		Int("failed", resp.Stats.Failed).
		Int("missing", resp.Stats.Total-len(results)).
		Int64("processing_time", elapsed).
		Msg("Scrape request completed")

	utils.WriteJSON(w, http.StatusOK, resp)
}

// run owns the result destination for the lifetime of one request.
func (h *ScraperHandler) run(ctx context.Context, requestID string, req models.CrawlRequest) ([]models.CrawlResult, error) {
	dest, err := h.collector.PrepareResultDestination(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer h.collector.ReleaseResultDestination(context.WithoutCancel(ctx), dest)

	if err := h.dispatcher.Dispatch(ctx, req.Links, requestID, dest, req.Domains, req.ExtractOptions); err != nil {
		return nil, err
	}

	return h.collector.Collect(ctx, dest, len(req.Links), h.collectTimeout), nil
}
