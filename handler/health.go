package handler

import (
	"net/http"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common/models"
	"github.com/LexiconIndonesia/website-crawler-service/common/utils"
	"github.com/go-chi/chi/v5"
)

const serviceName = "website-crawler-service"

type HealthHandler struct {
	broker Broker
	router *chi.Mux
}

func NewHealthHandler(broker Broker) *HealthHandler {
	h := &HealthHandler{
		broker: broker,
	}

	r := chi.NewRouter()
	r.Get("/", h.handleHealthCheck)

	h.router = r
	return h
}

func (h *HealthHandler) Router() *chi.Mux {
	return h.router
}

// handleHealthCheck always answers 200; a broker that is not ready shows up as "degraded".
//
//	@Summary	Service health
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	models.HealthResponse
//	@Router		/health [get]
func (h *HealthHandler) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	connected := h.broker.Ready()
	status := "healthy"
	if !connected {
		status = "degraded"
	}

	utils.WriteJSON(w, http.StatusOK, models.HealthResponse{
		Status:         status,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Service:        serviceName,
		QueueConnected: connected,
		BrokerState:    h.broker.State().String(),
	})
}
