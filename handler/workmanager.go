package handler

import (
	"net/http"

	"github.com/LexiconIndonesia/website-crawler-service/common/utils"
	"github.com/LexiconIndonesia/website-crawler-service/common/work"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// WorkManagerHandler exposes the requests currently being processed.
type WorkManagerHandler struct {
	router  *chi.Mux
	tracker work.RequestTracker
}

type inFlightResponse struct {
	Requests []string `json:"requests"`
	Count    int      `json:"count"`
}

type requestStatusResponse struct {
	RequestID string `json:"requestId"`
	InFlight  bool   `json:"inFlight"`
}

func NewWorkManagerHandler(tracker work.RequestTracker) *WorkManagerHandler {
	router := chi.NewRouter()

	h := &WorkManagerHandler{
		router:  router,
		tracker: tracker,
	}

	router.Get("/", h.handleListRequests)
	router.Get("/{requestID}", h.handleGetRequest)

	return h
}

func (h *WorkManagerHandler) Router() *chi.Mux {
	return h.router
}

// @Summary	List in-flight scrape requests
// @Tags		requests
// @Produce	json
// @Success	200	{object}	inFlightResponse
// @Router		/api/requests [get]
func (h *WorkManagerHandler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	ids, err := h.tracker.ListInFlight(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list in-flight requests")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to list requests")
		return
	}

	utils.WriteJSON(w, http.StatusOK, inFlightResponse{Requests: ids, Count: len(ids)})
}

// @Summary	Report whether a scrape request is still running
// @Tags		requests
// @Produce	json
// @Param		requestID	path		string	true	"Request id"
// @Success	200			{object}	requestStatusResponse
// @Router		/api/requests/{requestID} [get]
func (h *WorkManagerHandler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	inFlight, err := h.tracker.IsInFlight(r.Context(), requestID)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("Failed to check request")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to check request")
		return
	}

	utils.WriteJSON(w, http.StatusOK, requestStatusResponse{RequestID: requestID, InFlight: inFlight})
}
