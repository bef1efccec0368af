package utils

import (
	"encoding/json"
	"net/http"

	"github.com/LexiconIndonesia/website-crawler-service/common/models"
	"github.com/rs/zerolog/log"
)

// WriteJSON writes data as the JSON response body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// WriteError writes {"error": message} with the given status code
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, models.ErrorResponse{Error: message})
}

// WriteErrorWithTime writes an error response that also reports how long the request ran
func WriteErrorWithTime(w http.ResponseWriter, statusCode int, message string, processingTime int64) {
	WriteJSON(w, statusCode, models.ErrorResponse{
		Error:          message,
		ProcessingTime: &processingTime,
	})
}
