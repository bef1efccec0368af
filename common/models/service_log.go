package models

import (
	"encoding/json"
	"time"
)

// ServiceLog is one persisted log entry.
type ServiceLog struct {
	ID        string          `json:"id"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id,omitempty"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"created_at"`
}
