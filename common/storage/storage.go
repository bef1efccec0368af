package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// StorageService stores objects in a bucket.
type StorageService interface {
	// Upload stores content under objectName and returns the object name
	Upload(ctx context.Context, bucket, objectName string, content []byte, contentType string) (string, error)
}

// DeadLetterRecord is the archived form of a job that could not be processed.
type DeadLetterRecord struct {
	Subject        string              `json:"subject"`
	Reason         string              `json:"reason"`
	StreamSequence uint64              `json:"streamSequence"`
	Deliveries     uint64              `json:"deliveries"`
	Headers        map[string][]string `json:"headers,omitempty"`
	Payload        string              `json:"payload"`
	DeadLetteredAt time.Time           `json:"deadLetteredAt"`
}

// DeadLetterArchive writes dead-lettered jobs to a bucket as
// dead-letter/<yyyy-mm-dd>/<sequence>.json.
type DeadLetterArchive struct {
	store  StorageService
	bucket string
}

func NewDeadLetterArchive(store StorageService, bucket string) *DeadLetterArchive {
	return &DeadLetterArchive{store: store, bucket: bucket}
}

// ObjectName returns the key a record is archived under.
func ObjectName(rec DeadLetterRecord) string {
	return fmt.Sprintf("dead-letter/%s/%d.json", rec.DeadLetteredAt.UTC().Format("2006-01-02"), rec.StreamSequence)
}

// Archive uploads rec and returns its object name.
func (a *DeadLetterArchive) Archive(ctx context.Context, rec DeadLetterRecord) (string, error) {
	if rec.DeadLetteredAt.IsZero() {
		rec.DeadLetteredAt = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal dead letter: %w", err)
	}

	name, err := a.store.Upload(ctx, a.bucket, ObjectName(rec), data, "application/json")
	if err != nil {
		return "", err
	}

	log.Info().
		Str("bucket", a.bucket).
		Str("object", name).
		Str("reason", rec.Reason).
		Msg("Archived dead letter")
	return name, nil
}
