package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	objects map[string][]byte
	fail    error
}

func (m *memoryStore) Upload(_ context.Context, bucket, objectName string, content []byte, _ string) (string, error) {
	if m.fail != nil {
		return "", m.fail
	}
	m.objects[bucket+"/"+objectName] = content
	return objectName, nil
}

func TestDeadLetterArchive(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}}
	archive := NewDeadLetterArchive(store, "crawler-dlq")

	at := time.Date(2025, 3, 14, 23, 30, 0, 0, time.UTC)
	name, err := archive.Archive(context.Background(), DeadLetterRecord{
		Subject:        "scraping.jobs.p3",
		Reason:         "malformed",
		StreamSequence: 42,
		Payload:        "{not json",
		DeadLetteredAt: at,
	})
	require.NoError(t, err)
	assert.Equal(t, "dead-letter/2025-03-14/42.json", name)

	raw, ok := store.objects["crawler-dlq/"+name]
	require.True(t, ok)

	var rec DeadLetterRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, "{not json", rec.Payload)
	assert.Equal(t, "malformed", rec.Reason)
}

func TestDeadLetterArchivePropagatesUploadError(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}, fail: errors.New("bucket gone")}
	archive := NewDeadLetterArchive(store, "crawler-dlq")

	_, err := archive.Archive(context.Background(), DeadLetterRecord{StreamSequence: 1})
	assert.EqualError(t, err, "bucket gone")
}
