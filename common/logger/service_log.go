package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	serviceLogBuffer = 256
	insertTimeout    = 5 * time.Second
)

// LogSink stores one log entry, e.g. db.LogRepository.
type LogSink interface {
	Insert(ctx context.Context, entry models.ServiceLog) error
}

// ServiceLogWriter is a zerolog.LevelWriter that persists entries at or above
// a minimum level. Inserts run on a single background goroutine; entries are
// dropped rather than blocking the caller when the buffer is full.
type ServiceLogWriter struct {
	sink     LogSink
	minLevel zerolog.Level

	mu      sync.Mutex
	closed  bool
	dropped int
	entries chan models.ServiceLog
	done    chan struct{}
}

func NewServiceLogWriter(sink LogSink, minLevel zerolog.Level) *ServiceLogWriter {
	w := &ServiceLogWriter{
		sink:     sink,
		minLevel: minLevel,
		entries:  make(chan models.ServiceLog, serviceLogBuffer),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *ServiceLogWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

func (w *ServiceLogWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level == zerolog.NoLevel || level < w.minLevel {
		return len(p), nil
	}

	entry, ok := parseEntry(level, p)
	if !ok {
		return len(p), nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return len(p), nil
	}
	select {
	case w.entries <- entry:
	default:
		w.dropped++
	}
	return len(p), nil
}

// Close waits for buffered entries to be stored.
func (w *ServiceLogWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.entries)
	dropped := w.dropped
	w.mu.Unlock()

	<-w.done
	if dropped > 0 {
		return fmt.Errorf("dropped %d service log entries", dropped)
	}
	return nil
}

func (w *ServiceLogWriter) run() {
	defer close(w.done)
	for entry := range w.entries {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		if err := w.sink.Insert(ctx, entry); err != nil {
			// Not through zerolog: this writer is one of its outputs.
			fmt.Fprintf(os.Stderr, "failed to persist service log: %v\n", err)
		}
		cancel()
	}
}

func parseEntry(level zerolog.Level, p []byte) (models.ServiceLog, bool) {
	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err != nil {
		return models.ServiceLog{}, false
	}

	entry := models.ServiceLog{
		ID:        uuid.NewString(),
		Level:     level.String(),
		CreatedAt: time.Now().UTC(),
	}
	if msg, ok := fields[zerolog.MessageFieldName].(string); ok {
		entry.Message = msg
	}
	if id, ok := fields["request_id"].(string); ok {
		entry.RequestID = id
	}

	delete(fields, zerolog.MessageFieldName)
	delete(fields, zerolog.LevelFieldName)
	delete(fields, zerolog.TimestampFieldName)
	delete(fields, "request_id")

	details, err := json.Marshal(fields)
	if err != nil {
		details = []byte("{}")
	}
	entry.Details = details
	return entry, true
}
