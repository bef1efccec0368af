package work

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common"
	"github.com/LexiconIndonesia/website-crawler-service/common/redis"
	"github.com/rs/zerolog/log"
)

const (
	requestKeyPrefix = "crawl:request:"
	inFlightState    = "in_flight"
	// DefaultRequestTTL bounds how long a request id stays reserved if Finish is
	// never called, e.g. when the process dies mid-request.
	DefaultRequestTTL = 15 * time.Minute
)

// RequestTracker reserves request ids for the lifetime of a request so that no
// two requests ever share a result destination.
type RequestTracker interface {
	// Begin reserves requestID. It fails with ErrRequestInFlight when already reserved.
	Begin(ctx context.Context, requestID string, ttl time.Duration) error
	Finish(ctx context.Context, requestID string) error
	IsInFlight(ctx context.Context, requestID string) (bool, error)
	ListInFlight(ctx context.Context) ([]string, error)
}

// RedisRequestTracker keeps reservations in Redis and works across processes.
type RedisRequestTracker struct {
	redis *redis.RedisClient
}

func NewRedisRequestTracker(client *redis.RedisClient) *RedisRequestTracker {
	return &RedisRequestTracker{redis: client}
}

func (rt *RedisRequestTracker) key(requestID string) string {
	return requestKeyPrefix + requestID
}

func (rt *RedisRequestTracker) Begin(ctx context.Context, requestID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	ok, err := rt.redis.SetNX(ctx, rt.key(requestID), inFlightState, ttl)
	if err != nil {
		return fmt.Errorf("failed to reserve request %s: %w", requestID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrRequestInFlight, requestID)
	}
	log.Debug().Str("request_id", requestID).Dur("ttl", ttl).Msg("Request reserved")
	return nil
}

func (rt *RedisRequestTracker) Finish(ctx context.Context, requestID string) error {
	if err := rt.redis.Delete(ctx, rt.key(requestID)); err != nil {
		return fmt.Errorf("failed to release request %s: %w", requestID, err)
	}
	return nil
}

func (rt *RedisRequestTracker) IsInFlight(ctx context.Context, requestID string) (bool, error) {
	ok, err := rt.redis.Exists(ctx, rt.key(requestID))
	if err != nil {
		return false, fmt.Errorf("failed to check request %s: %w", requestID, err)
	}
	return ok, nil
}

func (rt *RedisRequestTracker) ListInFlight(ctx context.Context) ([]string, error) {
	keys, err := rt.redis.ScanKeys(ctx, requestKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan in-flight requests: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, requestKeyPrefix))
	}
	sort.Strings(ids)
	return ids, nil
}

// MemoryRequestTracker is the single-process tracker used when Redis is not configured.
type MemoryRequestTracker struct {
	mu       sync.Mutex
	inFlight map[string]time.Time
	now      func() time.Time
}

func NewMemoryRequestTracker() *MemoryRequestTracker {
	return &MemoryRequestTracker{
		inFlight: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (mt *MemoryRequestTracker) Begin(_ context.Context, requestID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if expires, ok := mt.inFlight[requestID]; ok && mt.now().Before(expires) {
		return fmt.Errorf("%w: %s", common.ErrRequestInFlight, requestID)
	}
	mt.inFlight[requestID] = mt.now().Add(ttl)
	return nil
}

func (mt *MemoryRequestTracker) Finish(_ context.Context, requestID string) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	delete(mt.inFlight, requestID)
	return nil
}

func (mt *MemoryRequestTracker) IsInFlight(_ context.Context, requestID string) (bool, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	expires, ok := mt.inFlight[requestID]
	return ok && mt.now().Before(expires), nil
}

func (mt *MemoryRequestTracker) ListInFlight(_ context.Context) ([]string, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	now := mt.now()
	ids := make([]string, 0, len(mt.inFlight))
	for id, expires := range mt.inFlight {
		if now.Before(expires) {
			ids = append(ids, id)
		} else {
			delete(mt.inFlight, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
