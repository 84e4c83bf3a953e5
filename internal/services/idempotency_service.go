package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// IdempotencyService collapses duplicate money-moving requests that carry
// the same client token. A reservation is a single atomic SETNX so two
// concurrent retries can never both proceed; completed results are cached
// for the short retry window and replayed verbatim.
type IdempotencyService struct {
	redis *redis.Client

	// Process-local fallback when Redis is unavailable.
	mu      sync.Mutex
	locks   map[string]time.Time
	results map[string]localResult
}

type localResult struct {
	data      []byte
	expiresAt time.Time
}

// Reservation is the outcome of CheckAndReserve. When IsNew is false the
// cached result must be returned to the caller without re-executing side
// effects.
type Reservation struct {
	IsNew        bool
	CachedResult json.RawMessage
	lockValue    string
}

func NewIdempotencyService(redisClient *redis.Client) *IdempotencyService {
	return &IdempotencyService{
		redis:   redisClient,
		locks:   map[string]time.Time{},
		results: map[string]localResult{},
	}
}

func (s *IdempotencyService) lockTTL() time.Duration {
	viper.SetDefault("games.idem_lock_ttl", 45*time.Second)
	return viper.GetDuration("games.idem_lock_ttl")
}

func (s *IdempotencyService) resultTTL() time.Duration {
	viper.SetDefault("games.idem_result_ttl", time.Minute)
	return viper.GetDuration("games.idem_result_ttl")
}

// Key derives the registry key from the verified user and the
// client-supplied request token.
func (s *IdempotencyService) Key(userID, requestToken string) string {
	return fmt.Sprintf("idem:%s:%s", userID, requestToken)
}

// CheckAndReserve returns a cached result for a completed duplicate,
// reserves the key for a first-time request, and rejects with
// ErrDuplicateInProgress when another request holds the reservation.
func (s *IdempotencyService) CheckAndReserve(ctx context.Context, key string) (*Reservation, error) {
	if s.redis == nil {
		return s.localCheckAndReserve(key)
	}

	if data, err := s.redis.Get(ctx, key+":result").Bytes(); err == nil && len(data) > 0 {
		return &Reservation{IsNew: false, CachedResult: data}, nil
	}

	lockValue := uuid.New().String()
	ok, err := s.redis.SetNX(ctx, key+":lock", lockValue, s.lockTTL()).Result()
	if err != nil {
		return nil, fmt.Errorf("idempotency reserve failed: %w", err)
	}
	if !ok {
		// Lost the race; the winner may have finished in the meantime.
		if data, err := s.redis.Get(ctx, key+":result").Bytes(); err == nil && len(data) > 0 {
			return &Reservation{IsNew: false, CachedResult: data}, nil
		}
		return nil, ErrDuplicateInProgress
	}
	return &Reservation{IsNew: true, lockValue: lockValue}, nil
}

// Complete stores the response for duplicate replay and releases the
// reservation.
func (s *IdempotencyService) Complete(ctx context.Context, key string, res *Reservation, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		log.Printf("[IDEMPOTENCY] Failed to encode result for %s: %v", key, err)
		s.Release(ctx, key, res)
		return
	}

	if s.redis == nil {
		s.mu.Lock()
		s.results[key] = localResult{data: data, expiresAt: time.Now().Add(s.resultTTL())}
		delete(s.locks, key)
		s.mu.Unlock()
		return
	}

	if err := s.redis.Set(ctx, key+":result", data, s.resultTTL()).Err(); err != nil {
		log.Printf("[IDEMPOTENCY] Failed to cache result for %s: %v", key, err)
	}
	s.releaseLock(ctx, key, res.lockValue)
}

// Release drops the reservation without caching a result, used on failure
// paths so the client retry can run the request again.
func (s *IdempotencyService) Release(ctx context.Context, key string, res *Reservation) {
	if s.redis == nil {
		s.mu.Lock()
		delete(s.locks, key)
		s.mu.Unlock()
		return
	}
	s.releaseLock(ctx, key, res.lockValue)
}

// releaseLock deletes the reservation only when it still holds our lock
// value, so an expired lock reclaimed by another request is never removed.
func (s *IdempotencyService) releaseLock(ctx context.Context, key, lockValue string) {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	if err := s.redis.Eval(ctx, script, []string{key + ":lock"}, lockValue).Err(); err != nil && err != redis.Nil {
		log.Printf("[IDEMPOTENCY] Failed to release lock %s: %v", key, err)
	}
}

func (s *IdempotencyService) localCheckAndReserve(key string) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if res, ok := s.results[key]; ok {
		if now.Before(res.expiresAt) {
			return &Reservation{IsNew: false, CachedResult: res.data}, nil
		}
		delete(s.results, key)
	}
	if expiry, ok := s.locks[key]; ok && now.Before(expiry) {
		return nil, ErrDuplicateInProgress
	}
	s.locks[key] = now.Add(s.lockTTL())
	return &Reservation{IsNew: true}, nil
}
