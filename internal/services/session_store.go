package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/playhall/backend/internal/models"
	"github.com/spf13/viper"
)

// SessionStore holds in-flight blackjack sessions. Implementations must
// make Create an atomic check-and-create on the per-user active marker
// (one in_progress game per user) and Complete an atomic in_progress ->
// completed transition so settlement can trigger exactly once.
type SessionStore interface {
	// Create stores a new session; rejects with ErrGameInProgress when the
	// user already has an active one.
	Create(ctx context.Context, session *models.GameSession) error
	// Get returns the session or ErrGameNotFound (expired included).
	Get(ctx context.Context, sessionID string) (*models.GameSession, error)
	// Update persists intermediate state of an in_progress session. The
	// write is guarded by the session's version: if another request
	// persisted a newer state since this one was loaded, Update fails with
	// ErrGameConflict instead of overwriting it.
	Update(ctx context.Context, session *models.GameSession) error
	// Complete flips the session to completed and releases the user's
	// active marker. Returns ErrGameAlreadyCompleted if another call won
	// the transition.
	Complete(ctx context.Context, session *models.GameSession) error
	// Abort discards a session whose opening debit was rejected, freeing
	// the user's active marker.
	Abort(ctx context.Context, session *models.GameSession) error
}

func sessionTTL() time.Duration {
	viper.SetDefault("games.session_ttl", 30*time.Minute)
	return viper.GetDuration("games.session_ttl")
}

// ---------------------------------------------------------------------------
// Redis-backed store

// RedisSessionStore keys sessions under bj:sess:{id} with a TTL and keeps
// the one-active-game invariant in bj:active:{userID} via SETNX.
type RedisSessionStore struct {
	redis *redis.Client
}

func NewRedisSessionStore(redisClient *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{redis: redisClient}
}

func sessionKey(id string) string { return fmt.Sprintf("bj:sess:%s", id) }

func activeKey(userID string) string { return fmt.Sprintf("bj:active:%s", userID) }

func (s *RedisSessionStore) Create(ctx context.Context, session *models.GameSession) error {
	ttl := sessionTTL()
	ok, err := s.redis.SetNX(ctx, activeKey(session.UserID), session.SessionID, ttl).Result()
	if err != nil {
		return fmt.Errorf("session reserve failed: %w", err)
	}
	if !ok {
		return ErrGameInProgress
	}

	session.Version = 1
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, sessionKey(session.SessionID), data, ttl).Err(); err != nil {
		// Roll the marker back so the user is not locked out of starting.
		s.redis.Del(ctx, activeKey(session.UserID))
		return fmt.Errorf("session store failed: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, sessionID string) (*models.GameSession, error) {
	data, err := s.redis.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session fetch failed: %w", err)
	}
	var session models.GameSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// updateScript replaces the stored session only while its version still
// matches the one this caller loaded, so two in-flight actions cannot
// silently overwrite each other's dealt cards.
const updateScript = `
	local cur = redis.call("get", KEYS[1])
	if not cur then
		return -1
	end
	if cjson.decode(cur)["version"] ~= tonumber(ARGV[2]) then
		return 0
	end
	redis.call("set", KEYS[1], ARGV[1], "KEEPTTL")
	return 1
`

func (s *RedisSessionStore) Update(ctx context.Context, session *models.GameSession) error {
	expected := session.Version
	session.Version++
	data, err := json.Marshal(session)
	if err != nil {
		session.Version = expected
		return err
	}
	res, err := s.redis.Eval(ctx, updateScript,
		[]string{sessionKey(session.SessionID)},
		string(data), expected).Result()
	if err != nil {
		session.Version = expected
		return fmt.Errorf("session update failed: %w", err)
	}
	switch n, _ := res.(int64); n {
	case 1:
		return nil
	case -1:
		session.Version = expected
		return ErrGameNotFound
	default:
		session.Version = expected
		return ErrGameConflict
	}
}

// completeScript releases the active marker only while it still points at
// this session, and reports whether this caller performed the release.
const completeScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		redis.call("del", KEYS[1])
		redis.call("set", KEYS[2], ARGV[2], "EX", ARGV[3])
		return 1
	else
		return 0
	end
`

func (s *RedisSessionStore) Complete(ctx context.Context, session *models.GameSession) error {
	session.Status = models.SessionCompleted
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	// Completed sessions linger briefly for duplicate-action responses.
	keep := int((5 * time.Minute).Seconds())
	res, err := s.redis.Eval(ctx, completeScript,
		[]string{activeKey(session.UserID), sessionKey(session.SessionID)},
		session.SessionID, string(data), keep).Result()
	if err != nil {
		return fmt.Errorf("session complete failed: %w", err)
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return ErrGameAlreadyCompleted
	}
	return nil
}

const abortScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		redis.call("del", KEYS[1])
	end
	return redis.call("del", KEYS[2])
`

func (s *RedisSessionStore) Abort(ctx context.Context, session *models.GameSession) error {
	return s.redis.Eval(ctx, abortScript,
		[]string{activeKey(session.UserID), sessionKey(session.SessionID)},
		session.SessionID).Err()
}

// ---------------------------------------------------------------------------
// In-memory store

// MemorySessionStore is the mutex-guarded fallback used in tests and when
// Redis is unavailable. Semantics mirror the Redis store.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.GameSession
	active   map[string]string // userID -> sessionID
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: map[string]*models.GameSession{},
		active:   map[string]string{},
	}
}

func (s *MemorySessionStore) Create(ctx context.Context, session *models.GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sid, ok := s.active[session.UserID]; ok {
		if existing, ok := s.sessions[sid]; ok && time.Now().Before(existing.ExpiresAt) {
			return ErrGameInProgress
		}
		delete(s.active, session.UserID)
		delete(s.sessions, sid)
	}
	session.Version = 1
	s.active[session.UserID] = session.SessionID
	s.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, sessionID string) (*models.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrGameNotFound
	}
	if session.Status == models.SessionInProgress && time.Now().After(session.ExpiresAt) {
		delete(s.sessions, sessionID)
		if s.active[session.UserID] == sessionID {
			delete(s.active, session.UserID)
		}
		return nil, ErrGameNotFound
	}
	return cloneSession(session), nil
}

func (s *MemorySessionStore) Update(ctx context.Context, session *models.GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[session.SessionID]
	if !ok {
		return ErrGameNotFound
	}
	if stored.Version != session.Version {
		return ErrGameConflict
	}
	session.Version++
	s.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func (s *MemorySessionStore) Complete(ctx context.Context, session *models.GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active[session.UserID] != session.SessionID {
		return ErrGameAlreadyCompleted
	}
	delete(s.active, session.UserID)
	session.Status = models.SessionCompleted
	s.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func (s *MemorySessionStore) Abort(ctx context.Context, session *models.GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active[session.UserID] == session.SessionID {
		delete(s.active, session.UserID)
	}
	delete(s.sessions, session.SessionID)
	return nil
}

func cloneSession(session *models.GameSession) *models.GameSession {
	data, _ := json.Marshal(session)
	var copied models.GameSession
	_ = json.Unmarshal(data, &copied)
	return &copied
}
