package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/logging"
)

// keyPrefix namespaces session records in Redis.
const keyPrefix = "session:"

// RedisStore is a core.ContextStore backed by Redis. Sessions are stored as
// one JSON value per session under "session:<id>" with a sliding TTL, the
// same layout the original deployment used. Mutations for one session are
// serialized by a per-session mutex so concurrent requests on the same
// session cannot lose appends; sessions never contend with each other.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger logging.Logger

	// per-session append locks
	locks sync.Map // sessionID -> *sync.Mutex
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// TTL is the sliding session expiry. Defaults to one hour.
	TTL    time.Duration
	Logger logging.Logger
}

// NewRedisStore constructs a RedisStore over an existing client.
func NewRedisStore(client *redis.Client, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{TTL: time.Hour}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisStore{client: client, ttl: opts.TTL, logger: logging.OrNoOp(opts.Logger)}
}

// Read fetches the session record, or returns a fresh implicitly-new session
// when no record exists.
func (s *RedisStore) Read(ctx context.Context, sessionID string) (*core.SessionContext, error) {
	data, err := s.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.NewSessionContext(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}

	var sess core.SessionContext
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if sess.Variables == nil {
		sess.Variables = map[string]any{}
	}
	return &sess, nil
}

// Append records one agent output, extends the agent chain and refreshes the
// TTL. Read-modify-write for one session runs under its per-session lock.
func (s *RedisStore) Append(ctx context.Context, sessionID string, entry core.ContextEntry) error {
	return s.mutate(ctx, sessionID, func(sess *core.SessionContext) {
		sess.Entries = append(sess.Entries, entry)
		sess.AgentChain = append(sess.AgentChain, entry.Agent)
		sess.Updated = entry.Timestamp
	})
}

// MergeVariables merges a key/value delta into the session's variables map.
func (s *RedisStore) MergeVariables(ctx context.Context, sessionID string, vars map[string]any) error {
	if len(vars) == 0 {
		return nil
	}
	return s.mutate(ctx, sessionID, func(sess *core.SessionContext) {
		for k, v := range vars {
			sess.Variables[k] = v
		}
		sess.Updated = time.Now()
	})
}

// Delete removes the session record.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	s.locks.Delete(sessionID)
	s.logger.Info("session deleted", "session_id", sessionID)
	return nil
}

func (s *RedisStore) mutate(ctx context.Context, sessionID string, fn func(*core.SessionContext)) error {
	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.Read(ctx, sessionID)
	if err != nil {
		return err
	}
	fn(sess)

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}
	if err := s.client.Set(ctx, keyPrefix+sessionID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("write session %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisStore) lockFor(sessionID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}
