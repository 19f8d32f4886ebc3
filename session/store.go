package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is an exported constant or variable used by the authentication engine.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrDifferentUser is returned when a STRICT op session rejects authentication as another user.
var ErrDifferentUser = errors.New("different user authenticated in op session")

// ErrSessionCorrupt is returned when a stored session blob cannot be parsed.
var ErrSessionCorrupt = errors.New("session blob corrupt")

const (
	establishStatusCreated  int64 = 0
	establishStatusReused   int64 = 1
	establishStatusRejected int64 = 2
	establishStatusSwitched int64 = 3
	establishStatusCorrupt  int64 = 4
)

const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
  local count = tonumber(redis.call("GET", KEYS[3]) or "0")
  if count > 1 then
    redis.call("DECR", KEYS[3])
  elseif count == 1 then
    redis.call("DEL", KEYS[3])
  end
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// establishScript implements the op-session decision atomically: reuse for the
// same user, reject or switch for a different user per the switch policy, and
// create when no live session is presented. The v1 blob keeps its three
// timestamps at fixed offsets from the end, so LastUsedAt is spliced in place.
const establishScript = `
local function read_be64(s, i)
  local b1 = string.byte(s, i)
  local b2 = string.byte(s, i + 1)
  local b3 = string.byte(s, i + 2)
  local b4 = string.byte(s, i + 3)
  local b5 = string.byte(s, i + 4)
  local b6 = string.byte(s, i + 5)
  local b7 = string.byte(s, i + 6)
  local b8 = string.byte(s, i + 7)
  if not b8 then
    return nil
  end
  return ((((((((b1 * 256) + b2) * 256 + b3) * 256 + b4) * 256 + b5) * 256 + b6) * 256 + b7) * 256 + b8)
end

local function parse_session(data)
  local version = string.byte(data, 1)
  if version ~= 1 then
    return nil
  end

  local idx = 2
  local user_len = string.byte(data, idx)
  if not user_len then
    return nil
  end
  idx = idx + 1
  if #data < idx + user_len - 1 then
    return nil
  end
  local user_id = string.sub(data, idx, idx + user_len - 1)
  idx = idx + user_len

  local tenant_len = string.byte(data, idx)
  if not tenant_len then
    return nil
  end
  idx = idx + 1 + tenant_len

  if #data < idx + 23 then
    return nil
  end

  local expires_at = read_be64(data, #data - 7)
  if not expires_at then
    return nil
  end

  return {
    user_id = user_id,
    expires_at = expires_at
  }
end

local function decrement_count(count_key)
  local count = tonumber(redis.call("GET", count_key) or "0")
  if count > 1 then
    redis.call("DECR", count_key)
  elseif count == 1 then
    redis.call("DEL", count_key)
  end
end

local presented_key = KEYS[1]
local new_key = KEYS[2]
local count_key = KEYS[3]
local presented_id = ARGV[1]
local new_id = ARGV[2]
local user_prefix = ARGV[3]
local new_blob = ARGV[4]
local now_unix = tonumber(ARGV[5])
local ttl_ms = tonumber(ARGV[6])
local policy = ARGV[7]
local user_id = ARGV[8]
local last_used = ARGV[9]

local function create_new()
  redis.call("SET", new_key, new_blob, "PX", ttl_ms)
  redis.call("SADD", user_prefix .. user_id, new_id)
  redis.call("INCR", count_key)
end

local data = nil
if presented_id ~= "" then
  data = redis.call("GET", presented_key)
end

if data then
  local parsed = parse_session(data)
  if parsed and parsed.expires_at > now_unix then
    if parsed.user_id == user_id then
      local ttl = redis.call("PTTL", presented_key)
      if ttl > 0 then
        local prefix = string.sub(data, 1, #data - 16)
        local suffix = string.sub(data, #data - 7)
        local updated = prefix .. last_used .. suffix
        redis.call("SET", presented_key, updated, "PX", ttl)
        return {1, updated}
      end
    else
      if policy == "strict" then
        return {2, parsed.user_id}
      end
      local deleted = redis.call("DEL", presented_key)
      redis.call("SREM", user_prefix .. parsed.user_id, presented_id)
      if deleted == 1 then
        decrement_count(count_key)
      end
      create_new()
      return {3, parsed.user_id}
    end
  end

  local deleted = redis.call("DEL", presented_key)
  if parsed and parsed.user_id then
    redis.call("SREM", user_prefix .. parsed.user_id, presented_id)
  end
  if deleted == 1 then
    decrement_count(count_key)
  end
end

create_new()
return {0}
`

var establishLua = redis.NewScript(establishScript)

// Store is a Redis-backed op-session store that handles persistence,
// expiration, the user index, and the atomic establish protocol.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  redis,
		prefix: prefix,
	}
}

func (s *Store) key(tenantID, sessionID string) string {
	return s.prefix + ":" + normalizeTenantID(tenantID) + ":" + sessionID
}

func (s *Store) userKeyPrefix(tenantID string) string {
	return "osu:" + normalizeTenantID(tenantID) + ":"
}

func (s *Store) userKey(tenantID, userID string) string {
	return s.userKeyPrefix(tenantID) + userID
}

func (s *Store) tenantCountKey(tenantID string) string {
	return "ost:" + normalizeTenantID(tenantID) + ":count"
}

func normalizeTenantID(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}

// Save persists a [Session] to Redis with the given TTL and indexes it under
// its user.
//
//	Performance: 3 Redis commands (SET + SADD + INCR) in one MULTI.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	sessionKey := s.key(sess.TenantID, sess.SessionID)
	userKey := s.userKey(sess.TenantID, sess.UserID)
	countKey := s.tenantCountKey(sess.TenantID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, ttl)
		pipe.SAdd(ctx, userKey, sess.SessionID)
		pipe.Incr(ctx, countKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// GetReadOnly fetches a session without mutating TTL, index, or any Redis state.
func (s *Store) GetReadOnly(ctx context.Context, tenantID, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(tenantID, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID
	if time.Now().Unix() > sess.ExpiresAt {
		return nil, redis.Nil
	}

	return sess, nil
}

// Delete removes a session from Redis, its user-index entry, and decrements
// the tenant session counter. Deleting an absent session is a no-op.
func (s *Store) Delete(ctx context.Context, tenantID, sessionID string) error {
	key := s.key(tenantID, sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return err
	}

	return s.deleteSessionAndIndex(ctx, tenantID, sess.UserID, sessionID)
}

// DeleteAllForUser removes all sessions for a user within a tenant.
//
// ATOMICITY NOTE: This operation is NOT fully atomic. It reads the user's
// session set (SMembers), checks which sessions still exist (pipeline EXISTS),
// then deletes them (TxPipelined DEL). A session created between the read
// and delete phases will not be captured by this call. The stray session
// will expire naturally or be caught by the next DeleteAllForUser call.
func (s *Store) DeleteAllForUser(ctx context.Context, tenantID, userID string) error {
	userKey := s.userKey(tenantID, userID)
	countKey := s.tenantCountKey(tenantID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessionKeys := make([]string, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		sessionKeys = append(sessionKeys, s.key(tenantID, sessionID))
	}

	currentCount, err := s.TenantSessionCount(ctx, tenantID)
	if err != nil {
		return err
	}

	var existing int
	if len(sessionKeys) > 0 {
		pipe := s.redis.Pipeline()
		existsCmds := make([]*redis.IntCmd, len(sessionKeys))
		for i, sessionKey := range sessionKeys {
			existsCmds[i] = pipe.Exists(ctx, sessionKey)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		for _, cmd := range existsCmds {
			v, cmdErr := cmd.Result()
			if cmdErr != nil {
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
			}
			existing += int(v)
		}
	}

	decrement := existing
	if decrement > currentCount {
		decrement = currentCount
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(sessionKeys) > 0 {
			pipe.Del(ctx, sessionKeys...)
		}
		pipe.Del(ctx, userKey)
		if decrement > 0 {
			pipe.DecrBy(ctx, countKey, int64(decrement))
		}
		if decrement == currentCount && currentCount > 0 {
			pipe.Del(ctx, countKey)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// TenantSessionCount returns the tracked tenant-wide session counter.
func (s *Store) TenantSessionCount(ctx context.Context, tenantID string) (int, error) {
	count, err := s.redis.Get(ctx, s.tenantCountKey(tenantID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// ActiveSessionCount returns the number of tracked session IDs for a user in a tenant.
func (s *Store) ActiveSessionCount(ctx context.Context, tenantID, userID string) (int, error) {
	count, err := s.redis.SCard(ctx, s.userKey(tenantID, userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// ActiveSessionIDs returns tracked session IDs for a user in a tenant.
func (s *Store) ActiveSessionIDs(ctx context.Context, tenantID, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(tenantID, userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

// Establish atomically resolves a completed authentication against the
// presented op session via a Lua CAS script: same user reuses the session
// (LastUsedAt refreshed in place), a different user is rejected under
// [SwitchStrict] or replaced under [SwitchAllowed], and no live presented
// session creates a fresh one.
//
//	Performance: 1 Lua EVALSHA (atomic decision).
//	Security: CAS prevents two concurrent completions from double-switching.
func (s *Store) Establish(
	ctx context.Context,
	presentedSessionID string,
	next *Session,
	ttl time.Duration,
	policy SwitchPolicy,
) (*Result, error) {
	blob, err := Encode(next)
	if err != nil {
		return nil, err
	}

	policyArg := "switch"
	if policy == SwitchStrict {
		policyArg = "strict"
	}

	presentedKey := s.key(next.TenantID, presentedSessionID)
	if presentedSessionID == "" {
		presentedKey = s.key(next.TenantID, next.SessionID)
	}

	var lastUsed [8]byte
	binary.BigEndian.PutUint64(lastUsed[:], uint64(next.LastUsedAt))

	result, err := establishLua.Run(
		ctx,
		s.redis,
		[]string{presentedKey, s.key(next.TenantID, next.SessionID), s.tenantCountKey(next.TenantID)},
		presentedSessionID,
		next.SessionID,
		s.userKeyPrefix(next.TenantID),
		blob,
		time.Now().Unix(),
		ttl.Milliseconds(),
		policyArg,
		next.UserID,
		lastUsed[:],
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid establish script response", ErrRedisUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid establish script status", ErrRedisUnavailable)
	}

	switch code {
	case establishStatusCreated:
		return &Result{Action: ActionCreated, Session: next}, nil
	case establishStatusReused:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing reused session payload", ErrRedisUnavailable)
		}
		updated, err := scriptBytes(parts[1])
		if err != nil {
			return nil, err
		}
		sess, decErr := Decode(updated)
		if decErr != nil {
			return nil, decErr
		}
		sess.SessionID = presentedSessionID
		return &Result{Action: ActionReused, Session: sess}, nil
	case establishStatusRejected:
		previous, _ := scriptString(parts)
		return &Result{Action: ActionRejected, PreviousUserID: previous}, ErrDifferentUser
	case establishStatusSwitched:
		previous, _ := scriptString(parts)
		return &Result{Action: ActionSwitched, Session: next, PreviousUserID: previous}, nil
	case establishStatusCorrupt:
		return nil, errors.Join(ErrRedisUnavailable, ErrSessionCorrupt)
	default:
		return nil, fmt.Errorf("%w: unknown establish script status", ErrRedisUnavailable)
	}
}

func scriptBytes(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	default:
		return nil, fmt.Errorf("%w: invalid establish script payload", ErrRedisUnavailable)
	}
}

func scriptString(parts []interface{}) (string, bool) {
	if len(parts) < 2 {
		return "", false
	}
	b, err := scriptBytes(parts[1])
	if err != nil {
		return "", false
	}
	return string(b), true
}

func (s *Store) deleteSessionAndIndex(ctx context.Context, tenantID, userID, sessionID string) error {
	key := s.key(tenantID, sessionID)
	userKey := s.userKey(tenantID, userID)
	countKey := s.tenantCountKey(tenantID)

	_, err := deleteSessionLua.Run(ctx, s.redis, []string{key, userKey, countKey}, sessionID).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}
