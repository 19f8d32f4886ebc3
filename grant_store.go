package idp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const grantKeyPrefix = "agr"

// grantStore persists AuthorizationGranted facts as per-(tenant, user, client)
// scope sets. A grant covering the requested scopes is what allows a later
// prompt=none request to skip consent.
type grantStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func newGrantStore(redisClient *redis.Client, ttl time.Duration) *grantStore {
	return &grantStore{
		redis: redisClient,
		ttl:   ttl,
	}
}

func (g *grantStore) key(tenantID, userID, clientID string) string {
	return grantKeyPrefix + ":" + tenantID + ":" + userID + ":" + clientID
}

// Record merges the granted scopes into the existing grant and refreshes its
// TTL. Scopes accumulate across authorizations so an earlier broad grant is
// never narrowed by a later minimal one.
func (g *grantStore) Record(ctx context.Context, tenantID, userID, clientID string, scopes []string) error {
	key := g.key(tenantID, userID, clientID)

	members := make([]interface{}, 0, len(scopes))
	for _, scope := range scopes {
		if scope == "" {
			continue
		}
		members = append(members, scope)
	}

	_, err := g.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(members) > 0 {
			pipe.SAdd(ctx, key, members...)
		} else {
			// A scopeless grant still records that the user authorized the client.
			pipe.SAdd(ctx, key, "")
		}
		pipe.Expire(ctx, key, g.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// Covers reports whether an existing grant includes every requested scope.
// No grant at all reports false with a nil error.
func (g *grantStore) Covers(ctx context.Context, tenantID, userID, clientID string, requested []string) (bool, error) {
	granted, err := g.redis.SMembers(ctx, g.key(tenantID, userID, clientID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(granted) == 0 {
		return false, nil
	}

	grantedSet := make(map[string]struct{}, len(granted))
	for _, scope := range granted {
		grantedSet[scope] = struct{}{}
	}

	for _, scope := range requested {
		if scope == "" {
			continue
		}
		if _, ok := grantedSet[scope]; !ok {
			return false, nil
		}
	}

	return true, nil
}

// Revoke removes the grant for a (tenant, user, client). Revoking an absent
// grant is a no-op.
func (g *grantStore) Revoke(ctx context.Context, tenantID, userID, clientID string) error {
	if err := g.redis.Del(ctx, g.key(tenantID, userID, clientID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
