package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const transactionKeyPrefix = "atx"

var (
	// ErrNotFound is returned when no transaction record exists for the ID.
	ErrNotFound = errors.New("transaction not found")
	// ErrExpired is returned when the transaction's lifetime has elapsed.
	ErrExpired = errors.New("transaction expired")
	// ErrRedisUnavailable is an exported constant or variable used by the authentication engine.
	ErrRedisUnavailable = errors.New("transaction redis unavailable")
)

// Store persists transactions as JSON records keyed by transaction ID. All
// mutations go through [Store.Update], a WATCH-based compare-and-swap, so two
// concurrent interactions against the same transaction serialize: one commits,
// the other re-reads and replays its mutation.
type Store struct {
	redis  *redis.Client
	prefix string
}

// NewStore creates a transaction [Store] backed by the given Redis client.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{
		redis:  redisClient,
		prefix: transactionKeyPrefix,
	}
}

func (s *Store) key(id string) string {
	return s.prefix + ":" + id
}

// Create persists a new transaction with a TTL derived from its ExpiresAt.
func (s *Store) Create(ctx context.Context, tx *Transaction) error {
	ttl := time.Until(time.Unix(tx.ExpiresAt, 0))
	if ttl <= 0 {
		return ErrExpired
	}

	encoded, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(tx.ID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get fetches a transaction by ID. A record whose lifetime elapsed before the
// Redis TTL fired is reported as [ErrExpired].
func (s *Store) Get(ctx context.Context, id string) (*Transaction, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	tx := &Transaction{}
	if err := json.Unmarshal(data, tx); err != nil {
		return nil, err
	}

	if tx.ExpiredAt(time.Now()) {
		return nil, ErrExpired
	}

	return tx, nil
}

// Update applies fn to the current transaction record under a WATCH-based
// compare-and-swap and persists the result with the remaining TTL. fn runs
// against a fresh read on every CAS attempt, so it must be a pure function of
// the record it receives. An error returned by fn aborts the update without
// writing.
func (s *Store) Update(ctx context.Context, id string, fn func(*Transaction) error) (*Transaction, error) {
	const maxRetries = 4
	key := s.key(id)

	for i := 0; i < maxRetries; i++ {
		var updated *Transaction

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record := &Transaction{}
			if err := json.Unmarshal(data, record); err != nil {
				return err
			}

			now := time.Now()
			if record.ExpiredAt(now) {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrExpired
			}

			if err := fn(record); err != nil {
				return err
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrExpired
			}

			encoded, err := json.Marshal(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			updated = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrNotFound
			case errors.Is(err, ErrExpired):
				return nil, ErrExpired
			default:
				return nil, err
			}
		}

		return updated, nil
	}

	return nil, fmt.Errorf("%w: compare-and-swap retries exhausted", ErrRedisUnavailable)
}

// Delete removes a transaction record. Deleting an absent record is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
