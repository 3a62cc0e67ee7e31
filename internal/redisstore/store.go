// Package redisstore keeps map knowledge in Redis and relays map updates
// between server instances over Pub/Sub.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/events"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/logger"
)

// Store is a knowledge.Store and events.Publisher backed by Redis.
// All keys and channels are namespaced. It is safe for concurrent use.
type Store struct {
	rdb       *redis.Client
	namespace string
	origin    string
}

// NewStore connects to Redis. The namespace must not be empty.
func NewStore(opts *redis.Options, namespace string) (*Store, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	return &Store{
		rdb:       redis.NewClient(opts),
		namespace: namespace,
		origin:    uuid.NewString(),
	}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Load implements knowledge.Store.
func (s *Store) Load(ctx context.Context, scope knowledge.Scope) (*knowledge.MapKnowledge, int64, error) {
	if err := scope.Validate(); err != nil {
		return nil, 0, err
	}
	vals, err := s.rdb.HMGet(ctx, KnowledgeKey(s.namespace, scope), fieldVersion, fieldBlob).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read knowledge: %w", err)
	}
	version, err := parseVersion(vals[0])
	if err != nil {
		return nil, 0, err
	}
	if version == 0 {
		return knowledge.New(), 0, nil
	}
	blob, _ := vals[1].(string)
	return knowledge.DecodeBlob([]byte(blob)), version, nil
}

func parseVersion(v interface{}) (int64, error) {
	str, ok := v.(string)
	if !ok || str == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt knowledge version %q: %w", str, err)
	}
	return n, nil
}

// Save implements knowledge.Store using WATCH/MULTI so a concurrent writer
// between the version check and the write aborts the transaction.
func (s *Store) Save(ctx context.Context, scope knowledge.Scope, k *knowledge.MapKnowledge, expectedVersion int64) (int64, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	blob, err := knowledge.EncodeBlob(k)
	if err != nil {
		return 0, err
	}
	key := KnowledgeKey(s.namespace, scope)
	next := expectedVersion + 1

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, fieldVersion).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		version, err := parseVersion(cur)
		if err != nil {
			return err
		}
		if version != expectedVersion {
			return knowledge.ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldVersion, next,
				fieldEncoding, knowledge.EncodingZstd,
				fieldBlob, blob,
				fieldUpdated, time.Now().UTC().Format(time.RFC3339Nano),
			)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, knowledge.ErrVersionConflict):
		return 0, fmt.Errorf("%s at version %d: %w", scope, expectedVersion, knowledge.ErrVersionConflict)
	default:
		return 0, fmt.Errorf("failed to write knowledge: %w", err)
	}
}

// envelope tags relayed updates with the publishing instance so Forward can
// skip its own messages.
type envelope struct {
	Origin string           `json:"origin"`
	Update events.MapUpdate `json:"update"`
}

// Publish implements events.Publisher. Failures are logged, not returned:
// the knowledge write has already succeeded.
func (s *Store) Publish(u events.MapUpdate) {
	payload, err := json.Marshal(envelope{Origin: s.origin, Update: u})
	if err != nil {
		logger.Warn("Redis", fmt.Sprintf("marshal map event: %v", err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.rdb.Publish(ctx, MapEventsChannel(s.namespace), payload).Err(); err != nil {
		logger.Warn("Redis", fmt.Sprintf("publish map event: %v", err))
	}
}

// Forward relays map updates published by other instances to dst until ctx
// is cancelled. The returned channel is closed once the subscription is
// confirmed, so callers can wait for it before publishing.
func (s *Store) Forward(ctx context.Context, dst events.Publisher) (<-chan struct{}, <-chan error) {
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	pubsub := s.rdb.Subscribe(ctx, MapEventsChannel(s.namespace))

	go func() {
		defer close(errCh)
		defer pubsub.Close()
		if _, err := pubsub.Receive(ctx); err != nil {
			errCh <- fmt.Errorf("failed to subscribe: %w", err)
			return
		}
		close(ready)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					logger.Warn("Redis", fmt.Sprintf("dropping malformed map event: %v", err))
					continue
				}
				if env.Origin == s.origin {
					continue
				}
				dst.Publish(env.Update)
			}
		}
	}()
	return ready, errCh
}
