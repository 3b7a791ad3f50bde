// Package redis provides the Redis-backed queue repository used in
// production deployments. Messages are stored as JSON values under a key
// prefix with a set index of live ids.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix   = "flowmesh:queue:"
	indexKey    = "flowmesh:queue:ids"
	pingTimeout = 5 * time.Second
)

// QueueRepository implements persistence.QueueRepository on Redis.
type QueueRepository struct {
	client *redis.Client
	logger *slog.Logger
}

// NewQueueRepository connects to Redis and verifies the connection.
func NewQueueRepository(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*QueueRepository, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "db", db)

	return &QueueRepository{
		client: client,
		logger: logger.With("module", "redis_queue"),
	}, nil
}

// SaveMessage upserts a message document and indexes its id.
func (r *QueueRepository) SaveMessage(ctx context.Context, message *models.QueuedMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return &persistence.MessageError{Op: "SaveMessage", MessageID: message.ID, Err: err}
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, keyPrefix+message.ID, data, 0)
	pipe.SAdd(ctx, indexKey, message.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return &persistence.MessageError{Op: "SaveMessage", MessageID: message.ID, Err: err}
	}

	return nil
}

// DeleteMessage removes a message document and its index entry.
func (r *QueueRepository) DeleteMessage(ctx context.Context, id string) error {
	deleted, err := r.client.Del(ctx, keyPrefix+id).Result()
	if err != nil {
		return &persistence.MessageError{Op: "DeleteMessage", MessageID: id, Err: err}
	}

	if err := r.client.SRem(ctx, indexKey, id).Err(); err != nil {
		return &persistence.MessageError{Op: "DeleteMessage", MessageID: id, Err: err}
	}

	if deleted == 0 {
		return &persistence.MessageError{Op: "DeleteMessage", MessageID: id, Err: persistence.ErrMessageNotFound}
	}

	return nil
}

// Messages loads every indexed message. Stale index entries whose documents
// expired are skipped and cleaned up.
func (r *QueueRepository) Messages(ctx context.Context) ([]*models.QueuedMessage, error) {
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list queued message ids: %w", err)
	}

	messages := make([]*models.QueuedMessage, 0, len(ids))

	for _, id := range ids {
		data, err := r.client.Get(ctx, keyPrefix+id).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if err := r.client.SRem(ctx, indexKey, id).Err(); err != nil {
					r.logger.WarnContext(ctx, "Failed to drop stale queue index entry", "message_id", id, "error", err)
				}

				continue
			}

			return nil, fmt.Errorf("failed to load queued message %s: %w", id, err)
		}

		var message models.QueuedMessage
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, fmt.Errorf("failed to decode queued message %s: %w", id, err)
		}

		messages = append(messages, &message)
	}

	return messages, nil
}

// HealthCheck pings the Redis server.
func (r *QueueRepository) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *QueueRepository) Close(_ context.Context) error {
	return r.client.Close()
}

var _ persistence.QueueRepository = (*QueueRepository)(nil)
