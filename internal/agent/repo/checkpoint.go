package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agri-chat-core/server/internal/agent/model"
	errx "github.com/agri-chat-core/server/internal/core/error"
	logx "github.com/agri-chat-core/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type RedisCheckpointStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisCheckpointStore(rdb redis.Cmdable, ttl time.Duration) *RedisCheckpointStore {
	return &RedisCheckpointStore{rdb: rdb, ttl: ttl}
}

func (r *RedisCheckpointStore) checkpointKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:checkpoint", conversationID)
}

func (r *RedisCheckpointStore) Load(ctx context.Context, conversationID string) (*model.TurnState, bool, error) {
	key := r.checkpointKey(conversationID)

	b, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load checkpoint from redis")
		return nil, false, errx.WrapRedis(err)
	}

	var state model.TurnState
	if err := json.Unmarshal(b, &state); err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to unmarshal checkpoint")
		return nil, false, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &state, true, nil
}

func (r *RedisCheckpointStore) Save(ctx context.Context, state *model.TurnState) error {
	if state == nil || state.ConversationID == "" {
		return fmt.Errorf("checkpoint requires a conversation id")
	}
	b, err := json.Marshal(state)
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", state.ConversationID).Msg("failed to marshal checkpoint")
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	key := r.checkpointKey(state.ConversationID)

	// TTL 0 keeps the key forever; every save refreshes it otherwise.
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save checkpoint to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisCheckpointStore) Delete(ctx context.Context, conversationID string) error {
	key := r.checkpointKey(conversationID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete checkpoint from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.CheckpointStore = (*RedisCheckpointStore)(nil)
