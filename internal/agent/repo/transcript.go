package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
	errx "github.com/call-intake-poc-v1/server/internal/core/error"
	logx "github.com/call-intake-poc-v1/server/pkg/logger"
)

type RedisTranscriptRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisTranscriptRepository(rdb redis.Cmdable, ttl time.Duration) *RedisTranscriptRepository {
	return &RedisTranscriptRepository{rdb: rdb, ttl: ttl}
}

func transcriptKey(callID string) string {
	return fmt.Sprintf("call:%s:turns", callID)
}

func (r *RedisTranscriptRepository) AddTurn(ctx context.Context, callID string, message *schema.Message) error {
	b, err := sonic.Marshal(message)
	if err != nil {
		logx.Error().Err(err).Str("call_id", callID).Msg("failed to marshal turn")
		return fmt.Errorf("marshal turn: %w", err)
	}
	key := transcriptKey(callID)

	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push turn to redis")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on transcript key")
		}
	}
	return nil
}

func (r *RedisTranscriptRepository) LoadTranscript(ctx context.Context, callID string) (*model.CallTranscript, error) {
	key := transcriptKey(callID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &model.CallTranscript{CallID: callID, Messages: []*schema.Message{}}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load transcript from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]*schema.Message, 0, len(rows))
	for i, s := range rows {
		var m schema.Message
		if err := sonic.UnmarshalString(s, &m); err != nil {
			logx.Error().Err(err).Str("call_id", callID).Int("index", i).Msg("failed to unmarshal turn")
			return nil, fmt.Errorf("unmarshal turn at index %d: %w", i, err)
		}
		msgs = append(msgs, &m)
	}
	return &model.CallTranscript{CallID: callID, Messages: msgs}, nil
}

// DeleteTranscript drops a call's turns.
func (r *RedisTranscriptRepository) DeleteTranscript(ctx context.Context, callID string) error {
	key := transcriptKey(callID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete transcript from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.TranscriptRepository = (*RedisTranscriptRepository)(nil)
