package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
)

// RedisBackend keeps each session in three keys: a hash of values, a sorted
// set of write times and a list of task records (newest at the head).
type RedisBackend struct {
	client *redis.Client
	prefix string
	log    *zap.Logger
}

var _ Backend = (*RedisBackend)(nil)

// NewRedis wraps a client and verifies the connection.
func NewRedis(ctx context.Context, client *redis.Client, prefix string, logger *zap.Logger) (*RedisBackend, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	if prefix == "" {
		prefix = "rabbit"
	}
	return &RedisBackend{client: client, prefix: prefix, log: logger.Named("store.redis")}, nil
}

func (r *RedisBackend) valuesKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:values", r.prefix, sessionID)
}

func (r *RedisBackend) timesKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:updated", r.prefix, sessionID)
}

func (r *RedisBackend) tasksKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:tasks", r.prefix, sessionID)
}

func (r *RedisBackend) Put(ctx context.Context, rec Record) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.valuesKey(rec.SessionID), rec.Key, rec.Value)
		pipe.ZAdd(ctx, r.timesKey(rec.SessionID), redis.Z{Score: toScore(rec.UpdatedAt), Member: rec.Key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write redis entry: %w", err)
	}
	return nil
}

func (r *RedisBackend) Get(ctx context.Context, sessionID, key string) (Record, bool, error) {
	var valueCmd *redis.StringCmd
	var scoreCmd *redis.FloatCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		valueCmd = pipe.HGet(ctx, r.valuesKey(sessionID), key)
		scoreCmd = pipe.ZScore(ctx, r.timesKey(sessionID), key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Record{}, false, fmt.Errorf("failed to read redis entry: %w", err)
	}

	value, err := valueCmd.Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read redis entry: %w", err)
	}
	score, _ := scoreCmd.Result()
	return Record{SessionID: sessionID, Key: key, Value: value, UpdatedAt: fromScore(score)}, true, nil
}

// Scores are microseconds since the epoch; a float64 holds them exactly.
func toScore(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func fromScore(score float64) time.Time {
	return time.UnixMicro(int64(score)).UTC()
}

func (r *RedisBackend) List(ctx context.Context, sessionID string) ([]Record, error) {
	members, err := r.client.ZRevRangeWithScores(ctx, r.timesKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list redis entries: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = fmt.Sprint(m.Member)
	}
	values, err := r.client.HMGet(ctx, r.valuesKey(sessionID), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read redis values: %w", err)
	}

	out := make([]Record, 0, len(keys))
	for i, key := range keys {
		value, ok := values[i].(string)
		if !ok {
			r.log.Warn("Timestamp without value, skipping.", zap.String("session_id", sessionID), zap.String("key", key))
			continue
		}
		out = append(out, Record{SessionID: sessionID, Key: key, Value: value, UpdatedAt: fromScore(members[i].Score)})
	}
	return out, nil
}

func (r *RedisBackend) Delete(ctx context.Context, sessionID, key string) error {
	var removed *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, r.valuesKey(sessionID), key)
		pipe.ZRem(ctx, r.timesKey(sessionID), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete redis entry: %w", err)
	}
	if removed.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisBackend) AppendTask(ctx context.Context, rec schemas.TaskRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode task record: %w", err)
	}
	if err := r.client.LPush(ctx, r.tasksKey(rec.SessionID), body).Err(); err != nil {
		return fmt.Errorf("failed to push task record: %w", err)
	}
	return nil
}

func (r *RedisBackend) Tasks(ctx context.Context, sessionID string, limit int) ([]schemas.TaskRecord, error) {
	items, err := r.client.LRange(ctx, r.tasksKey(sessionID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task records: %w", err)
	}
	out := make([]schemas.TaskRecord, 0, len(items))
	for _, item := range items {
		var rec schemas.TaskRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode task record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
