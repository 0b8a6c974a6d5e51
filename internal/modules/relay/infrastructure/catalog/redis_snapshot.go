package catalog

import (
	"context"
	"errors"

	"ChatRelay/pkg/redis"
)

const snapshotKey = "chatrelay:models"

// RedisSnapshot 把最近一次成功拉取的模型列表存入 Redis（不过期）
type RedisSnapshot struct {
	key string
}

func NewRedisSnapshot(appName string) *RedisSnapshot {
	key := snapshotKey
	if appName != "" {
		key = appName + ":models"
	}
	return &RedisSnapshot{key: key}
}

func (s *RedisSnapshot) Load(ctx context.Context) ([]string, error) {
	if !redis.IsConnected() {
		return nil, errors.New("redis not connected")
	}
	var models []string
	found, err := redis.GetJSON(ctx, s.key, &models)
	if err != nil || !found {
		return nil, err
	}
	return models, nil
}

func (s *RedisSnapshot) Save(ctx context.Context, models []string) error {
	if !redis.IsConnected() {
		return nil
	}
	return redis.SetJSON(ctx, s.key, models, 0)
}
