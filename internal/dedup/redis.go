package dedup

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/tonebridge-edge/internal/infra"
)

// RedisStore — опциональная shared-реализация Store для деплоев, которым
// нужен кросс-инстансовый дедуп. Семантика остается best-effort: сетевая
// ошибка Redis трактуется как cache miss, запрос уходит в бэкенд.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.Named("dedup-redis"),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, bool) {
	raw, err := s.rdb.Get(ctx, infra.RedisKeyDedupPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// Деградация в miss: дедуп не является гарантией корректности
			s.logger.Warn("redis get failed, treating as miss", zap.Error(err))
		}
		return nil, false
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		s.logger.Warn("corrupt cache entry, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &e, true
}

func (s *RedisStore) Put(ctx context.Context, key string, result json.RawMessage) {
	e := Entry{
		Result:   result,
		StoredAt: time.Now().UnixMilli(),
	}
	raw, _ := json.Marshal(e)

	// TTL отдаем самому Redis — записи самоуничтожаются без sweep'а
	if err := s.rdb.Set(ctx, infra.RedisKeyDedupPrefix+key, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("redis put failed, entry not cached", zap.Error(err))
	}
}

// PurgeExpired — no-op: протухание делает Redis через EXPIRE.
func (s *RedisStore) PurgeExpired(_ context.Context) {}

// Flush удаляет все записи неймспейса через SCAN (без KEYS — не блокируем Redis).
func (s *RedisStore) Flush(ctx context.Context) {
	iter := s.rdb.Scan(ctx, 0, infra.RedisKeyDedupPrefix+"*", 100).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			s.logger.Warn("flush: delete failed", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		s.logger.Error("flush scan failed", zap.Error(err))
	}
	s.logger.Info("dedup cache flushed", zap.Int("deleted", deleted))
}
