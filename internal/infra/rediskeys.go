package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "tonebridge"
)

// Ключи данных (shared dedup store)
const (
	// RedisKeyDedupPrefix — префикс ключей кэша: tonebridge:dedup:<user>:<hash>:<seq>
	RedisKeyDedupPrefix = RedisNamespace + ":dedup:"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanDedupFlush — широковещательный сигнал сброса кэша.
	// Публикуется оператором после редеплоя модели, когда закэшированные
	// анализы становятся устаревшими.
	RedisChanDedupFlush = RedisNamespace + ":dedup:flush-signal"
)
