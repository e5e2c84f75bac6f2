package dedup

import (
	"context"
	"encoding/json"
	"fmt"
)

// Entry — закэшированный результат успешного анализа.
type Entry struct {
	Result   json.RawMessage `json:"result"`
	StoredAt int64           `json:"stored_at_epoch_ms"`
}

// Store — контракт дедупликационного кэша. Две реализации:
// MemoryStore (per-instance, best-effort) и RedisStore (shared, тоже
// best-effort — задокументированный trade-off, а не гарантия корректности).
// Кэшируются только успешные исходы: транзиентный сбой бэкенда не должен
// отравлять последующие идентичные запросы.
type Store interface {
	// Get возвращает запись, если она моложе TTL
	Get(ctx context.Context, key string) (*Entry, bool)
	// Put сохраняет результат под композитным ключом
	Put(ctx context.Context, key string, result json.RawMessage)
	// PurgeExpired вызывается в начале каждого запроса до lookup'а
	PurgeExpired(ctx context.Context)
	// Flush полностью очищает кэш (сигнал после редеплоя модели)
	Flush(ctx context.Context)
}

// BuildKey собирает композитный ключ (user, content hash, sequence).
// Два запроса с одинаковым ключом — одна и та же логическая операция:
// вторая отвечается из кэша без повторного вызова бэкенда.
func BuildKey(userID, contentHash string, clientSeq int64) string {
	return fmt.Sprintf("%s:%s:%d", userID, contentHash, clientSeq)
}
