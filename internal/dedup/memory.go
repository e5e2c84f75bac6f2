package dedup

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore реализует Store потокобезопасной мапой в памяти процесса.
// Живет ровно столько, сколько живет инстанс: при рестарте кэш пустой,
// и это приемлемо — записи сами протухают за TTL.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration

	// подменяется в тестах для проверки протухания
	now func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	// Запись видна только пока моложе TTL, даже если sweep её еще не снес
	if s.expired(e) {
		return nil, false
	}
	return &e, true
}

func (s *MemoryStore) Put(_ context.Context, key string, result json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = Entry{
		Result:   result,
		StoredAt: s.now().UnixMilli(),
	}
}

// PurgeExpired — ленивый O(n) sweep. Линейный проход допустим: n ограничен
// трафиком одного инстанса, записи живут пять минут.
func (s *MemoryStore) PurgeExpired(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, key)
		}
	}
}

func (s *MemoryStore) Flush(_ context.Context) {
	s.mu.Lock()
	s.entries = make(map[string]Entry)
	s.mu.Unlock()
}

// Len используется метриками (gauge заполненности кэша)
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) expired(e Entry) bool {
	age := s.now().UnixMilli() - e.StoredAt
	return age >= s.ttl.Milliseconds()
}
