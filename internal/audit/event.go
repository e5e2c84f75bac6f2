package audit

import "time"

// RequestEvent — метаданные исхода одного запроса для трейла.
// Намеренно НЕ содержит ни текста, ни результата анализа: трейл — это
// телеметрия исходов, а не персистентность запросов.
type RequestEvent struct {
	ID          string `json:"id"`           // UUID события
	RequestID   string `json:"request_id"`   // Сквозной корреляционный ID
	UserID      string `json:"user_id"`      // Кто спрашивал
	ContentHash string `json:"content_hash"` // SHA-256 текста (сам текст не пишем)
	ClientSeq   int64  `json:"client_seq"`

	// Результат
	Status     string    `json:"status"` // "SUCCESS", "CACHED", "REJECTED", "UPSTREAM_ERROR", "TIMEOUT"
	HTTPCode   int       `json:"http_code"`
	Cached     bool      `json:"cached"`
	Error      string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
}

// Статусы трейла
const (
	StatusSuccess       = "SUCCESS"
	StatusCached        = "CACHED"
	StatusRejected      = "REJECTED"
	StatusUpstreamError = "UPSTREAM_ERROR"
	StatusTimeout       = "TIMEOUT"
)
