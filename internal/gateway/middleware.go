package gateway

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/xela07ax/tonebridge-edge/internal/cors"
)

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const requestIDKey ctxKey = "request_id"

// RequestIDMiddleware присваивает корреляционный ID каждому запросу
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Пытаемся достать ID из заголовка (если пришел от клиента/прокси)
		requestID := r.Header.Get("X-Request-Id")

		// 2. Если его нет — генерируем новый
		if requestID == "" {
			requestID = uuid.New().String()
		}

		// 3. Кладем в контекст
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)

		// 4. Зеркалим в ответ: клиент коррелирует свои логи с серверными,
		// не разбирая тело
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFrom помогает безопасно достать ID в любом месте кода
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return "00000000-0000-0000-0000-000000000000" // Fallback
}

// SecurityHeadersMiddleware ставит фиксированные защитные заголовки на каждый ответ
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware вычисляет и применяет политику на каждый запрос.
// Preflight (OPTIONS) терминируется здесь же: 204 и пустое тело.
func CORSMiddleware(policy *cors.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hs := policy.Evaluate(
				r.Header.Get("Origin"),
				r.Header.Get("Access-Control-Request-Method"),
				r.Header.Get("Access-Control-Request-Headers"),
			)
			hs.Apply(w.Header())

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
