package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/tonebridge-edge/internal/audit"
	"github.com/xela07ax/tonebridge-edge/internal/bridge"
	"github.com/xela07ax/tonebridge-edge/internal/cors"
	"github.com/xela07ax/tonebridge-edge/internal/dedup"
	"github.com/xela07ax/tonebridge-edge/internal/domain"
	"github.com/xela07ax/tonebridge-edge/internal/infra"
)

// SHA-256 от "hello", lowercase hex
const helloSHA256 = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

type countingAnalyzer struct {
	mu     sync.Mutex
	calls  int
	result *domain.AnalyzeResult
	err    error
	delay  time.Duration
}

func (a *countingAnalyzer) Analyze(ctx context.Context, _ *domain.ToneRequest) (*domain.AnalyzeResult, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()

	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return a.result, a.err
}

func (a *countingAnalyzer) Ping(context.Context) error { return nil }

func (a *countingAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type nopRecorder struct{}

func (nopRecorder) Record(audit.RequestEvent) {}

type testEnv struct {
	handler  http.Handler
	analyzer *countingAnalyzer
}

func newTestEnv(t *testing.T, opts ...func(*testEnv) (timeout time.Duration, maxBytes int)) *testEnv {
	t.Helper()
	env := &testEnv{
		analyzer: &countingAnalyzer{
			result: &domain.AnalyzeResult{Success: true, Data: map[string]interface{}{"tone": "neutral"}},
		},
	}

	timeout := time.Second
	maxBytes := 10 << 20
	for _, opt := range opts {
		timeout, maxBytes = opt(env)
	}

	policy := cors.NewPolicy(infra.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-User-Id"},
	}, infra.EnvTest)

	core := NewCore(
		dedup.NewMemoryStore(5*time.Minute),
		bridge.New(env.analyzer, timeout, zap.NewNop()),
		nopRecorder{},
		NewMetrics(nil),
		zap.NewNop(),
		maxBytes,
	)
	env.handler = core.Routes(policy)
	return env
}

func (e *testEnv) post(body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/tone", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestToneSuccessThenCachedReplay(t *testing.T) {
	env := newTestEnv(t)
	body := `{"text":"hello","text_sha256":"` + helloSHA256 + `"}`

	// Первый запрос: 200, результат бэкенда как есть
	rec := env.post(body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	first := decodeBody(t, rec)
	assert.Equal(t, "neutral", first["tone"])
	_, hasCached := first["cached"]
	assert.False(t, hasCached)
	assert.Equal(t, 1, env.analyzer.callCount())

	// Идентичный повтор внутри TTL: 208 из кэша, бэкенд не трогаем
	rec = env.post(body, nil)
	assert.Equal(t, http.StatusAlreadyReported, rec.Code)
	second := decodeBody(t, rec)
	assert.Equal(t, "neutral", second["tone"])
	assert.Equal(t, true, second["cached"])
	assert.NotEmpty(t, second["cache_hit_timestamp"])
	assert.Equal(t, 1, env.analyzer.callCount(), "replay must not invoke the backend")
}

func TestToneDedupKeyComponents(t *testing.T) {
	env := newTestEnv(t)

	env.post(`{"text":"hello","client_seq":1}`, nil)
	assert.Equal(t, 1, env.analyzer.callCount())

	// Другой client_seq — другая логическая операция
	env.post(`{"text":"hello","client_seq":2}`, nil)
	assert.Equal(t, 2, env.analyzer.callCount())

	// Другой пользователь (через заголовок) — тоже
	env.post(`{"text":"hello","client_seq":1}`, map[string]string{"X-User-Id": "u2"})
	assert.Equal(t, 3, env.analyzer.callCount())

	// Полное совпадение (user, hash, seq) — из кэша
	env.post(`{"text":"hello","client_seq":1}`, nil)
	assert.Equal(t, 3, env.analyzer.callCount())
}

func TestToneIntegrityMismatchRejectedBeforeUpstream(t *testing.T) {
	env := newTestEnv(t)

	rec := env.post(`{"text":"hello","text_sha256":"deadbeef"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "integrity mismatch")
	assert.Equal(t, "v1", body["contract_version"])
	assert.Equal(t, 0, env.analyzer.callCount(), "integrity failures must never reach the backend")
}

func TestToneValidation(t *testing.T) {
	env := newTestEnv(t)

	// Отсутствующий text
	rec := env.post(`{"context":"conflict"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "v1", body["contract_version"])

	// Битый JSON
	rec = env.post(`{"text": `, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 0, env.analyzer.callCount())
}

func TestToneMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/tone", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Method not allowed", body["error"])
}

func TestTonePreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/tone", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, cors.VaryValue, rec.Header().Get("Vary"))
	assert.Equal(t, 0, env.analyzer.callCount())
}

func TestToneUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.analyzer.result = &domain.AnalyzeResult{Success: false, Error: "model exploded"}

	rec := env.post(`{"text":"hello"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Tone analysis failed", body["error"])
	assert.Equal(t, "model exploded", body["details"])

	// Неуспех не кэшируется: повтор снова идет в бэкенд
	env.post(`{"text":"hello"}`, nil)
	assert.Equal(t, 2, env.analyzer.callCount())
}

func TestToneTimeout(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) (time.Duration, int) {
		e.analyzer = &countingAnalyzer{
			delay:  5 * time.Second,
			result: &domain.AnalyzeResult{Success: true},
		}
		return 50 * time.Millisecond, 10 << 20
	})

	rec := env.post(`{"text":"hello"}`, nil)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Request timeout", body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestToneResponseTooLarge(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) (time.Duration, int) {
		return time.Second, 8 // потолок в 8 байт — любой ответ превысит
	})

	rec := env.post(`{"text":"hello"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Response too large", body["error"])

	// Негабарит не кэшируется
	env.post(`{"text":"hello"}`, nil)
	assert.Equal(t, 2, env.analyzer.callCount())
}

func TestResponseHeaders(t *testing.T) {
	env := newTestEnv(t)

	rec := env.post(`{"text":"hello"}`, map[string]string{"X-Request-Id": "client-supplied-id"})

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "1; mode=block", rec.Header().Get("X-XSS-Protection"))
	// Входящий корреляционный ID зеркалится
	assert.Equal(t, "client-supplied-id", rec.Header().Get("X-Request-Id"))

	// Без входящего — генерируется новый
	rec = env.post(`{"text":"hi"}`, nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "v1", body["contract_version"])
}
