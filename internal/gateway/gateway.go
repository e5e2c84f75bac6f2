package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/tonebridge-edge/internal/audit"
	"github.com/xela07ax/tonebridge-edge/internal/bridge"
	"github.com/xela07ax/tonebridge-edge/internal/cors"
	"github.com/xela07ax/tonebridge-edge/internal/dedup"
	"github.com/xela07ax/tonebridge-edge/internal/domain"
	"github.com/xela07ax/tonebridge-edge/internal/envelope"
	"github.com/xela07ax/tonebridge-edge/internal/integrity"
)

// Core — оркестратор запроса: CORS → метод → форма тела → целостность →
// кэш → бридж → кэширование → ответ. Каждый путь пишет ответ ровно один раз.
type Core struct {
	cache   dedup.Store
	bridge  *bridge.Bridge
	trail   audit.Recorder
	metrics *Metrics
	logger  *zap.Logger

	maxResponseBytes int
}

func NewCore(cache dedup.Store, br *bridge.Bridge, trail audit.Recorder, metrics *Metrics, logger *zap.Logger, maxResponseBytes int) *Core {
	return &Core{
		cache:            cache,
		bridge:           br,
		trail:            trail,
		metrics:          metrics,
		logger:           logger.Named("gateway"),
		maxResponseBytes: maxResponseBytes,
	}
}

// Routes собирает роутер шлюза. Порядок middleware важен:
// RequestID → Security → CORS (терминирует preflight).
func (c *Core) Routes(policy *cors.Policy) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(SecurityHeadersMiddleware)
	r.Use(CORSMiddleware(policy))

	// Метод проверяется внутри обработчика: контракт требует собственное
	// тело 405, а не дефолтное chi
	r.HandleFunc("/v1/tone", c.HandleTone)
	r.Get("/health", c.HandleHealth)

	return r
}

// legacyError — формат 500/504, сохраненный для обратной совместимости
// со старыми клиентами (осознанное отступление от общего конверта).
type legacyError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HandleTone реализует POST /v1/tone.
func (c *Core) HandleTone(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	requestID := RequestIDFrom(ctx)
	log := c.logger.With(zap.String("request_id", requestID))

	c.metrics.TotalRequests.WithLabelValues("tone").Inc()

	ev := audit.RequestEvent{
		ID:        uuid.New().String(),
		RequestID: requestID,
	}
	defer func() {
		ev.DurationMs = time.Since(start).Milliseconds()
		c.trail.Record(ev)
		c.metrics.RequestDuration.
			WithLabelValues("tone", strconv.Itoa(ev.HTTPCode)).
			Observe(time.Since(start).Seconds())
	}()

	// 1. Метод
	if r.Method != http.MethodPost {
		c.metrics.ErrorTotal.WithLabelValues("method").Inc()
		ev.Status, ev.HTTPCode = audit.StatusRejected, http.StatusMethodNotAllowed
		c.writeJSON(w, http.StatusMethodNotAllowed,
			envelope.Build(http.StatusMethodNotAllowed, requestID, nil, "Method not allowed"))
		return
	}

	// 2. Форма тела
	var req domain.ToneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.respondOutcome(w, &ev, requestID, log,
			bridge.ValidationError("body", "invalid JSON body"))
		return
	}
	if req.Text == "" {
		c.respondOutcome(w, &ev, requestID, log,
			bridge.ValidationError("text", "text is required"))
		return
	}

	req.UserID = req.ResolveUserID(r.Header.Get("X-User-Id"))
	contentHash := integrity.HashText(req.Text)
	ev.UserID = req.UserID
	ev.ContentHash = contentHash
	ev.ClientSeq = req.ClientSeq

	// 3. Целостность — ДО кэша и бэкенда. Подмененный хэш отклоняется,
	// даже если для ключа есть закэшированный ответ.
	if !integrity.Validate(req.Text, req.TextSHA256) {
		c.respondOutcome(w, &ev, requestID, log, bridge.IntegrityMismatch())
		return
	}

	// 4. Дедуп: ленивый sweep, затем lookup
	c.cache.PurgeExpired(ctx)
	key := dedup.BuildKey(req.UserID, contentHash, req.ClientSeq)

	if entry, ok := c.cache.Get(ctx, key); ok {
		c.metrics.CacheHits.Inc()

		// 208: клиент отличает реплей от свежего вычисления
		body := map[string]interface{}{}
		if err := json.Unmarshal(entry.Result, &body); err != nil {
			log.Error("corrupt cache entry on hit", zap.String("key", key), zap.Error(err))
		}
		body["cached"] = true
		body["cache_hit_timestamp"] = time.Now().UTC().Format(time.RFC3339)

		ev.Status, ev.HTTPCode, ev.Cached = audit.StatusCached, http.StatusAlreadyReported, true
		log.Info("served from dedup cache", zap.String("key", key))
		c.writeJSON(w, http.StatusAlreadyReported, body)
		return
	}
	c.metrics.CacheMisses.Inc()

	// 5. Бридж (одна попытка, гонка с дедлайном)
	outcome := c.bridge.Invoke(ctx, &req)
	if outcome.Kind != bridge.KindSuccess {
		c.respondOutcome(w, &ev, requestID, log, outcome)
		return
	}

	// 6. Size guard до кэширования и передачи: слишком большой результат
	// нельзя ни отдать, ни запомнить для реплея
	raw, err := envelope.EncodeGuarded(outcome.Data, c.maxResponseBytes)
	if err != nil {
		if errors.Is(err, envelope.ErrTooLarge) {
			c.metrics.ErrorTotal.WithLabelValues("too_large").Inc()
		}
		log.Error("response rejected before transmission", zap.Error(err))
		ev.Status, ev.HTTPCode = audit.StatusUpstreamError, http.StatusInternalServerError
		ev.Error = "response too large"
		c.writeJSON(w, http.StatusInternalServerError,
			legacyError{Error: "Response too large", Details: "analysis result exceeded the response size limit"})
		return
	}

	// 7. Кэшируем только успешный исход: транзиентный сбой не должен
	// отравлять повторные идентичные запросы
	c.cache.Put(ctx, key, raw)
	c.observeCacheSize()

	// 8. 200: результат бэкенда проксируется как есть (legacy-контракт)
	ev.Status, ev.HTTPCode = audit.StatusSuccess, http.StatusOK
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// respondOutcome переводит не-успешный исход в HTTP-ответ и запись трейла.
func (c *Core) respondOutcome(w http.ResponseWriter, ev *audit.RequestEvent, requestID string, log *zap.Logger, out bridge.Outcome) {
	switch out.Kind {
	case bridge.KindValidationError:
		c.metrics.ErrorTotal.WithLabelValues("validation").Inc()
		ev.Status, ev.HTTPCode, ev.Error = audit.StatusRejected, http.StatusBadRequest, out.Err
		log.Warn("request rejected", zap.String("field", out.Field), zap.String("reason", out.Err))
		c.writeJSON(w, http.StatusBadRequest,
			envelope.Build(http.StatusBadRequest, requestID, nil, out.Err))

	case bridge.KindIntegrityMismatch:
		c.metrics.ErrorTotal.WithLabelValues("integrity").Inc()
		ev.Status, ev.HTTPCode, ev.Error = audit.StatusRejected, http.StatusBadRequest, out.Err
		log.Warn("integrity mismatch, request rejected before upstream")
		c.writeJSON(w, http.StatusBadRequest,
			envelope.Build(http.StatusBadRequest, requestID, nil, "integrity mismatch: "+out.Err))

	case bridge.KindTimeout:
		c.metrics.ErrorTotal.WithLabelValues("timeout").Inc()
		ev.Status, ev.HTTPCode, ev.Error = audit.StatusTimeout, http.StatusGatewayTimeout, out.Err
		// 504 — исход апстрима НЕизвестен: вызов мог довершиться на той стороне
		c.writeJSON(w, http.StatusGatewayTimeout,
			legacyError{Error: "Request timeout", Details: out.Err})

	default: // bridge.KindUpstreamError
		c.metrics.ErrorTotal.WithLabelValues("upstream").Inc()
		ev.Status, ev.HTTPCode, ev.Error = audit.StatusUpstreamError, http.StatusInternalServerError, out.Err
		c.writeJSON(w, http.StatusInternalServerError,
			legacyError{Error: "Tone analysis failed", Details: out.Err})
	}
}

// HandleHealth — liveness для мониторинга.
func (c *Core) HandleHealth(w http.ResponseWriter, r *http.Request) {
	c.writeJSON(w, http.StatusOK,
		envelope.Build(http.StatusOK, RequestIDFrom(r.Context()), map[string]string{"status": "ok"}, ""))
}

func (c *Core) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Error("response encoding failed", zap.Error(err))
	}
}

type sizer interface{ Len() int }

func (c *Core) observeCacheSize() {
	if s, ok := c.cache.(sizer); ok {
		c.metrics.CacheSize.Set(float64(s.Len()))
	}
}
