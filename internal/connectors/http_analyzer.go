package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/xela07ax/tonebridge-edge/internal/domain"
)

// analyzeRequest — wire-формат запроса к inference-сервису.
type analyzeRequest struct {
	Text            string `json:"text"`
	Context         string `json:"context,omitempty"`
	AttachmentStyle string `json:"attachment_style,omitempty"`
	UserID          string `json:"user_id,omitempty"`
}

// HTTPAnalyzer — адаптер к внешнему inference-сервису (ONNX/NLP пайплайн
// живет за этим HTTP-интерфейсом, шлюз про него ничего не знает).
type HTTPAnalyzer struct {
	baseURL string
	client  *http.Client
}

func NewHTTPAnalyzer(baseURL string) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		baseURL: baseURL,
		// Транспортный таймаут шире бриджевого: гонку дедлайнов
		// выигрывает bridge, клиент здесь — страховочный предел
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Analyze выполняет один вызов анализа тона. Ровно одна попытка:
// ретраи в request path запрещены, латентность должна быть предсказуемой.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, req *domain.ToneRequest) (*domain.AnalyzeResult, error) {
	payload, err := json.Marshal(analyzeRequest{
		Text:            req.Text,
		Context:         req.Context,
		AttachmentStyle: req.AttachmentStyle,
		UserID:          req.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build analyze request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("analyzer call failed: %w", err)
	}
	defer resp.Body.Close()

	// 429/503 конвертируем в ThrottleError с учетом Retry-After
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return nil, &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      fmt.Errorf("analyzer returned status %d", resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("analyzer returned status %d: %s", resp.StatusCode, body)
	}

	var result domain.AnalyzeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode analyzer response: %w", err)
	}
	return &result, nil
}

// Ping проверяет доступность inference-сервиса. Используется стартовой
// пробой в main (с backoff), чтобы не поднимать шлюз над мертвым бэкендом.
func (a *HTTPAnalyzer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("analyzer unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      fmt.Errorf("analyzer health returned status %d", resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analyzer health returned status %d", resp.StatusCode)
	}
	return nil
}

func parseRetryAfter(value string) time.Duration {
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 5 * time.Second // Дефолтная пауза, если заголовка нет
}
