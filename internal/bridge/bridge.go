package bridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/tonebridge-edge/internal/domain"
)

// Analyzer — контракт внешнего inference-сервиса. Реализации живут
// в internal/connectors (HTTP-адаптер и mock).
type Analyzer interface {
	Analyze(ctx context.Context, req *domain.ToneRequest) (*domain.AnalyzeResult, error)
	Ping(ctx context.Context) error
}

// OutcomeKind — таксономия исходов обработки запроса.
type OutcomeKind int

const (
	KindSuccess OutcomeKind = iota
	KindUpstreamError
	KindTimeout
	KindIntegrityMismatch
	KindValidationError
)

// Outcome — tagged-результат. Таймаут и ошибка апстрима — принципиально
// разные исходы: при таймауте судьба вызова на стороне бэкенда неизвестна
// (Unknown, не Failed), клиент не должен считать операцию проваленной.
type Outcome struct {
	Kind  OutcomeKind
	Data  map[string]interface{} // только при KindSuccess
	Err   string                 // человекочитаемая причина при остальных
	Field string                 // имя поля при KindValidationError
}

func Success(data map[string]interface{}) Outcome {
	return Outcome{Kind: KindSuccess, Data: data}
}

func UpstreamError(msg string) Outcome {
	return Outcome{Kind: KindUpstreamError, Err: msg}
}

func Timeout() Outcome {
	return Outcome{Kind: KindTimeout, Err: "upstream did not respond within budget"}
}

func IntegrityMismatch() Outcome {
	return Outcome{Kind: KindIntegrityMismatch, Err: "text_sha256 does not match text"}
}

func ValidationError(field, msg string) Outcome {
	return Outcome{Kind: KindValidationError, Field: field, Err: msg}
}

// Bridge оборачивает вызов анализатора в гонку с дедлайном.
// Одна попытка на запрос — ретраи, если нужны, дело клиента.
type Bridge struct {
	analyzer Analyzer
	timeout  time.Duration
	logger   *zap.Logger
}

func New(analyzer Analyzer, timeout time.Duration, logger *zap.Logger) *Bridge {
	return &Bridge{
		analyzer: analyzer,
		timeout:  timeout,
		logger:   logger.Named("bridge"),
	}
}

type callResult struct {
	result *domain.AnalyzeResult
	err    error
}

// Invoke выполняет вызов и нормализует три формы отказа апстрима:
// явный success:false, транспортная ошибка, истекший дедлайн.
func (b *Bridge) Invoke(ctx context.Context, req *domain.ToneRequest) Outcome {
	// Fire-and-forget abandonment: при проигрыше гонки вызов НЕ отменяется
	// на транспортном уровне, поэтому контекст отвязываем от cancel родителя
	// (значения, включая request id, сохраняются)
	callCtx := context.WithoutCancel(ctx)

	ch := make(chan callResult, 1) // буфер: отставшая горутина не зависнет на записи
	go func() {
		result, err := b.analyzer.Analyze(callCtx, req)
		ch <- callResult{result: result, err: err}
	}()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		// Исход апстрима неизвестен — вызов брошен, но может довершиться
		b.logger.Warn("bridge call abandoned on timeout", zap.Duration("budget", b.timeout))
		return Timeout()

	case out := <-ch:
		if out.err != nil {
			// Сырую ошибку — в лог, клиенту только безопасное резюме
			b.logger.Error("upstream transport failure", zap.Error(out.err))
			return UpstreamError(out.err.Error())
		}
		if !out.result.Success {
			return UpstreamError(out.result.Error)
		}
		return Success(out.result.Data)
	}
}
