package audit

/*
Файл trail.go реализует Request Trail — асинхронный сборщик телеметрии
исходов запросов.

Ключевые особенности архитектуры:
- Non-blocking Logging: неблокирующий канал между Hot Path шлюза и воркером.
  Задержки записи в БД не влияют на Response Time.
- Batching & Efficiency: накопление событий в памяти и пакетная запись
  (Bulk Insert) по таймеру или при достижении лимита (100 событий).
- Drain Pattern & Graceful Shutdown: полная вычитка буфера при остановке
  сервиса через sync.WaitGroup и закрытие канала — Final Flush без потерь.
- Load Shedding: при переполнении буфера событие уходит в обычный лог,
  а не блокирует обработку запроса.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SinkInterface определяет, куда физически будут сохраняться события
type SinkInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []RequestEvent) error
}

type Recorder interface {
	Record(event RequestEvent)
}

type Trail struct {
	ch     chan RequestEvent
	sink   SinkInterface
	logger *zap.Logger
	wg     sync.WaitGroup

	flushInterval time.Duration
	// Атомарный флаг (0 - открыт, 1 - закрыт): Record после Stop не паникует
	isClosed int32
}

func NewTrail(sink SinkInterface, bufferSize int, flushInterval time.Duration, logger *zap.Logger) *Trail {
	return &Trail{
		ch:            make(chan RequestEvent, bufferSize),
		sink:          sink,
		logger:        logger.With(zap.String("mod", "trail")),
		flushInterval: flushInterval,
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&t.isClosed, 1)

	// 2. Крошечная пауза, чтобы текущие Record успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Drain Pattern: завершение воркера — только через закрытие канала
	t.logger.Info("stopping trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("trail stopped gracefully")
}

func (t *Trail) Record(event RequestEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("trail event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	// Load Shedding: переполненный буфер не должен тормозить Hot Path
	select {
	case t.ch <- event:
	default:
		t.logger.Error("trail_buffer_overflow",
			zap.String("request_id", event.RequestID),
			zap.String("status", event.Status),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]RequestEvent, 0, 100)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст к этому моменту может быть закрыт
			if err := t.sink.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("trail flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): остатки уже вычитаны, финальный flush
				flush()
				t.logger.Info("trail worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// LogSink — dev-режим: события уходят только в структурный лог.
type LogSink struct {
	Logger *zap.Logger
}

func (s *LogSink) WriteBatch(_ context.Context, events []RequestEvent) error {
	for _, e := range events {
		s.Logger.Info("request_event",
			zap.String("request_id", e.RequestID),
			zap.String("user_id", e.UserID),
			zap.String("status", e.Status),
			zap.Int("http_code", e.HTTPCode),
			zap.Bool("cached", e.Cached),
			zap.Int64("duration_ms", e.DurationMs),
		)
	}
	return nil
}
