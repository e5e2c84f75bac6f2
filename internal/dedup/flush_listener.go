package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/tonebridge-edge/internal/infra"
)

// ListenFlushResilient — «живучая» подписка на сигнал сброса кэша.
// Оператор публикует любое сообщение в канал после редеплоя модели,
// и каждый инстанс очищает свой store. Цикл переживает рестарты Redis:
// при обрыве канала — пересабскрайб с паузой.
func ListenFlushResilient(ctx context.Context, rdb *redis.Client, logger *zap.Logger, store Store) {
	logger = logger.Named("dedup-flush")

	for {
		pubsub := rdb.Subscribe(ctx, infra.RedisChanDedupFlush)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			if ctx.Err() != nil {
				pubsub.Close()
				return
			}
			logger.Error("failed to subscribe", zap.String("chan", infra.RedisChanDedupFlush), zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				logger.Info("flush signal received", zap.String("payload", msg.Payload))
				store.Flush(ctx)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}
