package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/tonebridge-edge/internal/audit"
	"github.com/xela07ax/tonebridge-edge/internal/bridge"
	"github.com/xela07ax/tonebridge-edge/internal/connectors"
	"github.com/xela07ax/tonebridge-edge/internal/cors"
	"github.com/xela07ax/tonebridge-edge/internal/dedup"
	"github.com/xela07ax/tonebridge-edge/internal/gateway"
	"github.com/xela07ax/tonebridge-edge/internal/infra"
	"github.com/xela07ax/tonebridge-edge/internal/repository/postgres"
)

func main() {
	// 1. Конфигурация: fail-fast до подъема любых ресурсов
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Logger init failed: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Upstream-анализатор: mock для dev, HTTP-адаптер для прода
	var analyzer bridge.Analyzer
	if cfg.Bridge.Mock {
		logger.Warn("bridge.mock=true: serving canned analyses, no upstream")
		analyzer = &connectors.MockAnalyzer{}
	} else {
		httpAnalyzer := connectors.NewHTTPAnalyzer(cfg.Bridge.UpstreamURL)
		// Стартовая проба с backoff: не поднимаем шлюз над мертвым бэкендом.
		// В request path повторов нет — они только здесь, на старте.
		if err := probeUpstream(appCtx, httpAnalyzer, logger); err != nil {
			logger.Fatal("upstream analyzer unreachable", zap.Error(err))
		}
		analyzer = httpAnalyzer
	}

	// 3. Дедуп-кэш: per-instance память или shared Redis (осознанный trade-off)
	var cache dedup.Store
	var rdb *redis.Client
	switch cfg.Cache.Store {
	case "redis":
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(appCtx).Err(); err != nil {
			logger.Fatal("redis unreachable", zap.Error(err))
		}
		store := dedup.NewRedisStore(rdb, cfg.Cache.TTL, logger)
		cache = store
		// Слушаем сигнал сброса (после редеплоя модели кэш устаревает)
		go dedup.ListenFlushResilient(appCtx, rdb, logger, store)
	default:
		cache = dedup.NewMemoryStore(cfg.Cache.TTL)
	}

	// 4. Трейл запросов: лог-sink для dev, Postgres — для прода
	var sink audit.SinkInterface
	var auditRepo *postgres.AuditRepo
	if cfg.Audit.DatabaseURL != "" {
		auditRepo, err = postgres.NewAuditRepo(cfg.Audit.DatabaseURL)
		if err != nil {
			logger.Fatal("audit repo init failed", zap.Error(err))
		}
		pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
		if err := auditRepo.Ping(pingCtx); err != nil {
			pingCancel()
			logger.Fatal("audit database unreachable", zap.Error(err))
		}
		pingCancel()
		sink = auditRepo
	} else {
		sink = &audit.LogSink{Logger: logger.Named("trail-sink")}
	}

	trail := audit.NewTrail(sink, cfg.Audit.BufferSize, cfg.Audit.FlushInterval, logger)
	trail.Start()

	// 5. Метрики + экспорт для Prometheus на отдельном листенере
	reg := prometheus.NewRegistry()
	metrics := gateway.NewMetrics(reg)

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics listener started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, metricsMux); err != nil {
			logger.Error("metrics listener failed", zap.Error(err))
		}
	}()

	// 6. Сборка ядра шлюза
	policy := cors.NewPolicy(cfg.CORS, cfg.Environment)
	br := bridge.New(analyzer, cfg.Bridge.Timeout, logger)
	core := gateway.NewCore(cache, br, trail, metrics, logger, cfg.Limits.MaxResponseBytes)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      core.Routes(policy),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("tone edge gateway started",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.String("cache_store", cfg.Cache.Store),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("tone edge gateway stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	cancel()      // Останавливаем фоновые горутины (flush-listener)
	trail.Stop()  // Final Flush трейла
	if rdb != nil {
		rdb.Close()
	}
	if auditRepo != nil {
		auditRepo.Close()
	}
	logger.Info("tone edge gateway exited properly")
}

// probeUpstream дергает /health анализатора с экспоненциальным backoff.
// ThrottleError апстрима (Retry-After) перекрывает стандартную задержку.
func probeUpstream(ctx context.Context, analyzer bridge.Analyzer, logger *zap.Logger) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(5),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			var tErr *connectors.ThrottleError
			if errors.As(err, &tErr) {
				return tErr.RetryAfter
			}
			return retry.BackOffDelay(n, err, config)
		}),
	)

	return r.Do(func() error {
		probeCtx, probeCancel := context.WithTimeout(ctx, 3*time.Second)
		defer probeCancel()

		if err := analyzer.Ping(probeCtx); err != nil {
			logger.Warn("upstream probe failed, retrying", zap.Error(err))
			return err
		}
		return nil
	})
}
