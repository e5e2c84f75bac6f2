package connectors

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/xela07ax/tonebridge-edge/internal/domain"
)

// MockAnalyzer — встроенная заглушка inference-сервиса для dev-режима
// (bridge.mock=true) и тестов. Имитирует латентность и простейшую
// классификацию тона по ключевым словам.
type MockAnalyzer struct{}

func (m *MockAnalyzer) Analyze(ctx context.Context, req *domain.ToneRequest) (*domain.AnalyzeResult, error) {
	// Имитируем задержку 50-300мс
	latency := time.Duration(50+rand.IntN(250)) * time.Millisecond

	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if req.Context == "unstable" {
		return nil, fmt.Errorf("analyzer internal error")
	}

	lower := strings.ToLower(req.Text)
	tone := "neutral"
	switch {
	case strings.Contains(lower, "always") || strings.Contains(lower, "never"):
		tone = "alert" // абсолютизмы — типичный маркер эскалации
	case strings.Contains(lower, "sorry") || strings.Contains(lower, "thank"):
		tone = "clear"
	case strings.Contains(lower, "!"):
		tone = "caution"
	}

	return &domain.AnalyzeResult{
		Success: true,
		Data: map[string]interface{}{
			"tone":       tone,
			"confidence": 0.42,
			"context":    req.Context,
		},
	}, nil
}

func (m *MockAnalyzer) Ping(_ context.Context) error { return nil }
