package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureSink struct {
	mu     sync.Mutex
	events []RequestEvent
}

func (s *captureSink) WriteBatch(_ context.Context, events []RequestEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestTrailFlushesOnStop(t *testing.T) {
	sink := &captureSink{}
	trail := NewTrail(sink, 100, time.Hour, zap.NewNop()) // тикер не успеет — проверяем drain
	trail.Start()

	for i := 0; i < 7; i++ {
		trail.Record(RequestEvent{ID: "e", RequestID: "r", Status: StatusSuccess})
	}
	trail.Stop()

	assert.Equal(t, 7, sink.count(), "Stop must drain the full buffer")
}

func TestTrailFlushesOnInterval(t *testing.T) {
	sink := &captureSink{}
	trail := NewTrail(sink, 100, 20*time.Millisecond, zap.NewNop())
	trail.Start()
	defer trail.Stop()

	trail.Record(RequestEvent{ID: "e1"})

	require.Eventually(t, func() bool { return sink.count() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestTrailStampsTimestamp(t *testing.T) {
	sink := &captureSink{}
	trail := NewTrail(sink, 100, time.Hour, zap.NewNop())
	trail.Start()

	trail.Record(RequestEvent{ID: "e1"})
	trail.Stop()

	require.Equal(t, 1, sink.count())
	assert.False(t, sink.events[0].Timestamp.IsZero())
}

func TestTrailShedsLoadWhenFull(t *testing.T) {
	sink := &captureSink{}
	// Воркер не запущен: буфер на 2 события, остальные сбрасываются без блокировки
	trail := NewTrail(sink, 2, time.Hour, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			trail.Record(RequestEvent{ID: "e"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record must never block the hot path")
	}

	trail.Start()
	trail.Stop()
	assert.Equal(t, 2, sink.count())
}

func TestTrailRecordAfterStopIsNoop(t *testing.T) {
	sink := &captureSink{}
	trail := NewTrail(sink, 100, time.Hour, zap.NewNop())
	trail.Start()
	trail.Stop()

	// Не паникует и не пишет
	trail.Record(RequestEvent{ID: "late"})
	assert.Equal(t, 0, sink.count())
}
