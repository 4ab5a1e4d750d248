package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: time.Minute, AlignToBucket: true}, zerolog.Nop())

	now := time.Date(2026, 3, 1, 12, 30, 15, 0, time.UTC)
	next := s.nextTick(now)
	if !next.Equal(time.Date(2026, 3, 1, 12, 31, 0, 0, time.UTC)) {
		t.Fatalf("应对齐到下一分钟, 实际 %s", next)
	}

	// 正好落在桶边界时推到下一个桶
	boundary := time.Date(2026, 3, 1, 12, 31, 0, 0, time.UTC)
	next = s.nextTick(boundary)
	if !next.Equal(boundary.Add(time.Minute)) {
		t.Fatalf("边界时刻应推进一个间隔, 实际 %s", next)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Minute}, zerolog.Nop())

	now := time.Date(2026, 3, 1, 12, 30, 15, 0, time.UTC)
	next := s.nextTick(now)
	if !next.Equal(now.Add(time.Minute)) {
		t.Fatalf("未对齐模式应为 now+interval, 实际 %s", next)
	}
}

func TestRunExecutesUntilCancelled(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32
	err := s.Run(ctx, func(ctx context.Context, tickAt time.Time) error {
		if ticks.Add(1) >= 3 {
			cancel()
		}
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("取消后应返回 context.Canceled, 实际 %v", err)
	}
	if ticks.Load() < 3 {
		t.Fatalf("应至少执行 3 次, 实际 %d", ticks.Load())
	}
}

func TestRunContinuesAfterTickError(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32
	_ = s.Run(ctx, func(ctx context.Context, tickAt time.Time) error {
		if ticks.Add(1) >= 2 {
			cancel()
			return nil
		}
		return errors.New("venue down")
	})

	if ticks.Load() < 2 {
		t.Fatalf("tick 失败后循环应继续, 实际执行 %d 次", ticks.Load())
	}
}
