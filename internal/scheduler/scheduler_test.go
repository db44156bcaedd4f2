package scheduler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2026, 8, 24, 10, 2, 30, 0, time.UTC)
	next := s.nextTick(now)
	want := time.Date(2026, 8, 24, 10, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("对齐的下一次 tick 期望 %s, 实际 %s", want, next)
	}

	// 已在桶边界上时应推进到下一个桶
	next = s.nextTick(want)
	if !next.Equal(want.Add(5 * time.Minute)) {
		t.Fatalf("桶边界上的下一次 tick 期望 %s, 实际 %s", want.Add(5*time.Minute), next)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Minute, AlignToStart: false}, zerolog.Nop())

	now := time.Date(2026, 8, 24, 10, 2, 30, 0, time.UTC)
	if next := s.nextTick(now); !next.Equal(now.Add(time.Minute)) {
		t.Fatalf("非对齐模式下一次 tick 应为 now+interval, 实际 %s", next)
	}
}

func TestBucketStart(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())

	tick := time.Date(2026, 8, 24, 10, 5, 0, 0, time.UTC)
	if bucket := s.bucketStart(tick); !bucket.Equal(tick) {
		t.Fatalf("对齐 tick 的桶起点应为自身, 实际 %s", bucket)
	}
}
