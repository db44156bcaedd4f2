package funding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type fakeSource struct {
	calls int32
	fn    func(ctx context.Context, symbol string) (Sample, error)
}

func (f *fakeSource) FetchFunding(ctx context.Context, symbol string) (Sample, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.fn(ctx, symbol)
}

func (f *fakeSource) count() int32 {
	return atomic.LoadInt32(&f.calls)
}

func testOptions() Options {
	return Options{
		RefreshInterval: 5 * time.Minute,
		MaxStaleness:    15 * time.Minute,
		FetchTimeout:    time.Second,
		PeriodsPerYear:  1095,
	}
}

func fixedSample(rate string) Sample {
	return Sample{RatePeriod: decimal.RequireFromString(rate)}
}

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestCacheGetServesFreshWithoutRefetch(t *testing.T) {
	src := &fakeSource{fn: func(ctx context.Context, symbol string) (Sample, error) {
		return fixedSample("0.0001"), nil
	}}
	cache, err := NewCache(testOptions(), src, noopLogger())
	if err != nil {
		t.Fatalf("NewCache 不应报错: %v", err)
	}

	first, stale, err := cache.Get(context.Background(), "BTC")
	if err != nil || stale {
		t.Fatalf("首次 Get 应成功且非陈旧: stale=%v err=%v", stale, err)
	}
	second, stale, err := cache.Get(context.Background(), "BTC")
	if err != nil || stale {
		t.Fatalf("第二次 Get 应命中缓存: stale=%v err=%v", stale, err)
	}

	if src.count() != 1 {
		t.Fatalf("刷新间隔内应仅抓取一次, 实际 %d", src.count())
	}
	if !first.FetchedAt.Equal(second.FetchedAt) {
		t.Fatal("缓存命中应返回同一快照")
	}
	want := decimal.RequireFromString("0.0001").Mul(decimal.NewFromInt(1095)).Mul(decimal.NewFromInt(100))
	if !first.RateAnnualized.Equal(want) {
		t.Fatalf("年化费率计算错误: 期望 %s, 实际 %s", want, first.RateAnnualized)
	}
}

func TestCacheGetRefetchesPastRefreshInterval(t *testing.T) {
	src := &fakeSource{fn: func(ctx context.Context, symbol string) (Sample, error) {
		return fixedSample("0.0001"), nil
	}}
	cache, err := NewCache(testOptions(), src, noopLogger())
	if err != nil {
		t.Fatalf("NewCache 不应报错: %v", err)
	}

	base := time.Now().UTC()
	now := base
	cache.now = func() time.Time { return now }

	if _, _, err := cache.Get(context.Background(), "BTC"); err != nil {
		t.Fatalf("首次 Get 应成功: %v", err)
	}

	// 恰好等于刷新间隔仍视作新鲜
	now = base.Add(5 * time.Minute)
	if _, _, err := cache.Get(context.Background(), "BTC"); err != nil {
		t.Fatalf("Get 应成功: %v", err)
	}
	if src.count() != 1 {
		t.Fatalf("age == refresh_interval 不应触发抓取, 实际 %d 次", src.count())
	}

	now = base.Add(5*time.Minute + time.Millisecond)
	if _, _, err := cache.Get(context.Background(), "BTC"); err != nil {
		t.Fatalf("Get 应成功: %v", err)
	}
	if src.count() != 2 {
		t.Fatalf("超过刷新间隔应再次抓取, 实际 %d 次", src.count())
	}
}

func TestCacheStaleServeWithinCeiling(t *testing.T) {
	fail := atomic.Bool{}
	src := &fakeSource{fn: func(ctx context.Context, symbol string) (Sample, error) {
		if fail.Load() {
			return Sample{}, ErrFetchTransport
		}
		return fixedSample("0.0002"), nil
	}}
	cache, err := NewCache(testOptions(), src, noopLogger())
	if err != nil {
		t.Fatalf("NewCache 不应报错: %v", err)
	}

	base := time.Now().UTC()
	now := base
	cache.now = func() time.Time { return now }

	first, _, err := cache.Get(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("首次 Get 应成功: %v", err)
	}

	fail.Store(true)
	now = base.Add(10 * time.Minute)

	snap, stale, err := cache.Get(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("上限内的陈旧快照应可降级返回: %v", err)
	}
	if !stale {
		t.Fatal("降级返回应标记 stale=true")
	}
	if !snap.FetchedAt.Equal(first.FetchedAt) {
		t.Fatal("降级返回应是上一份快照")
	}
}

func TestCacheStaleCeilingBoundary(t *testing.T) {
	fail := atomic.Bool{}
	src := &fakeSource{fn: func(ctx context.Context, symbol string) (Sample, error) {
		if fail.Load() {
			return Sample{}, ErrFetchTransport
		}
		return fixedSample("0.0002"), nil
	}}
	cache, err := NewCache(testOptions(), src, noopLogger())
	if err != nil {
		t.Fatalf("NewCache 不应报错: %v", err)
	}

	base := time.Now().UTC()
	now := base
	cache.now = func() time.Time { return now }

	if _, _, err := cache.Get(context.Background(), "ETH"); err != nil {
		t.Fatalf("首次 Get 应成功: %v", err)
	}
	fail.Store(true)

	// 刚好低于上限：仍可降级
	now = base.Add(15*time.Minute - time.Millisecond)
	if _, stale, err := cache.Get(context.Background(), "ETH"); err != nil || !stale {
		t.Fatalf("低于上限应降级返回: stale=%v err=%v", stale, err)
	}

	// 恰好等于上限：不可用
	now = base.Add(15 * time.Minute)
	_, _, err = cache.Get(context.Background(), "ETH")
	var staleErr *StaleDataError
	if !errors.As(err, &staleErr) {
		t.Fatalf("age == max_staleness 应返回 StaleDataError, 实际 %v", err)
	}
	if staleErr.Symbol != "ETH" || staleErr.Age != 15*time.Minute {
		t.Fatalf("StaleDataError 字段不正确: %+v", staleErr)
	}
}

func TestCacheGetWithoutSnapshot(t *testing.T) {
	src := &fakeSource{fn: func(ctx context.Context, symbol string) (Sample, error) {
		return Sample{}, ErrFetchTransport
	}}
	cache, err := NewCache(testOptions(), src, noopLogger())
	if err != nil {
		t.Fatalf("NewCache 不应报错: %v", err)
	}

	_, _, err = cache.Get(context.Background(), "SOL")
	var staleErr *StaleDataError
	if !errors.As(err, &staleErr) {
		t.Fatalf("无缓存且抓取失败应返回 StaleDataError, 实际 %v", err)
	}
	if staleErr.Symbol != "SOL" {
		t.Fatalf("错误应标注符号: %+v", staleErr)
	}
}

func TestCacheConcurrentGetsSingleFetch(t *testing.T) {
	release := make(chan struct{})
	src := &fakeSource{fn: func(ctx context.Context, symbol string) (Sample, error) {
		<-release
		return fixedSample("0.0001"), nil
	}}
	cache, err := NewCache(testOptions(), src, noopLogger())
	if err != nil {
		t.Fatalf("NewCache 不应报错: %v", err)
	}

	const callers = 25
	var (
		start sync.WaitGroup
		done  sync.WaitGroup
	)
	start.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer done.Done()
			start.Done()
			start.Wait()
			if _, _, err := cache.Get(context.Background(), "BTC"); err != nil {
				t.Errorf("并发 Get 不应报错: %v", err)
			}
		}()
	}

	start.Wait()
	close(release)
	done.Wait()

	if src.count() != 1 {
		t.Fatalf("并发 Get 应合并为一次抓取, 实际 %d", src.count())
	}
}

func TestCacheRefreshPartialFailure(t *testing.T) {
	src := &fakeSource{fn: func(ctx context.Context, symbol string) (Sample, error) {
		if symbol == "BAD" {
			return Sample{}, ErrFetchTransport
		}
		return fixedSample("0.0001"), nil
	}}
	cache, err := NewCache(testOptions(), src, noopLogger())
	if err != nil {
		t.Fatalf("NewCache 不应报错: %v", err)
	}

	snaps, errs := cache.Refresh(context.Background(), []string{"BTC", "BAD", "ETH"})
	if len(snaps) != 2 {
		t.Fatalf("应返回两份快照, 实际 %d", len(snaps))
	}
	if _, ok := snaps["BTC"]; !ok {
		t.Fatal("缺少 BTC 快照")
	}
	if _, ok := snaps["ETH"]; !ok {
		t.Fatal("缺少 ETH 快照")
	}
	if len(errs) != 1 {
		t.Fatalf("应有一条失败记录, 实际 %d", len(errs))
	}
	if !errors.Is(errs[0], ErrFetchTransport) {
		t.Fatalf("失败记录应保留错误类别: %v", errs[0])
	}
}

func TestCacheIsStale(t *testing.T) {
	src := &fakeSource{fn: func(ctx context.Context, symbol string) (Sample, error) {
		return fixedSample("0.0001"), nil
	}}
	cache, err := NewCache(testOptions(), src, noopLogger())
	if err != nil {
		t.Fatalf("NewCache 不应报错: %v", err)
	}

	if !cache.IsStale("BTC", time.Minute) {
		t.Fatal("缺失条目应视为陈旧")
	}

	base := time.Now().UTC()
	now := base
	cache.now = func() time.Time { return now }

	if _, _, err := cache.Get(context.Background(), "BTC"); err != nil {
		t.Fatalf("Get 应成功: %v", err)
	}
	if cache.IsStale("BTC", time.Minute) {
		t.Fatal("新鲜条目不应视为陈旧")
	}

	now = base.Add(time.Minute)
	if !cache.IsStale("BTC", time.Minute) {
		t.Fatal("age == maxAge 应视为陈旧")
	}

	cache.Clear()
	if !cache.IsStale("BTC", time.Minute) {
		t.Fatal("Clear 后条目应视为陈旧")
	}
}

func TestNewCacheValidation(t *testing.T) {
	src := &fakeSource{fn: func(ctx context.Context, symbol string) (Sample, error) {
		return Sample{}, nil
	}}

	cases := []struct {
		name string
		opts Options
		src  Source
	}{
		{name: "missing source", opts: testOptions(), src: nil},
		{name: "zero refresh interval", opts: Options{MaxStaleness: time.Minute, FetchTimeout: time.Second, PeriodsPerYear: 1}, src: src},
		{name: "ceiling below interval", opts: Options{RefreshInterval: time.Hour, MaxStaleness: time.Minute, FetchTimeout: time.Second, PeriodsPerYear: 1}, src: src},
		{name: "zero fetch timeout", opts: Options{RefreshInterval: time.Minute, MaxStaleness: time.Hour, PeriodsPerYear: 1}, src: src},
		{name: "zero periods", opts: Options{RefreshInterval: time.Minute, MaxStaleness: time.Hour, FetchTimeout: time.Second}, src: src},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewCache(tc.opts, tc.src, noopLogger()); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("期望 ErrInvalidConfig, 实际 %v", err)
			}
		})
	}
}
