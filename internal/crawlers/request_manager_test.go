package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RecoveryAshes/tabbydump/internal/models"
)

// countingFetcher 记录并发峰值的假抓取器
type countingFetcher struct {
	delay   time.Duration
	active  atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
	mu      sync.Mutex
	order   []string
	failFor map[string]error
}

func (f *countingFetcher) Fetch(ctx context.Context, rawURL string) (*models.PageResult, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.calls.Add(1)

	f.mu.Lock()
	f.order = append(f.order, rawURL)
	f.mu.Unlock()

	time.Sleep(f.delay)

	if err := f.failFor[rawURL]; err != nil {
		return nil, err
	}
	return &models.PageResult{SourceURL: rawURL, StatusCode: 200, Body: []byte("ok:" + rawURL)}, nil
}

func waitQueued(t *testing.T, rm *RequestManager, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for rm.Queued() < n {
		if time.Now().After(deadline) {
			t.Fatalf("等待排队超时: 期望 %d, 当前 %d", n, rm.Queued())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRequestManager_MaxActive(t *testing.T) {
	fetcher := &countingFetcher{delay: 100 * time.Millisecond}
	rm := NewRequestManager(fetcher, 2)
	defer rm.Close()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := fmt.Sprintf("http://tab.example.com/p%d/", i)
			result, err := rm.Push(context.Background(), url)
			if err != nil {
				t.Errorf("Push(%s) error = %v", url, err)
				return
			}
			if result.SourceURL != url {
				t.Errorf("结果错配: got %s, want %s", result.SourceURL, url)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	if peak := fetcher.peak.Load(); peak > 2 {
		t.Errorf("在途请求超过上限: peak = %d", peak)
	}
	if rm.PeakActive() != 2 {
		t.Errorf("PeakActive() = %d, want 2", rm.PeakActive())
	}
	// 5个请求、上限2、每个100ms: 三轮
	if elapsed < 290*time.Millisecond || elapsed > 600*time.Millisecond {
		t.Errorf("总耗时异常: %v", elapsed)
	}
	if rm.Active() != 0 || rm.Queued() != 0 {
		t.Errorf("结束后仍有占用: active=%d queued=%d", rm.Active(), rm.Queued())
	}
}

func TestRequestManager_DefaultLimit(t *testing.T) {
	rm := NewRequestManager(&countingFetcher{}, 0)
	defer rm.Close()

	if rm.MaxActive() != models.DefaultMaxActive {
		t.Errorf("MaxActive() = %d, want %d", rm.MaxActive(), models.DefaultMaxActive)
	}
}

func TestRequestManager_FIFO(t *testing.T) {
	gate := make(chan struct{})
	var mu sync.Mutex
	var order []string

	fetcher := FetcherFunc(func(ctx context.Context, rawURL string) (*models.PageResult, error) {
		if rawURL == "first" {
			<-gate
		}
		mu.Lock()
		order = append(order, rawURL)
		mu.Unlock()
		return &models.PageResult{SourceURL: rawURL}, nil
	})

	rm := NewRequestManager(fetcher, 1)
	defer rm.Close()

	var wg sync.WaitGroup
	push := func(url string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rm.Push(context.Background(), url); err != nil {
				t.Errorf("Push(%s) error = %v", url, err)
			}
		}()
	}

	push("first")
	// 等第一个请求占住唯一的槽位
	for rm.Active() == 0 {
		time.Sleep(time.Millisecond)
	}

	want := []string{"first", "a", "b", "c", "d"}
	for i, url := range want[1:] {
		push(url)
		waitQueued(t, rm, i+1)
	}

	close(gate)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("执行顺序 = %v, want %v", order, want)
		}
	}
}

func TestRequestManager_FailureReleasesSlot(t *testing.T) {
	boom := errors.New("连接被拒绝")
	fetcher := &countingFetcher{
		failFor: map[string]error{"http://tab.example.com/bad/": boom},
	}
	rm := NewRequestManager(fetcher, 1)
	defer rm.Close()

	t.Run("失败请求的调用方收到错误", func(t *testing.T) {
		_, err := rm.Push(context.Background(), "http://tab.example.com/bad/")
		if !errors.Is(err, boom) {
			t.Errorf("期望 %v, 得到 %v", boom, err)
		}
	})

	t.Run("失败后槽位被释放", func(t *testing.T) {
		result, err := rm.Push(context.Background(), "http://tab.example.com/good/")
		if err != nil {
			t.Fatalf("Push() error = %v", err)
		}
		if result.Text() != "ok:http://tab.example.com/good/" {
			t.Errorf("Text() = %q", result.Text())
		}
		if rm.Active() != 0 {
			t.Errorf("Active() = %d, want 0", rm.Active())
		}
	})
}

func TestRequestManager_PanicReleasesSlot(t *testing.T) {
	fetcher := FetcherFunc(func(ctx context.Context, rawURL string) (*models.PageResult, error) {
		if rawURL == "panic" {
			panic("解析器崩溃")
		}
		return &models.PageResult{SourceURL: rawURL}, nil
	})
	rm := NewRequestManager(fetcher, 1)
	defer rm.Close()

	if _, err := rm.Push(context.Background(), "panic"); err == nil {
		t.Fatal("panic应该作为错误返回")
	}

	done := make(chan error, 1)
	go func() {
		_, err := rm.Push(context.Background(), "after")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("panic之后的请求失败: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("panic之后槽位未释放")
	}
}

func TestRequestManager_CallerGivesUp(t *testing.T) {
	gate := make(chan struct{})
	var fired atomic.Int32
	fetcher := FetcherFunc(func(ctx context.Context, rawURL string) (*models.PageResult, error) {
		if rawURL == "slow" {
			<-gate
		}
		fired.Add(1)
		return &models.PageResult{SourceURL: rawURL}, nil
	})
	rm := NewRequestManager(fetcher, 1)

	go rm.Push(context.Background(), "slow")
	for rm.Active() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := rm.Push(ctx, "abandoned"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("期望 DeadlineExceeded, 得到 %v", err)
	}

	close(gate)
	rm.Close()

	// 已排队的请求即使无人等待也会被执行
	if got := fired.Load(); got != 2 {
		t.Errorf("执行次数 = %d, want 2", got)
	}
}

func TestRequestManager_PushAfterClose(t *testing.T) {
	rm := NewRequestManager(&countingFetcher{}, 1)
	rm.Close()

	if _, err := rm.Push(context.Background(), "http://tab.example.com/"); err == nil {
		t.Error("关闭后Push应该返回错误")
	}
}

func TestURLQueue_DrainsAfterClose(t *testing.T) {
	q := NewURLQueue()
	for _, u := range []string{"a", "b"} {
		if err := q.Push(models.NewQueuedRequest(u)); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}
	q.Close()

	for _, want := range []string{"a", "b"} {
		req, ok := q.Pop()
		if !ok || req.URL != want {
			t.Fatalf("Pop() = %v, %v; want %s", req, ok, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("队列取空后Pop应返回false")
	}
}
