package crawlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/tabbydump/internal/models"
	"github.com/RecoveryAshes/tabbydump/internal/utils"
)

// RequestManager 全局请求准入控制器
// 职责: 任意时刻最多maxActive个抓取在途,其余请求按到达顺序排队
//
// 实现:
//   - maxActive个worker goroutine从FIFO队列中取请求
//   - 每个worker同一时刻只执行一个抓取,因此在途数量不可能超过上限
//   - 槽位在defer中归还,成功、失败、panic三种情况都会释放
type RequestManager struct {
	fetcher   Fetcher
	maxActive int
	queue     *URLQueue

	// 统计
	mu     sync.Mutex
	active int
	peak   int

	// worker生命周期
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRequestManager 创建请求管理器并启动worker
// maxActive < 1 时使用 models.DefaultMaxActive
func NewRequestManager(fetcher Fetcher, maxActive int) *RequestManager {
	if maxActive < 1 {
		maxActive = models.DefaultMaxActive
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm := &RequestManager{
		fetcher:   fetcher,
		maxActive: maxActive,
		queue:     NewURLQueue(),
		ctx:       ctx,
		cancel:    cancel,
	}

	for i := 0; i < maxActive; i++ {
		rm.wg.Add(1)
		go rm.worker(i)
	}

	utils.Debugf("请求管理器已启动: 最大并发=%d", maxActive)
	return rm
}

// Push 提交一个抓取请求并等待结果
// 请求一旦入队就一定会被执行;ctx只限制调用方的等待时间,不会撤回已排队的请求
func (rm *RequestManager) Push(ctx context.Context, rawURL string) (*models.PageResult, error) {
	req := models.NewQueuedRequest(rawURL)
	if err := rm.queue.Push(req); err != nil {
		return nil, err
	}

	select {
	case outcome := <-req.Done:
		return outcome.Result, outcome.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fetch 实现Fetcher接口,等价于Push
func (rm *RequestManager) Fetch(ctx context.Context, rawURL string) (*models.PageResult, error) {
	return rm.Push(ctx, rawURL)
}

// worker 循环取出队首请求并执行
func (rm *RequestManager) worker(id int) {
	defer rm.wg.Done()

	for {
		req, ok := rm.queue.Pop()
		if !ok {
			utils.Debugf("请求worker %d 退出", id)
			return
		}
		rm.fire(req)
	}
}

// fire 占用一个槽位执行抓取,结果写回请求的Done通道
func (rm *RequestManager) fire(req *models.QueuedRequest) {
	rm.acquire()
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("抓取时发生panic [%s]: %v", req.URL, r)
			req.Reject(fmt.Errorf("抓取时发生panic: %v", r))
		}
		rm.release()
	}()

	utils.Debugf("发起请求: %s (排队 %v)", req.URL, time.Since(req.EnqueuedAt).Round(time.Millisecond))

	result, err := rm.fetcher.Fetch(rm.ctx, req.URL)
	if err != nil {
		req.Reject(err)
		return
	}
	req.Resolve(result)
}

func (rm *RequestManager) acquire() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.active++
	if rm.active > rm.peak {
		rm.peak = rm.active
	}
}

func (rm *RequestManager) release() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.active--
}

// MaxActive 返回并发上限
func (rm *RequestManager) MaxActive() int {
	return rm.maxActive
}

// Active 返回当前在途请求数
func (rm *RequestManager) Active() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.active
}

// PeakActive 返回运行以来的最大在途请求数
func (rm *RequestManager) PeakActive() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.peak
}

// Queued 返回排队中的请求数
func (rm *RequestManager) Queued() int {
	return rm.queue.PendingCount()
}

// Close 停止接收新请求,等待已排队的请求全部执行完毕后退出worker
func (rm *RequestManager) Close() {
	rm.closeOnce.Do(func() {
		rm.queue.Close()
		rm.wg.Wait()
		rm.cancel()
		utils.Debugf("请求管理器已关闭: 峰值并发=%d", rm.PeakActive())
	})
}
