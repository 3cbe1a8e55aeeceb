package crawlers

import (
	"fmt"
	"sync"

	"github.com/RecoveryAshes/tabbydump/internal/models"
)

// URLQueue 请求准入队列
// 职责: 按到达顺序(FIFO)保存等待空闲槽位的请求,支持并发安全的Push/Pop操作
type URLQueue struct {
	// 待处理请求,队首为最早到达的请求
	pending []*models.QueuedRequest

	// 保护pending和closed
	mu sync.Mutex

	// 有新请求或队列关闭时唤醒等待中的worker
	cond *sync.Cond

	// 队列是否已关闭
	closed bool
}

// NewURLQueue 创建请求队列实例
func NewURLQueue() *URLQueue {
	q := &URLQueue{
		pending: make([]*models.QueuedRequest, 0, 64),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push 添加请求到队尾
func (q *URLQueue) Push(req *models.QueuedRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("队列已关闭: %s", req.URL)
	}

	q.pending = append(q.pending, req)
	q.cond.Signal()
	return nil
}

// Pop 取出队首请求,队列为空时阻塞等待
// 队列关闭后仍会先交出剩余请求,全部取完才返回ok=false
func (q *URLQueue) Pop() (*models.QueuedRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}

	if len(q.pending) == 0 {
		return nil, false
	}

	req := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return req, true
}

// PendingCount 返回当前排队请求数量
func (q *URLQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close 关闭队列
// 后续Push返回错误,阻塞中的Pop被唤醒
func (q *URLQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
}
