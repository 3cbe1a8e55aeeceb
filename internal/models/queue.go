package models

import "time"

// FetchOutcome 一次抓取的最终结果(成功或失败二选一)
type FetchOutcome struct {
	Result *PageResult
	Err    error
}

// QueuedRequest 等待准入的请求
// 用途:
//   - 在请求管理器的FIFO队列中排队
//   - 通过Done通道把结果交还给调用方(对应resolve/reject)
type QueuedRequest struct {
	// URL 完整的URL字符串
	URL string

	// Done 容量为1的结果通道,调用方放弃等待时写入也不会阻塞
	Done chan FetchOutcome

	// EnqueuedAt 入队时间(用于调试)
	EnqueuedAt time.Time
}

// NewQueuedRequest 创建排队请求
func NewQueuedRequest(url string) *QueuedRequest {
	return &QueuedRequest{
		URL:        url,
		Done:       make(chan FetchOutcome, 1),
		EnqueuedAt: time.Now(),
	}
}

// Resolve 交付成功结果
func (q *QueuedRequest) Resolve(result *PageResult) {
	q.Done <- FetchOutcome{Result: result}
}

// Reject 交付失败结果
func (q *QueuedRequest) Reject(err error) {
	q.Done <- FetchOutcome{Err: err}
}
