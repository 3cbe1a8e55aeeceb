package crawlers

import (
	"context"

	"github.com/RecoveryAshes/tabbydump/internal/models"
)

// Fetcher 单个URL的抓取器
// 非2xx响应、网络错误都以error返回
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*models.PageResult, error)
}

// FetcherFunc 函数适配器
type FetcherFunc func(ctx context.Context, rawURL string) (*models.PageResult, error)

// Fetch 实现Fetcher接口
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) (*models.PageResult, error) {
	return f(ctx, rawURL)
}
