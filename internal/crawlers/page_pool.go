package crawlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// PagePool 浏览器标签页池
// 职责: 复用标签页,数量受ResourceMonitor给出的上限约束
type PagePool struct {
	browser *rod.Browser

	// 所有已创建的标签页
	pages []*rod.Page

	// 空闲标签页
	availablePages chan *rod.Page

	resourceMonitor *ResourceMonitor

	mu     sync.Mutex
	closed bool
}

// NewPagePool 创建标签页池实例
func NewPagePool(browser *rod.Browser, resourceMonitor *ResourceMonitor) *PagePool {
	return &PagePool{
		browser:         browser,
		pages:           make([]*rod.Page, 0),
		availablePages:  make(chan *rod.Page, 32),
		resourceMonitor: resourceMonitor,
	}
}

// AcquirePage 获取一个可用的标签页
// 优先复用空闲标签页;未达上限且资源允许时新建;否则阻塞等待归还
func (pp *PagePool) AcquirePage(ctx context.Context) (*rod.Page, error) {
	select {
	case page, ok := <-pp.availablePages:
		if !ok {
			return nil, fmt.Errorf("标签页池已关闭")
		}
		return page, nil
	default:
	}

	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil, fmt.Errorf("标签页池已关闭")
	}
	currentSize := len(pp.pages)
	maxSize := pp.resourceMonitor.CalculateMaxTabs()
	canCreate, reason := pp.resourceMonitor.CheckResourceAvailability()
	// 至少保证一个标签页,否则永远无法取得
	if currentSize < maxSize && (canCreate || currentSize == 0) {
		page, err := pp.browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			pp.mu.Unlock()
			log.Error().Err(err).Msg("创建标签页失败,浏览器可能已崩溃")
			return nil, fmt.Errorf("创建标签页失败(浏览器可能已崩溃): %w", err)
		}
		pp.pages = append(pp.pages, page)
		pp.mu.Unlock()

		log.Debug().Msgf("创建新标签页,当前标签页数: %d, 最大限制: %d", currentSize+1, maxSize)
		return page, nil
	}
	pp.mu.Unlock()

	if !canCreate {
		log.Debug().Msgf("资源不足,等待空闲标签页: %s", reason)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case page, ok := <-pp.availablePages:
		if !ok {
			return nil, fmt.Errorf("标签页池已关闭")
		}
		return page, nil
	}
}

// ReleasePage 清理标签页状态后归还到池中,清理失败则销毁
func (pp *PagePool) ReleasePage(page *rod.Page) {
	if page == nil {
		return
	}

	if err := pp.cleanPage(page); err != nil {
		log.Warn().Err(err).Msg("清理标签页失败,销毁该标签页")
		pp.destroyPage(page)
		return
	}

	pp.mu.Lock()
	defer pp.mu.Unlock()
	if pp.closed {
		return
	}

	select {
	case pp.availablePages <- page:
	default:
		// 空闲池已满
		pp.removeLocked(page)
		_ = page.Close()
	}
}

// cleanPage 回到空白页,避免下一个页面看到上一个页面的状态
func (pp *PagePool) cleanPage(page *rod.Page) error {
	if err := page.Navigate("about:blank"); err != nil {
		return fmt.Errorf("重置标签页失败: %w", err)
	}
	return nil
}

// destroyPage 销毁标签页
func (pp *PagePool) destroyPage(page *rod.Page) {
	pp.mu.Lock()
	pp.removeLocked(page)
	remaining := len(pp.pages)
	pp.mu.Unlock()

	if err := page.Close(); err != nil {
		log.Warn().Err(err).Msg("关闭标签页失败")
	}
	log.Debug().Msgf("销毁标签页,当前标签页数: %d", remaining)
}

func (pp *PagePool) removeLocked(page *rod.Page) {
	for i, p := range pp.pages {
		if p == page {
			pp.pages = append(pp.pages[:i], pp.pages[i+1:]...)
			return
		}
	}
}

// CurrentSize 返回当前标签页数
func (pp *PagePool) CurrentSize() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.pages)
}

// Close 关闭标签页池,释放所有资源
func (pp *PagePool) Close() error {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if pp.closed {
		return nil
	}

	for _, page := range pp.pages {
		if err := page.Close(); err != nil {
			log.Warn().Err(err).Msg("关闭标签页失败")
		}
	}

	pp.pages = nil
	close(pp.availablePages)
	pp.closed = true

	log.Debug().Msg("标签页池已关闭")
	return nil
}
