package crawlers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/RecoveryAshes/tabbydump/internal/models"
	"github.com/RecoveryAshes/tabbydump/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// DynamicFetcherConfig 动态抓取器配置
type DynamicFetcherConfig struct {
	Headless         bool
	Timeout          time.Duration // 单个页面导航+加载的超时
	MaxTabs          int
	SafetyReserveMB  int
	CPULoadThreshold int
}

// DynamicFetcher 动态抓取器(使用go-rod)
// 无扩展名的页面经浏览器渲染后取DOM;带扩展名的静态资源交给静态抓取器
type DynamicFetcher struct {
	browser         *rod.Browser
	pagePool        *PagePool
	resourceMonitor *ResourceMonitor
	static          Fetcher
	headerProvider  models.HeaderProvider
	timeout         time.Duration
}

// NewDynamicFetcher 启动浏览器并创建动态抓取器
func NewDynamicFetcher(config DynamicFetcherConfig, static Fetcher, headerProvider models.HeaderProvider) (*DynamicFetcher, error) {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	browser, err := launchBrowser(config.Headless)
	if err != nil {
		return nil, err
	}

	monitor := NewResourceMonitor(ResourceMonitorConfig{
		SafetyReserveMemory: int64(config.SafetyReserveMB) * 1024 * 1024,
		CPULoadThreshold:    config.CPULoadThreshold,
		MaxTabsLimit:        config.MaxTabs,
	})
	monitor.StartMonitoring(time.Second)

	utils.Infof("🌐 浏览器已就绪: 标签页上限=%d", monitor.CalculateMaxTabs())

	return &DynamicFetcher{
		browser:         browser,
		pagePool:        NewPagePool(browser, monitor),
		resourceMonitor: monitor,
		static:          static,
		headerProvider:  headerProvider,
		timeout:         config.Timeout,
	}, nil
}

// launchBrowser 启动并连接浏览器
func launchBrowser(headless bool) (*rod.Browser, error) {
	l := launcher.New().Headless(headless)

	// 自建站点常用自签名证书
	l = l.Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	utils.Debugf("浏览器已启动: %s", controlURL)
	return browser, nil
}

// Fetch 实现Fetcher接口
func (df *DynamicFetcher) Fetch(ctx context.Context, rawURL string) (*models.PageResult, error) {
	if parsed, err := url.Parse(rawURL); err == nil && models.HasFileExtension(parsed.Path) {
		return df.static.Fetch(ctx, rawURL)
	}

	page, err := df.pagePool.AcquirePage(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取标签页失败 [%s]: %w", rawURL, err)
	}
	defer df.pagePool.ReleasePage(page)

	p := page.Context(ctx).Timeout(df.timeout)

	if df.headerProvider != nil {
		headers, err := df.headerProvider.GetHeaders()
		if err != nil {
			return nil, fmt.Errorf("获取HTTP头部失败: %w", err)
		}
		dict := make([]string, 0, len(headers)*2)
		for name, values := range headers {
			// 浏览器自行协商压缩
			if len(values) == 0 || name == "Accept-Encoding" {
				continue
			}
			dict = append(dict, name, values[0])
		}
		cleanup, err := p.SetExtraHeaders(dict)
		if err != nil {
			return nil, fmt.Errorf("设置请求头部失败 [%s]: %w", rawURL, err)
		}
		defer cleanup()
	}

	// 浏览器对404/500同样会渲染出页面,状态码只能从主文档的响应事件里取
	var status int
	waitDocument := p.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument || e.FrameID != p.FrameID {
			return false
		}
		status = e.Response.Status
		return true
	})

	if err := p.Navigate(rawURL); err != nil {
		return nil, fmt.Errorf("导航失败 [%s]: %w", rawURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("等待页面加载失败 [%s]: %w", rawURL, err)
	}
	waitDocument()
	if err := checkDocumentStatus(status); err != nil {
		return nil, fmt.Errorf("页面响应异常 [%s]: %w", rawURL, err)
	}

	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("读取页面DOM失败 [%s]: %w", rawURL, err)
	}

	utils.Debugf("页面渲染完成: %s (%d bytes)", rawURL, len(html))

	return &models.PageResult{
		SourceURL:   rawURL,
		StatusCode:  status,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(html),
	}, nil
}

// checkDocumentStatus 与静态抓取一致: 非2xx视为失败
func checkDocumentStatus(status int) error {
	if status == 0 {
		return fmt.Errorf("未收到文档响应")
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("HTTP %d", status)
	}
	return nil
}

// Close 关闭标签页池和浏览器
func (df *DynamicFetcher) Close() error {
	df.resourceMonitor.StopMonitoring()
	if err := df.pagePool.Close(); err != nil {
		utils.Warnf("关闭标签页池失败: %v", err)
	}
	if err := df.browser.Close(); err != nil {
		return fmt.Errorf("关闭浏览器失败: %w", err)
	}
	utils.Debugf("浏览器已关闭")
	return nil
}
