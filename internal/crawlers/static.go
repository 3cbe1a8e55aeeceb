package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/RecoveryAshes/tabbydump/internal/models"
	"github.com/RecoveryAshes/tabbydump/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

// StaticFetcherConfig 静态抓取器配置
type StaticFetcherConfig struct {
	Timeout     time.Duration // 单个请求超时
	MaxBodySize int           // 响应体上限(字节)
	Parallelism int           // Colly层面的并发上限,与请求管理器保持一致
}

// StaticFetcher 静态抓取器(使用Colly)
// 每次抓取在克隆出的collector上执行,克隆体共享底层HTTP客户端和并发限制
type StaticFetcher struct {
	collector   *colly.Collector
	maxBodySize int

	// HTTP头部提供者
	headerProvider models.HeaderProvider
}

// NewStaticFetcher 创建静态抓取器
func NewStaticFetcher(config StaticFetcherConfig, headerProvider models.HeaderProvider) *StaticFetcher {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = models.MaxBodySize
	}
	if config.Parallelism < 1 {
		config.Parallelism = models.DefaultMaxActive
	}

	// 跳过证书验证,允许访问自签名证书的自建站点
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
		},
		MaxIdleConnsPerHost: config.Parallelism,
	}

	// 同步collector: Request在响应处理完毕后才返回
	// 同一页面会在不同批次里再次请求,因此允许重复访问
	// Colly超限时静默截断,多读一个字节用于识别超限
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.MaxBodySize(config.MaxBodySize+1),
	)
	c.WithTransport(transport)
	c.SetRequestTimeout(config.Timeout)

	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: config.Parallelism,
		Delay:       0, // 无延迟
	}); err != nil {
		utils.Warnf("设置并发限制失败: %v", err)
	}

	utils.Debugf("静态抓取器: 超时=%v, 并发=%d, TLS证书验证已禁用", config.Timeout, config.Parallelism)

	return &StaticFetcher{
		collector:      c,
		maxBodySize:    config.MaxBodySize,
		headerProvider: headerProvider,
	}
}

// Fetch 实现Fetcher接口
func (sf *StaticFetcher) Fetch(ctx context.Context, rawURL string) (*models.PageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hdr, err := sf.requestHeaders()
	if err != nil {
		return nil, err
	}

	var result *models.PageResult
	var decodeErr, sizeErr error

	c := sf.collector.Clone()
	c.OnResponse(func(r *colly.Response) {
		if err := sf.checkBodySize(r); err != nil {
			sizeErr = err
			return
		}
		body, err := decompressBody(r.Headers.Get("Content-Encoding"), r.Body)
		if err != nil {
			decodeErr = err
			return
		}
		result = &models.PageResult{
			SourceURL:   rawURL,
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        body,
		}
	})

	// 非2xx响应由Colly转换为错误
	if err := c.Request(http.MethodGet, rawURL, nil, colly.NewContext(), hdr); err != nil {
		return nil, fmt.Errorf("请求失败 [%s]: %w", rawURL, err)
	}
	if sizeErr != nil {
		return nil, fmt.Errorf("响应过大 [%s]: %w", rawURL, sizeErr)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("解压响应失败 [%s]: %w", rawURL, decodeErr)
	}
	if result == nil {
		return nil, fmt.Errorf("未收到响应 [%s]", rawURL)
	}

	utils.Debugf("抓取完成: %s (HTTP %d, %d bytes)", rawURL, result.StatusCode, len(result.Body))
	return result, nil
}

// checkBodySize 超过上限的响应视为失败,不写入截断的文件
func (sf *StaticFetcher) checkBodySize(r *colly.Response) error {
	if n, err := strconv.ParseInt(r.Headers.Get("Content-Length"), 10, 64); err == nil && n > int64(sf.maxBodySize) {
		return fmt.Errorf("Content-Length %d 超过上限 %d 字节", n, sf.maxBodySize)
	}
	if len(r.Body) > sf.maxBodySize {
		return fmt.Errorf("响应体超过上限 %d 字节", sf.maxBodySize)
	}
	return nil
}

// requestHeaders 从头部提供者取出本次请求的头部
func (sf *StaticFetcher) requestHeaders() (http.Header, error) {
	if sf.headerProvider == nil {
		return http.Header{}, nil
	}
	headers, err := sf.headerProvider.GetHeaders()
	if err != nil {
		return nil, fmt.Errorf("获取HTTP头部失败: %w", err)
	}
	return headers.Clone(), nil
}

// decompressBody 根据Content-Encoding头部解压响应体
// 支持 gzip, deflate, br (Brotli) 三种压缩格式
// Colly已经透明解压gzip但保留了头部,所以gzip只在数据仍带魔数时处理
func decompressBody(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip", "x-gzip":
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip读取失败: %w", err)
		}
		return decompressed, nil

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		reader := brotli.NewReader(bytes.NewReader(body))
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "", "identity":
		return body, nil

	default:
		// 未知编码,原样写盘
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}
